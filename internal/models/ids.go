package models

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	messageIDPrefix = "m"
	taskIDPrefix    = "T-"
	firstTaskNumber = 1000
)

// NewID returns prefix followed by a random UUID
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}

// NewMessageID returns a time-ordered chat message ID
func NewMessageID() string {
	return messageIDPrefix + ulid.Make().String()
}

// NextTaskID returns the next sequential public task ID ("T-1001", "T-1002", ...)
// continuing after the highest T- number already in use.
func NextTaskID(tasks []Task) string {
	max := firstTaskNumber
	for _, t := range tasks {
		if !strings.HasPrefix(t.ID, taskIDPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(t.ID, taskIDPrefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return taskIDPrefix + strconv.Itoa(max+1)
}

// NewPublicToken generates an opaque token for shareable task links (16 bytes hex)
func NewPublicToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
