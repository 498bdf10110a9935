package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common rejection classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrClosed       = errors.New("store closed")
)

// TransportError means the request never got a usable answer: network
// unreachable, timeout, connection dropped or a 5xx from the backend.
type TransportError struct {
	Op    string
	Table Table
	Err   error
}

func (e *TransportError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: transport: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConstraintError means the backend answered and rejected the request
// (malformed payload, constraint violation, permission).
type ConstraintError struct {
	Op      string
	Table   Table
	Code    string
	Message string
	Details string
	Err     error
}

func (e *ConstraintError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Table, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsConstraint reports whether err is (or wraps) a ConstraintError.
func IsConstraint(err error) bool {
	var ce *ConstraintError
	return errors.As(err, &ce)
}

// Describe returns a human-readable message for any remote error.
// Transport failures collapse to a single "server unreachable" message.
func Describe(err error) string {
	if err == nil {
		return "unknown error"
	}
	if IsTransport(err) || errors.Is(err, context.DeadlineExceeded) {
		return "network error: server unreachable (check the connection or VPN)"
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		msg := ce.Message
		if msg == "" {
			msg = ce.Code
		}
		if msg == "" && ce.Err != nil {
			msg = ce.Err.Error()
		}
		if ce.Details != "" && ce.Details != "null" {
			msg += ": " + ce.Details
		}
		return msg
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "failed to fetch") {
		return "network error: server unreachable (check the connection or VPN)"
	}
	return msg
}
