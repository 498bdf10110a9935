// Package public implements the unauthenticated flows reachable through
// shareable links: viewing and confirming a single task by token, and
// submitting a new work request through the web form.
package public

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/state"
	"github.com/marcus/desk/internal/workflow"
)

// ErrNotFound covers unknown ids, missing tokens and token mismatches
// alike, so a caller cannot probe which ids exist.
var ErrNotFound = errors.New("task not found")

// ErrInvalidRequest is returned for web form submissions missing
// required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Kind selects who the web form request is addressed to.
type Kind string

const (
	KindManager  Kind = "MANAGER"
	KindEngineer Kind = "ENGINEER"
)

// webForm is the history actor for submitted requests.
var webForm = workflow.Actor{ID: "system", Name: "Web Form"}

const pendingAddress = "To be confirmed"

// Lookup finds the task with id whose public token equals token.
func Lookup(tasks []models.Task, id, token string) (models.Task, error) {
	if id == "" || token == "" {
		return models.Task{}, ErrNotFound
	}
	for _, t := range tasks {
		if t.ID != id {
			continue
		}
		if t.PublicToken == "" || subtle.ConstantTimeCompare([]byte(t.PublicToken), []byte(token)) != 1 {
			return models.Task{}, ErrNotFound
		}
		return t, nil
	}
	return models.Task{}, ErrNotFound
}

// Confirm records the client's sign-off on the task id when token
// matches. Nothing is written on any failure.
func Confirm(st *state.Store, id, token string, rating int, now time.Time) (models.Task, error) {
	if _, err := Lookup(st.Tasks(), id, token); err != nil {
		return models.Task{}, err
	}

	var (
		out    models.Task
		result error
	)
	err := st.UpdateTasks(func(ts []models.Task) []models.Task {
		for i := range ts {
			if ts[i].ID != id {
				continue
			}
			// re-check under the store lock
			if _, result = Lookup(ts[i:i+1], id, token); result != nil {
				return ts
			}
			result = workflow.Confirm(&ts[i], rating, now)
			out = ts[i]
			return ts
		}
		result = ErrNotFound
		return ts
	})
	if result != nil {
		return models.Task{}, result
	}
	if err != nil {
		return out, fmt.Errorf("persist confirmation: %w", err)
	}
	return out, nil
}

// Request is a web form submission.
type Request struct {
	Name        string   `json:"name"`
	Phone       string   `json:"phone"`
	Comment     string   `json:"comment"`
	Kind        Kind     `json:"type"`
	Attachments []string `json:"attachments,omitempty"`
}

// Validate checks the required fields.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	case strings.TrimSpace(r.Phone) == "":
		return fmt.Errorf("%w: phone is required", ErrInvalidRequest)
	case r.Kind != KindManager && r.Kind != KindEngineer:
		return fmt.Errorf("%w: type must be %s or %s", ErrInvalidRequest, KindManager, KindEngineer)
	}
	return nil
}

func (r Request) title() string {
	if r.Kind == KindManager {
		return "Manager request - " + strings.TrimSpace(r.Name)
	}
	return "Engineer request - " + strings.TrimSpace(r.Name)
}

// SubmitRequest turns a web form submission into a New task with a fresh
// public token. The returned task carries the id and token for the
// status link.
func SubmitRequest(st *state.Store, req Request, now time.Time) (models.Task, error) {
	if err := req.Validate(); err != nil {
		return models.Task{}, err
	}
	token, err := models.NewPublicToken()
	if err != nil {
		return models.Task{}, fmt.Errorf("generate token: %w", err)
	}

	priority := models.PriorityMedium
	if req.Kind == KindManager {
		priority = models.PriorityHigh
	}

	var task models.Task
	err = st.UpdateTasks(func(ts []models.Task) []models.Task {
		task = models.Task{
			ID:          models.NextTaskID(ts),
			Title:       req.title(),
			ClientName:  strings.TrimSpace(req.Name),
			Address:     pendingAddress,
			Deadline:    now.Format(time.DateOnly),
			Status:      models.TaskStatusNew,
			Priority:    priority,
			Description: fmt.Sprintf("TEL: %s\n%s", strings.TrimSpace(req.Phone), req.Comment),
			PublicToken: token,
			Attachments: req.Attachments,
		}
		workflow.Comment(&task, "Request submitted via web form", webForm, now)
		return append([]models.Task{task}, ts...)
	})
	if err != nil {
		return task, fmt.Errorf("persist request: %w", err)
	}
	return task, nil
}

// StatusLink builds the shareable link for a submitted task.
func StatusLink(baseURL string, t models.Task) string {
	return fmt.Sprintf("%s/public-task?id=%s&token=%s", strings.TrimRight(baseURL, "/"), t.ID, t.PublicToken)
}
