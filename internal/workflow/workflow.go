// Package workflow enforces the work order lifecycle: which status
// changes are allowed, the history entry each action leaves behind and
// the client's one-way confirmation of completed work.
package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/desk/internal/models"
)

var (
	// ErrAlreadyConfirmed is returned when confirming a confirmed task.
	ErrAlreadyConfirmed = errors.New("task already confirmed")
	// ErrNotCompleted is returned when confirming a task that is not Completed.
	ErrNotCompleted = errors.New("task is not completed")
)

// DefaultRating is used when a confirmation carries no rating.
const DefaultRating = 5

// TransitionError reports a status change the lifecycle does not allow.
type TransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// Actor is whoever performs an action, recorded in task history.
type Actor struct {
	ID   string
	Name string
}

// Client is the actor recorded for public confirmations.
var Client = Actor{ID: "client", Name: "Client"}

// transitions lists allowed status changes by source status.
var transitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusNew:        {models.TaskStatusInProgress, models.TaskStatusCanceled},
	models.TaskStatusInProgress: {models.TaskStatusCompleted, models.TaskStatusCanceled, models.TaskStatusNew},
}

// IsValidTransition reports whether from → to is allowed.
func IsValidTransition(from, to models.TaskStatus) bool {
	return slices.Contains(transitions[from], to)
}

// AllowedTransitions returns the statuses reachable from from.
func AllowedTransitions(from models.TaskStatus) []models.TaskStatus {
	return slices.Clone(transitions[from])
}

// IsTerminal reports whether no further status change is possible.
func IsTerminal(s models.TaskStatus) bool {
	return len(transitions[s]) == 0
}

func appendHistory(t *models.Task, by Actor, action string, now time.Time) {
	t.History = append(t.History, models.HistoryEntry{
		ID:        uuid.NewString(),
		UserID:    by.ID,
		UserName:  by.Name,
		Action:    action,
		CreatedAt: now.UTC(),
	})
}

// Transition moves t to status `to` and records it in the history.
func Transition(t *models.Task, to models.TaskStatus, by Actor, now time.Time) error {
	if !IsValidTransition(t.Status, to) {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: to}
	}
	from := t.Status
	t.Status = to
	appendHistory(t, by, fmt.Sprintf("Status changed from %s to %s", from, to), now)
	return nil
}

// Assign sets the responsible engineer.
func Assign(t *models.Task, engineer models.User, by Actor, now time.Time) {
	t.EngineerID = engineer.ID
	appendHistory(t, by, "Assigned to "+engineer.Name, now)
}

// Comment appends a free-form note to the history.
func Comment(t *models.Task, text string, by Actor, now time.Time) {
	appendHistory(t, by, text, now)
}

// Confirm records the client's sign-off. Only Completed tasks can be
// confirmed, and only once. A rating outside 1..5 becomes DefaultRating.
func Confirm(t *models.Task, rating int, now time.Time) error {
	if t.IsConfirmed() {
		return ErrAlreadyConfirmed
	}
	if t.Status != models.TaskStatusCompleted {
		return ErrNotCompleted
	}
	if rating < 1 || rating > 5 {
		rating = DefaultRating
	}
	t.ClientConfirmation = &models.Confirmation{
		IsConfirmed: true,
		ConfirmedAt: now.UTC(),
		Rating:      rating,
	}
	appendHistory(t, Client, fmt.Sprintf("Client confirmed completion (rating %d)", rating), now)
	return nil
}

// Created records the opening history entry of a new task.
func Created(t *models.Task, by Actor, now time.Time) {
	appendHistory(t, by, "Task created", now)
}
