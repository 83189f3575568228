package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Advisory status labels. The store does not enforce them.
const (
	StatusPending    = "pending"
	StatusInProgress = "inprogress"
	StatusDone       = "done"
)

type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	AssignedTo  string     `json:"assignedTo"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type CreateCommand struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assignedTo"`
	CreatedBy   string     `json:"createdBy"`
}

// UpdateCommand replaces every mutable field of a task. ID, CreatedBy and
// CreatedAt are never part of an update.
type UpdateCommand struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assignedTo"`
}

// ListFilter narrows a task listing. Zero value lists everything.
type ListFilter struct {
	Statuses []string
	Search   string
}

// NormalizedStatuses returns the statuses trimmed, with blank entries
// removed. Case is kept: the store folds both sides with the same function.
func (f ListFilter) NormalizedStatuses() []string {
	out := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ParseStatuses splits a comma separated status list as sent by clients.
func ParseStatuses(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return ListFilter{Statuses: strings.Split(s, ",")}.NormalizedStatuses()
}

type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

const HeaderKind = "kind"

// TaskEvent describes a change that was durably written. Task is nil for
// deletions.
type TaskEvent struct {
	Kind   EventKind `json:"kind"`
	TaskID uuid.UUID `json:"taskId"`
	Task   *Task     `json:"task,omitempty"`
	At     time.Time `json:"at"`
}
