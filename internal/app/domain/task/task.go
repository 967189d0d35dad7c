package task

import "time"

// Task statuses.
const (
	StatusOpen = "open"
	StatusDone = "done"
)

// Task is a follow-up item, usually created for a lead by the create_task
// workflow action.
type Task struct {
	ID          string
	AccountID   string
	LeadID      string
	Title       string
	Description string
	Assignee    string
	Status      string
	DueAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
