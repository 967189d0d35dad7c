// Package lead defines the sales prospect entity the automation layer acts
// upon.
package lead

import "time"

// Pipeline statuses a lead moves through.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusProposal  = "proposal"
	StatusConverted = "converted"
	StatusLost      = "lost"
)

// KnownStatuses lists the pipeline statuses in order.
var KnownStatuses = []string{
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusProposal,
	StatusConverted,
	StatusLost,
}

// ValidStatus reports whether s is a recognised pipeline status.
func ValidStatus(s string) bool {
	for _, known := range KnownStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Lead is a prospect record tracked through the status pipeline. Fields holds
// tenant-defined custom attributes; workflow conditions can address them.
type Lead struct {
	ID              string
	AccountID       string
	Name            string
	Email           string
	Phone           string
	Source          string
	Status          string
	Assignee        string
	Fields          map[string]string
	StatusChangedAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusChange describes a lead status transition handed to the workflow
// engine.
type StatusChange struct {
	AccountID string
	LeadID    string
	OldStatus string
	NewStatus string
	At        time.Time
}
