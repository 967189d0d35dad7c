// Package workflow defines the user-facing automation rule entity and its
// execution records. Trigger, action and condition specs are stored as raw
// JSON and parsed at evaluation time, so malformed blobs can exist in
// storage; evaluation skips them per workflow instead of failing the batch.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Trigger types.
const (
	TriggerLeadStatusChanged = "lead_status_changed"
	TriggerLeadCreated       = "lead_created"
	TriggerTimeElapsed       = "time_elapsed"
)

// Action types.
const (
	ActionSendWhatsApp = "send_whatsapp"
	ActionSendEmail    = "send_email"
	ActionSendSMS      = "send_sms"
	ActionUpdateLead   = "update_lead"
	ActionCreateTask   = "create_task"
	ActionWait         = "wait"
)

// Condition operators.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpContains  = "contains"
	OpGreater   = "gt"
	OpLess      = "lt"
	OpExists    = "exists"
	OpNotExists = "not_exists"
)

// Workflow is a tenant-defined trigger-condition-action rule. Trigger,
// Actions and Conditions keep the raw JSON the tenant submitted.
type Workflow struct {
	ID             string
	AccountID      string
	Name           string
	Description    string
	Trigger        json.RawMessage
	Actions        json.RawMessage
	Conditions     json.RawMessage
	Active         bool
	ExecutionCount int
	LastExecuted   time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TriggerSpec is the parsed form of the trigger blob.
type TriggerSpec struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config,omitempty"`
}

// ActionSpec is the parsed form of one entry in the actions blob.
type ActionSpec struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Condition is one field comparison evaluated against the lead document.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// ParseTrigger decodes and sanity-checks a trigger blob.
func ParseTrigger(raw json.RawMessage) (TriggerSpec, error) {
	var spec TriggerSpec
	if len(raw) == 0 {
		return spec, fmt.Errorf("trigger is empty")
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return spec, fmt.Errorf("parse trigger: %w", err)
	}
	spec.Type = strings.TrimSpace(strings.ToLower(spec.Type))
	if spec.Type == "" {
		return spec, fmt.Errorf("trigger type is required")
	}
	return spec, nil
}

// ParseActions decodes and sanity-checks an actions blob.
func ParseActions(raw json.RawMessage) ([]ActionSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var specs []ActionSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parse actions: %w", err)
	}
	for i := range specs {
		specs[i].Type = strings.TrimSpace(strings.ToLower(specs[i].Type))
		if specs[i].Type == "" {
			return nil, fmt.Errorf("action %d: type is required", i)
		}
	}
	return specs, nil
}

// ParseConditions decodes and sanity-checks a conditions blob.
func ParseConditions(raw json.RawMessage) ([]Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var conds []Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}
	for i := range conds {
		conds[i].Operator = strings.TrimSpace(strings.ToLower(conds[i].Operator))
		if strings.TrimSpace(conds[i].Field) == "" {
			return nil, fmt.Errorf("condition %d: field is required", i)
		}
		if conds[i].Operator == "" {
			return nil, fmt.Errorf("condition %d: operator is required", i)
		}
	}
	return conds, nil
}

// Execution statuses.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionCancelled = "cancelled"
)

// Execution records one run of a workflow. It is created running at trigger
// match time and updated exactly once at completion; a crash can leave it
// running forever.
type Execution struct {
	ID          string
	WorkflowID  string
	AccountID   string
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string
	TriggeredBy string
}

// Lead lifecycle feed entries. They share the action log with workflow
// action outcomes but carry an empty WorkflowID.
const (
	FeedLeadCreated   = "lead_created"
	FeedStatusChanged = "status_changed"
)

// ActionLog is one append-only activity entry. Entries with an empty
// WorkflowID record lead lifecycle events (status changes); the rest record
// individual action outcomes.
type ActionLog struct {
	ID          string
	AccountID   string
	WorkflowID  string
	ExecutionID string
	LeadID      string
	ActionType  string
	Result      string
	Error       string
	Timestamp   time.Time
}
