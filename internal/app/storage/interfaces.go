package storage

import (
	"context"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/account"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/task"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
)

// AccountStore persists account records.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	ListAccounts(ctx context.Context) ([]account.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// LeadStore persists lead records.
type LeadStore interface {
	CreateLead(ctx context.Context, ld lead.Lead) (lead.Lead, error)
	UpdateLead(ctx context.Context, ld lead.Lead) (lead.Lead, error)
	GetLead(ctx context.Context, id string) (lead.Lead, error)
	ListLeads(ctx context.Context, accountID string) ([]lead.Lead, error)
	DeleteLead(ctx context.Context, id string) error
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error)
	ListWorkflows(ctx context.Context, accountID string) ([]workflow.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	// RecordWorkflowRun bumps the execution counter and stamps last_executed.
	// Counter races between concurrent runs are tolerated.
	RecordWorkflowRun(ctx context.Context, id string, at time.Time) (workflow.Workflow, error)
}

// ExecutionStore persists workflow execution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error)
	UpdateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error)
	GetExecution(ctx context.Context, id string) (workflow.Execution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error)
}

// ActionLogStore persists the append-only activity feed. Appends are
// best-effort for callers; implementations still report errors.
type ActionLogStore interface {
	AppendActionLog(ctx context.Context, entry workflow.ActionLog) (workflow.ActionLog, error)
	// ListActionLogs filters by any non-empty combination of account,
	// workflow and lead.
	ListActionLogs(ctx context.Context, accountID, workflowID, leadID string) ([]workflow.ActionLog, error)
}

// TaskStore persists follow-up tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, tk task.Task) (task.Task, error)
	UpdateTask(ctx context.Context, tk task.Task) (task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, error)
	ListTasks(ctx context.Context, accountID string) ([]task.Task, error)
}

// Store aggregates every per-entity store. Both the memory and the postgres
// implementations satisfy it.
type Store interface {
	AccountStore
	LeadStore
	WorkflowStore
	ExecutionStore
	ActionLogStore
	TaskStore
}
