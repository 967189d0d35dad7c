// Package workflows manages automation rule definitions and runs them: the
// service covers CRUD and execution administration, the engine evaluates
// triggers and executes actions, the scheduler drives time-based triggers.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// ErrNotRunning is returned when cancellation targets an execution that has
// already finished.
var ErrNotRunning = errors.New("only running executions can be cancelled")

// Service manages workflow definitions and their execution records.
type Service struct {
	accounts   storage.AccountStore
	store      storage.WorkflowStore
	executions storage.ExecutionStore
	logs       storage.ActionLogStore
	log        *logger.Logger
}

// New constructs a workflow service.
func New(accounts storage.AccountStore, store storage.WorkflowStore, executions storage.ExecutionStore, logs storage.ActionLogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("workflows")
	}
	return &Service{
		accounts:   accounts,
		store:      store,
		executions: executions,
		logs:       logs,
		log:        log,
	}
}

// Create validates and stores a new workflow definition. The trigger must
// parse and carry its required config; actions and conditions are stored as
// submitted and parsed at evaluation time.
func (s *Service) Create(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	wf.Name = strings.TrimSpace(wf.Name)
	if wf.Name == "" {
		return workflow.Workflow{}, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(wf.AccountID) == "" {
		return workflow.Workflow{}, fmt.Errorf("account_id is required")
	}

	if s.accounts != nil {
		if _, err := s.accounts.GetAccount(ctx, wf.AccountID); err != nil {
			return workflow.Workflow{}, fmt.Errorf("account validation failed: %w", err)
		}
	}
	if err := s.validateDefinition(ctx, wf, ""); err != nil {
		return workflow.Workflow{}, err
	}

	created, err := s.store.CreateWorkflow(ctx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	s.log.WithField("workflow_id", created.ID).
		WithField("account_id", created.AccountID).
		WithField("name", created.Name).
		Info("workflow created")
	return created, nil
}

// Replace swaps the whole definition for the submitted document. The
// workflow keeps its identity, account and run bookkeeping; everything else
// becomes exactly what was sent.
func (s *Service) Replace(ctx context.Context, id string, wf workflow.Workflow) (workflow.Workflow, error) {
	existing, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return workflow.Workflow{}, err
	}

	wf.ID = existing.ID
	wf.AccountID = existing.AccountID
	wf.Name = strings.TrimSpace(wf.Name)
	if wf.Name == "" {
		return workflow.Workflow{}, fmt.Errorf("name is required")
	}
	if err := s.validateDefinition(ctx, wf, existing.ID); err != nil {
		return workflow.Workflow{}, err
	}

	updated, err := s.store.UpdateWorkflow(ctx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	s.log.WithField("workflow_id", id).
		WithField("account_id", updated.AccountID).
		Info("workflow replaced")
	return updated, nil
}

// SetActive toggles evaluation for a workflow.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (workflow.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if wf.Active == active {
		return wf, nil
	}
	wf.Active = active
	updated, err := s.store.UpdateWorkflow(ctx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	s.log.WithField("workflow_id", id).
		WithField("account_id", wf.AccountID).
		WithField("active", active).
		Info("workflow state changed")
	return updated, nil
}

// Get fetches a workflow by identifier.
func (s *Service) Get(ctx context.Context, id string) (workflow.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// List returns workflows, optionally scoped to an account.
func (s *Service) List(ctx context.Context, accountID string) ([]workflow.Workflow, error) {
	return s.store.ListWorkflows(ctx, accountID)
}

// Delete removes a workflow definition. Past executions and log entries are
// kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	s.log.WithField("workflow_id", id).Info("workflow deleted")
	return nil
}

// Executions returns run records for a workflow, newest first.
func (s *Service) Executions(ctx context.Context, workflowID string) ([]workflow.Execution, error) {
	execs, err := s.executions.ListExecutions(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(execs, func(i, j int) bool {
		return execs[i].StartedAt.After(execs[j].StartedAt)
	})
	return execs, nil
}

// GetExecution fetches one run record.
func (s *Service) GetExecution(ctx context.Context, id string) (workflow.Execution, error) {
	return s.executions.GetExecution(ctx, id)
}

// CancelExecution marks a running execution cancelled. It exists to clean up
// records stranded by a crash mid-run; the engine itself never cancels.
func (s *Service) CancelExecution(ctx context.Context, id string) (workflow.Execution, error) {
	exec, err := s.executions.GetExecution(ctx, id)
	if err != nil {
		return workflow.Execution{}, err
	}
	if exec.Status != workflow.ExecutionRunning {
		return workflow.Execution{}, ErrNotRunning
	}

	exec.Status = workflow.ExecutionCancelled
	exec.CompletedAt = time.Now().UTC()
	updated, err := s.executions.UpdateExecution(ctx, exec)
	if err != nil {
		return workflow.Execution{}, err
	}
	s.log.WithField("execution_id", id).
		WithField("workflow_id", exec.WorkflowID).
		Info("execution cancelled")
	return updated, nil
}

// Logs returns the action log entries recorded for a workflow.
func (s *Service) Logs(ctx context.Context, workflowID string) ([]workflow.ActionLog, error) {
	return s.logs.ListActionLogs(ctx, "", workflowID, "")
}

func (s *Service) validateDefinition(ctx context.Context, wf workflow.Workflow, excludeID string) error {
	spec, err := workflow.ParseTrigger(wf.Trigger)
	if err != nil {
		return err
	}
	if err := validateTriggerSpec(spec); err != nil {
		return err
	}

	existing, err := s.store.ListWorkflows(ctx, wf.AccountID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != excludeID && strings.EqualFold(other.Name, wf.Name) {
			return fmt.Errorf("workflow with name %q already exists", wf.Name)
		}
	}
	return nil
}

// validateTriggerSpec checks type-specific trigger config. The engine
// applies the same checks at evaluation time, so definitions corrupted after
// creation skip cleanly instead of matching garbage.
func validateTriggerSpec(spec workflow.TriggerSpec) error {
	switch spec.Type {
	case workflow.TriggerLeadStatusChanged:
		status := spec.Config["status"]
		if status == "" {
			return fmt.Errorf("trigger config.status is required")
		}
		if !lead.ValidStatus(status) {
			return fmt.Errorf("trigger config.status %q is not a pipeline status", status)
		}
	case workflow.TriggerLeadCreated:
		// config.source is optional free text.
	case workflow.TriggerTimeElapsed:
		schedule := strings.TrimSpace(spec.Config["schedule"])
		after := strings.TrimSpace(spec.Config["after"])
		switch {
		case schedule == "" && after == "":
			return fmt.Errorf("trigger needs config.schedule or config.after")
		case schedule != "" && after != "":
			return fmt.Errorf("trigger takes config.schedule or config.after, not both")
		case schedule != "":
			if _, err := cron.ParseStandard(schedule); err != nil {
				return fmt.Errorf("invalid schedule: %w", err)
			}
		default:
			d, err := time.ParseDuration(after)
			if err != nil {
				return fmt.Errorf("invalid after duration: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("after duration must be positive")
			}
		}
		if status := spec.Config["status"]; status != "" && !lead.ValidStatus(status) {
			return fmt.Errorf("trigger config.status %q is not a pipeline status", status)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", spec.Type)
	}
	return nil
}
