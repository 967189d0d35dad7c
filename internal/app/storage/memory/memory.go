package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/account"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/task"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	accounts   map[string]account.Account
	leads      map[string]lead.Lead
	workflows  map[string]workflow.Workflow
	executions map[string]workflow.Execution
	actionLogs []workflow.ActionLog
	tasks      map[string]task.Task
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.LeadStore = (*Store)(nil)
var _ storage.WorkflowStore = (*Store)(nil)
var _ storage.ExecutionStore = (*Store)(nil)
var _ storage.ActionLogStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:     1,
		accounts:   make(map[string]account.Account),
		leads:      make(map[string]lead.Lead),
		workflows:  make(map[string]workflow.Workflow),
		executions: make(map[string]workflow.Execution),
		tasks:      make(map[string]task.Task),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("account %s already exists", acct.ID)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	acct.Metadata = cloneMap(acct.Metadata)

	s.accounts[acct.ID] = acct
	return cloneAccount(acct), nil
}

func (s *Store) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.accounts[acct.ID]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s not found", acct.ID)
	}

	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()
	acct.Metadata = cloneMap(acct.Metadata)

	s.accounts[acct.ID] = acct
	return cloneAccount(acct), nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, fmt.Errorf("account %s not found", id)
	}
	return cloneAccount(acct), nil
}

func (s *Store) ListAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, cloneAccount(acct))
	}
	return result, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("account %s not found", id)
	}
	delete(s.accounts, id)
	return nil
}

// LeadStore implementation ----------------------------------------------------

func (s *Store) CreateLead(_ context.Context, ld lead.Lead) (lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ld.ID == "" {
		ld.ID = s.nextIDLocked()
	} else if _, exists := s.leads[ld.ID]; exists {
		return lead.Lead{}, fmt.Errorf("lead %s already exists", ld.ID)
	}

	now := time.Now().UTC()
	ld.CreatedAt = now
	ld.UpdatedAt = now
	if ld.StatusChangedAt.IsZero() {
		ld.StatusChangedAt = now
	}
	ld.Fields = cloneMap(ld.Fields)

	s.leads[ld.ID] = ld
	return cloneLead(ld), nil
}

func (s *Store) UpdateLead(_ context.Context, ld lead.Lead) (lead.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.leads[ld.ID]
	if !ok {
		return lead.Lead{}, fmt.Errorf("lead %s not found", ld.ID)
	}

	ld.CreatedAt = original.CreatedAt
	ld.UpdatedAt = time.Now().UTC()
	if ld.StatusChangedAt.IsZero() {
		ld.StatusChangedAt = original.StatusChangedAt
	}
	ld.Fields = cloneMap(ld.Fields)

	s.leads[ld.ID] = ld
	return cloneLead(ld), nil
}

func (s *Store) GetLead(_ context.Context, id string) (lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ld, ok := s.leads[id]
	if !ok {
		return lead.Lead{}, fmt.Errorf("lead %s not found", id)
	}
	return cloneLead(ld), nil
}

func (s *Store) ListLeads(_ context.Context, accountID string) ([]lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]lead.Lead, 0)
	for _, ld := range s.leads {
		if accountID == "" || ld.AccountID == accountID {
			result = append(result, cloneLead(ld))
		}
	}
	return result, nil
}

func (s *Store) DeleteLead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leads[id]; !ok {
		return fmt.Errorf("lead %s not found", id)
	}
	delete(s.leads, id)
	return nil
}

// WorkflowStore implementation ------------------------------------------------

func (s *Store) CreateWorkflow(_ context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wf.ID == "" {
		wf.ID = s.nextIDLocked()
	} else if _, exists := s.workflows[wf.ID]; exists {
		return workflow.Workflow{}, fmt.Errorf("workflow %s already exists", wf.ID)
	}

	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	wf.Trigger = cloneRawJSON(wf.Trigger)
	wf.Actions = cloneRawJSON(wf.Actions)
	wf.Conditions = cloneRawJSON(wf.Conditions)

	s.workflows[wf.ID] = wf
	return cloneWorkflow(wf), nil
}

func (s *Store) UpdateWorkflow(_ context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.workflows[wf.ID]
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("workflow %s not found", wf.ID)
	}

	// Run bookkeeping moves only through RecordWorkflowRun; a definition
	// update never rewinds it.
	wf.CreatedAt = original.CreatedAt
	wf.ExecutionCount = original.ExecutionCount
	wf.LastExecuted = original.LastExecuted
	wf.UpdatedAt = time.Now().UTC()
	wf.Trigger = cloneRawJSON(wf.Trigger)
	wf.Actions = cloneRawJSON(wf.Actions)
	wf.Conditions = cloneRawJSON(wf.Conditions)

	s.workflows[wf.ID] = wf
	return cloneWorkflow(wf), nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("workflow %s not found", id)
	}
	return cloneWorkflow(wf), nil
}

func (s *Store) ListWorkflows(_ context.Context, accountID string) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.Workflow, 0)
	for _, wf := range s.workflows {
		if accountID == "" || wf.AccountID == accountID {
			result = append(result, cloneWorkflow(wf))
		}
	}
	return result, nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return fmt.Errorf("workflow %s not found", id)
	}
	delete(s.workflows, id)
	return nil
}

func (s *Store) RecordWorkflowRun(_ context.Context, id string, at time.Time) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return workflow.Workflow{}, fmt.Errorf("workflow %s not found", id)
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	wf.ExecutionCount++
	wf.LastExecuted = at

	s.workflows[id] = wf
	return cloneWorkflow(wf), nil
}

// ExecutionStore implementation -----------------------------------------------

func (s *Store) CreateExecution(_ context.Context, exec workflow.Execution) (workflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.ID == "" {
		exec.ID = s.nextIDLocked()
	} else if _, exists := s.executions[exec.ID]; exists {
		return workflow.Execution{}, fmt.Errorf("execution %s already exists", exec.ID)
	}

	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	s.executions[exec.ID] = exec
	return exec, nil
}

func (s *Store) UpdateExecution(_ context.Context, exec workflow.Execution) (workflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.executions[exec.ID]
	if !ok {
		return workflow.Execution{}, fmt.Errorf("execution %s not found", exec.ID)
	}

	exec.StartedAt = original.StartedAt
	if exec.CompletedAt.IsZero() {
		exec.CompletedAt = original.CompletedAt
	}

	s.executions[exec.ID] = exec
	return exec, nil
}

func (s *Store) GetExecution(_ context.Context, id string) (workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return workflow.Execution{}, fmt.Errorf("execution %s not found", id)
	}
	return exec, nil
}

func (s *Store) ListExecutions(_ context.Context, workflowID string) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.Execution, 0)
	for _, exec := range s.executions {
		if workflowID == "" || exec.WorkflowID == workflowID {
			result = append(result, exec)
		}
	}
	return result, nil
}

// ActionLogStore implementation -----------------------------------------------

func (s *Store) AppendActionLog(_ context.Context, entry workflow.ActionLog) (workflow.ActionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = s.nextIDLocked()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.actionLogs = append(s.actionLogs, entry)
	return entry, nil
}

func (s *Store) ListActionLogs(_ context.Context, accountID, workflowID, leadID string) ([]workflow.ActionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.ActionLog, 0)
	for _, entry := range s.actionLogs {
		if accountID != "" && entry.AccountID != accountID {
			continue
		}
		if workflowID != "" && entry.WorkflowID != workflowID {
			continue
		}
		if leadID != "" && entry.LeadID != leadID {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// TaskStore implementation ----------------------------------------------------

func (s *Store) CreateTask(_ context.Context, tk task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tk.ID == "" {
		tk.ID = s.nextIDLocked()
	} else if _, exists := s.tasks[tk.ID]; exists {
		return task.Task{}, fmt.Errorf("task %s already exists", tk.ID)
	}

	now := time.Now().UTC()
	tk.CreatedAt = now
	tk.UpdatedAt = now

	s.tasks[tk.ID] = tk
	return tk, nil
}

func (s *Store) UpdateTask(_ context.Context, tk task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tasks[tk.ID]
	if !ok {
		return task.Task{}, fmt.Errorf("task %s not found", tk.ID)
	}

	tk.CreatedAt = original.CreatedAt
	tk.UpdatedAt = time.Now().UTC()

	s.tasks[tk.ID] = tk
	return tk, nil
}

func (s *Store) GetTask(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tk, ok := s.tasks[id]
	if !ok {
		return task.Task{}, fmt.Errorf("task %s not found", id)
	}
	return tk, nil
}

func (s *Store) ListTasks(_ context.Context, accountID string) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]task.Task, 0)
	for _, tk := range s.tasks {
		if accountID == "" || tk.AccountID == accountID {
			result = append(result, tk)
		}
	}
	return result, nil
}

// Helpers --------------------------------------------------------------------

func cloneMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneRawJSON(src json.RawMessage) json.RawMessage {
	if len(src) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), src...)
}

func cloneAccount(acct account.Account) account.Account {
	acct.Metadata = cloneMap(acct.Metadata)
	return acct
}

func cloneLead(ld lead.Lead) lead.Lead {
	ld.Fields = cloneMap(ld.Fields)
	return ld
}

func cloneWorkflow(wf workflow.Workflow) workflow.Workflow {
	wf.Trigger = cloneRawJSON(wf.Trigger)
	wf.Actions = cloneRawJSON(wf.Actions)
	wf.Conditions = cloneRawJSON(wf.Conditions)
	return wf
}
