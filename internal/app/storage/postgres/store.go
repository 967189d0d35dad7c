package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/account"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/task"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.LeadStore = (*Store)(nil)
var _ storage.WorkflowStore = (*Store)(nil)
var _ storage.ExecutionStore = (*Store)(nil)
var _ storage.ActionLogStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// --- AccountStore -----------------------------------------------------------

type accountRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Owner     string    `db:"owner"`
	Active    bool      `db:"active"`
	Metadata  []byte    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r accountRow) toDomain() account.Account {
	acct := account.Account{
		ID:        r.ID,
		Name:      r.Name,
		Owner:     r.Owner,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		_ = json.Unmarshal(r.Metadata, &acct.Metadata)
	}
	return acct
}

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	metadataJSON, err := json.Marshal(acct.Metadata)
	if err != nil {
		return account.Account{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_accounts (id, name, owner, active, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, acct.ID, acct.Name, acct.Owner, acct.Active, metadataJSON, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	existing, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		return account.Account{}, err
	}

	acct.CreatedAt = existing.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(acct.Metadata)
	if err != nil {
		return account.Account{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_accounts
		SET name = $2, owner = $3, active = $4, metadata = $5, updated_at = $6
		WHERE id = $1
	`, acct.ID, acct.Name, acct.Owner, acct.Active, metadataJSON, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, sql.ErrNoRows
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, owner, active, metadata, created_at, updated_at
		FROM app_accounts
		WHERE id = $1
	`, id)
	if err != nil {
		return account.Account{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]account.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, owner, active, metadata, created_at, updated_at
		FROM app_accounts
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}

	result := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_accounts WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- LeadStore --------------------------------------------------------------

type leadRow struct {
	ID              string    `db:"id"`
	AccountID       string    `db:"account_id"`
	Name            string    `db:"name"`
	Email           string    `db:"email"`
	Phone           string    `db:"phone"`
	Source          string    `db:"source"`
	Status          string    `db:"status"`
	Assignee        string    `db:"assignee"`
	Fields          []byte    `db:"fields"`
	StatusChangedAt time.Time `db:"status_changed_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r leadRow) toDomain() lead.Lead {
	ld := lead.Lead{
		ID:              r.ID,
		AccountID:       r.AccountID,
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		Source:          r.Source,
		Status:          r.Status,
		Assignee:        r.Assignee,
		StatusChangedAt: r.StatusChangedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Fields) > 0 {
		_ = json.Unmarshal(r.Fields, &ld.Fields)
	}
	return ld
}

const leadColumns = `id, account_id, name, email, phone, source, status, assignee, fields, status_changed_at, created_at, updated_at`

func (s *Store) CreateLead(ctx context.Context, ld lead.Lead) (lead.Lead, error) {
	if ld.AccountID == "" {
		return lead.Lead{}, errors.New("account_id required")
	}
	if ld.ID == "" {
		ld.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ld.CreatedAt = now
	ld.UpdatedAt = now
	if ld.StatusChangedAt.IsZero() {
		ld.StatusChangedAt = now
	}

	fieldsJSON, err := json.Marshal(ld.Fields)
	if err != nil {
		return lead.Lead{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ld.ID, ld.AccountID, ld.Name, ld.Email, ld.Phone, ld.Source, ld.Status, ld.Assignee, fieldsJSON, ld.StatusChangedAt, ld.CreatedAt, ld.UpdatedAt)
	if err != nil {
		return lead.Lead{}, err
	}
	return ld, nil
}

func (s *Store) UpdateLead(ctx context.Context, ld lead.Lead) (lead.Lead, error) {
	existing, err := s.GetLead(ctx, ld.ID)
	if err != nil {
		return lead.Lead{}, err
	}

	ld.AccountID = existing.AccountID
	ld.CreatedAt = existing.CreatedAt
	ld.UpdatedAt = time.Now().UTC()
	if ld.StatusChangedAt.IsZero() {
		ld.StatusChangedAt = existing.StatusChangedAt
	}

	fieldsJSON, err := json.Marshal(ld.Fields)
	if err != nil {
		return lead.Lead{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_leads
		SET name = $2, email = $3, phone = $4, source = $5, status = $6, assignee = $7, fields = $8, status_changed_at = $9, updated_at = $10
		WHERE id = $1
	`, ld.ID, ld.Name, ld.Email, ld.Phone, ld.Source, ld.Status, ld.Assignee, fieldsJSON, ld.StatusChangedAt, ld.UpdatedAt)
	if err != nil {
		return lead.Lead{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return lead.Lead{}, sql.ErrNoRows
	}
	return ld, nil
}

func (s *Store) GetLead(ctx context.Context, id string) (lead.Lead, error) {
	var row leadRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+leadColumns+`
		FROM app_leads
		WHERE id = $1
	`, id)
	if err != nil {
		return lead.Lead{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListLeads(ctx context.Context, accountID string) ([]lead.Lead, error) {
	var rows []leadRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+leadColumns+`
		FROM app_leads
		WHERE $1 = '' OR account_id = $1
		ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, err
	}

	result := make([]lead.Lead, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteLead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_leads WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- WorkflowStore ----------------------------------------------------------

type workflowRow struct {
	ID             string       `db:"id"`
	AccountID      string       `db:"account_id"`
	Name           string       `db:"name"`
	Description    string       `db:"description"`
	Trigger        []byte       `db:"trigger_spec"`
	Actions        []byte       `db:"actions"`
	Conditions     []byte       `db:"conditions"`
	Active         bool         `db:"active"`
	ExecutionCount int          `db:"execution_count"`
	LastExecuted   sql.NullTime `db:"last_executed"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

func (r workflowRow) toDomain() workflow.Workflow {
	wf := workflow.Workflow{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Name:           r.Name,
		Description:    r.Description,
		Trigger:        json.RawMessage(r.Trigger),
		Actions:        json.RawMessage(r.Actions),
		Conditions:     json.RawMessage(r.Conditions),
		Active:         r.Active,
		ExecutionCount: r.ExecutionCount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.LastExecuted.Valid {
		wf.LastExecuted = r.LastExecuted.Time.UTC()
	}
	return wf
}

const workflowColumns = `id, account_id, name, description, trigger_spec, actions, conditions, active, execution_count, last_executed, created_at, updated_at`

func (s *Store) CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	if wf.AccountID == "" {
		return workflow.Workflow{}, errors.New("account_id required")
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, wf.ID, wf.AccountID, wf.Name, wf.Description, jsonOrNull(wf.Trigger), jsonOrNull(wf.Actions), jsonOrNull(wf.Conditions), wf.Active, wf.ExecutionCount, toNullTime(wf.LastExecuted), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return wf, nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	existing, err := s.GetWorkflow(ctx, wf.ID)
	if err != nil {
		return workflow.Workflow{}, err
	}

	// Run bookkeeping moves only through RecordWorkflowRun; a definition
	// update never rewinds it.
	wf.AccountID = existing.AccountID
	wf.CreatedAt = existing.CreatedAt
	wf.ExecutionCount = existing.ExecutionCount
	wf.LastExecuted = existing.LastExecuted
	wf.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_workflows
		SET name = $2, description = $3, trigger_spec = $4, actions = $5, conditions = $6, active = $7, updated_at = $8
		WHERE id = $1
	`, wf.ID, wf.Name, wf.Description, jsonOrNull(wf.Trigger), jsonOrNull(wf.Actions), jsonOrNull(wf.Conditions), wf.Active, wf.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return workflow.Workflow{}, sql.ErrNoRows
	}
	return wf, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+workflowColumns+`
		FROM app_workflows
		WHERE id = $1
	`, id)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListWorkflows(ctx context.Context, accountID string) ([]workflow.Workflow, error) {
	var rows []workflowRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+workflowColumns+`
		FROM app_workflows
		WHERE $1 = '' OR account_id = $1
		ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, err
	}

	result := make([]workflow.Workflow, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM app_workflows WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) RecordWorkflowRun(ctx context.Context, id string, at time.Time) (workflow.Workflow, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var row workflowRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE app_workflows
		SET execution_count = execution_count + 1, last_executed = $2
		WHERE id = $1
		RETURNING `+workflowColumns+`
	`, id, at.UTC())
	if err != nil {
		return workflow.Workflow{}, err
	}
	return row.toDomain(), nil
}

// --- ExecutionStore ---------------------------------------------------------

type executionRow struct {
	ID          string       `db:"id"`
	WorkflowID  string       `db:"workflow_id"`
	AccountID   string       `db:"account_id"`
	Status      string       `db:"status"`
	StartedAt   time.Time    `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	Error       string       `db:"error"`
	TriggeredBy string       `db:"triggered_by"`
}

func (r executionRow) toDomain() workflow.Execution {
	exec := workflow.Execution{
		ID:          r.ID,
		WorkflowID:  r.WorkflowID,
		AccountID:   r.AccountID,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		Error:       r.Error,
		TriggeredBy: r.TriggeredBy,
	}
	if r.CompletedAt.Valid {
		exec.CompletedAt = r.CompletedAt.Time.UTC()
	}
	return exec
}

const executionColumns = `id, workflow_id, account_id, status, started_at, completed_at, error, triggered_by`

func (s *Store) CreateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error) {
	if exec.WorkflowID == "" {
		return workflow.Execution{}, errors.New("workflow_id required")
	}
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_workflow_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, exec.ID, exec.WorkflowID, exec.AccountID, exec.Status, exec.StartedAt, toNullTime(exec.CompletedAt), exec.Error, exec.TriggeredBy)
	if err != nil {
		return workflow.Execution{}, err
	}
	return exec, nil
}

func (s *Store) UpdateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error) {
	existing, err := s.GetExecution(ctx, exec.ID)
	if err != nil {
		return workflow.Execution{}, err
	}

	exec.WorkflowID = existing.WorkflowID
	exec.AccountID = existing.AccountID
	exec.TriggeredBy = existing.TriggeredBy
	exec.StartedAt = existing.StartedAt
	if exec.CompletedAt.IsZero() {
		exec.CompletedAt = existing.CompletedAt
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_workflow_executions
		SET status = $2, completed_at = $3, error = $4
		WHERE id = $1
	`, exec.ID, exec.Status, toNullTime(exec.CompletedAt), exec.Error)
	if err != nil {
		return workflow.Execution{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return workflow.Execution{}, sql.ErrNoRows
	}
	return exec, nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (workflow.Execution, error) {
	var row executionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+executionColumns+`
		FROM app_workflow_executions
		WHERE id = $1
	`, id)
	if err != nil {
		return workflow.Execution{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error) {
	var rows []executionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+executionColumns+`
		FROM app_workflow_executions
		WHERE $1 = '' OR workflow_id = $1
		ORDER BY started_at DESC
	`, workflowID)
	if err != nil {
		return nil, err
	}

	result := make([]workflow.Execution, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// --- ActionLogStore ---------------------------------------------------------

type actionLogRow struct {
	ID          string    `db:"id"`
	AccountID   string    `db:"account_id"`
	WorkflowID  string    `db:"workflow_id"`
	ExecutionID string    `db:"execution_id"`
	LeadID      string    `db:"lead_id"`
	ActionType  string    `db:"action_type"`
	Result      string    `db:"result"`
	Error       string    `db:"error"`
	LoggedAt    time.Time `db:"logged_at"`
}

func (r actionLogRow) toDomain() workflow.ActionLog {
	return workflow.ActionLog{
		ID:          r.ID,
		AccountID:   r.AccountID,
		WorkflowID:  r.WorkflowID,
		ExecutionID: r.ExecutionID,
		LeadID:      r.LeadID,
		ActionType:  r.ActionType,
		Result:      r.Result,
		Error:       r.Error,
		Timestamp:   r.LoggedAt,
	}
}

func (s *Store) AppendActionLog(ctx context.Context, entry workflow.ActionLog) (workflow.ActionLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_action_logs (id, account_id, workflow_id, execution_id, lead_id, action_type, result, error, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.AccountID, entry.WorkflowID, entry.ExecutionID, entry.LeadID, entry.ActionType, entry.Result, entry.Error, entry.Timestamp)
	if err != nil {
		return workflow.ActionLog{}, err
	}
	return entry, nil
}

func (s *Store) ListActionLogs(ctx context.Context, accountID, workflowID, leadID string) ([]workflow.ActionLog, error) {
	var rows []actionLogRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, workflow_id, execution_id, lead_id, action_type, result, error, logged_at
		FROM app_action_logs
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR workflow_id = $2)
		  AND ($3 = '' OR lead_id = $3)
		ORDER BY logged_at
	`, accountID, workflowID, leadID)
	if err != nil {
		return nil, err
	}

	result := make([]workflow.ActionLog, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// --- TaskStore --------------------------------------------------------------

type taskRow struct {
	ID          string       `db:"id"`
	AccountID   string       `db:"account_id"`
	LeadID      string       `db:"lead_id"`
	Title       string       `db:"title"`
	Description string       `db:"description"`
	Assignee    string       `db:"assignee"`
	Status      string       `db:"status"`
	DueAt       sql.NullTime `db:"due_at"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

func (r taskRow) toDomain() task.Task {
	tk := task.Task{
		ID:          r.ID,
		AccountID:   r.AccountID,
		LeadID:      r.LeadID,
		Title:       r.Title,
		Description: r.Description,
		Assignee:    r.Assignee,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DueAt.Valid {
		tk.DueAt = r.DueAt.Time.UTC()
	}
	return tk
}

const taskColumns = `id, account_id, lead_id, title, description, assignee, status, due_at, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, tk task.Task) (task.Task, error) {
	if tk.AccountID == "" {
		return task.Task{}, errors.New("account_id required")
	}
	if tk.ID == "" {
		tk.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tk.CreatedAt = now
	tk.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, tk.ID, tk.AccountID, tk.LeadID, tk.Title, tk.Description, tk.Assignee, tk.Status, toNullTime(tk.DueAt), tk.CreatedAt, tk.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	return tk, nil
}

func (s *Store) UpdateTask(ctx context.Context, tk task.Task) (task.Task, error) {
	existing, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		return task.Task{}, err
	}

	tk.AccountID = existing.AccountID
	tk.CreatedAt = existing.CreatedAt
	tk.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE app_tasks
		SET lead_id = $2, title = $3, description = $4, assignee = $5, status = $6, due_at = $7, updated_at = $8
		WHERE id = $1
	`, tk.ID, tk.LeadID, tk.Title, tk.Description, tk.Assignee, tk.Status, toNullTime(tk.DueAt), tk.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return task.Task{}, sql.ErrNoRows
	}
	return tk, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+taskColumns+`
		FROM app_tasks
		WHERE id = $1
	`, id)
	if err != nil {
		return task.Task{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListTasks(ctx context.Context, accountID string) ([]task.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+taskColumns+`
		FROM app_tasks
		WHERE $1 = '' OR account_id = $1
		ORDER BY created_at
	`, accountID)
	if err != nil {
		return nil, err
	}

	result := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func jsonOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
