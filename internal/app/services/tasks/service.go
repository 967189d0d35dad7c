// Package tasks manages follow-up items created by users or by the
// create_task workflow action.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/task"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// Service manages tasks for an account.
type Service struct {
	accounts storage.AccountStore
	store    storage.TaskStore
	log      *logger.Logger
}

// New constructs a task service.
func New(accounts storage.AccountStore, store storage.TaskStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tasks")
	}
	return &Service{accounts: accounts, store: store, log: log}
}

// Create registers a task. New tasks start open.
func (s *Service) Create(ctx context.Context, tk task.Task) (task.Task, error) {
	tk.Title = strings.TrimSpace(tk.Title)
	if tk.Title == "" {
		return task.Task{}, fmt.Errorf("title is required")
	}
	if strings.TrimSpace(tk.AccountID) == "" {
		return task.Task{}, fmt.Errorf("account_id is required")
	}

	if s.accounts != nil {
		if _, err := s.accounts.GetAccount(ctx, tk.AccountID); err != nil {
			return task.Task{}, fmt.Errorf("account validation failed: %w", err)
		}
	}

	if tk.Status == "" {
		tk.Status = task.StatusOpen
	}
	if tk.Status != task.StatusOpen && tk.Status != task.StatusDone {
		return task.Task{}, fmt.Errorf("unknown status %q", tk.Status)
	}

	created, err := s.store.CreateTask(ctx, tk)
	if err != nil {
		return task.Task{}, err
	}
	s.log.WithField("task_id", created.ID).
		WithField("account_id", created.AccountID).
		Info("task created")
	return created, nil
}

// Update applies partial modifications to a task. Nil fields are left
// untouched.
func (s *Service) Update(ctx context.Context, id string, title, description, assignee, status *string, dueAt *time.Time) (task.Task, error) {
	tk, err := s.store.GetTask(ctx, id)
	if err != nil {
		return task.Task{}, err
	}

	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return task.Task{}, fmt.Errorf("title cannot be empty")
		}
		tk.Title = trimmed
	}
	if description != nil {
		tk.Description = strings.TrimSpace(*description)
	}
	if assignee != nil {
		tk.Assignee = strings.TrimSpace(*assignee)
	}
	if status != nil {
		next := strings.TrimSpace(strings.ToLower(*status))
		if next != task.StatusOpen && next != task.StatusDone {
			return task.Task{}, fmt.Errorf("unknown status %q", *status)
		}
		tk.Status = next
	}
	if dueAt != nil {
		tk.DueAt = *dueAt
	}

	updated, err := s.store.UpdateTask(ctx, tk)
	if err != nil {
		return task.Task{}, err
	}
	s.log.WithField("task_id", id).Info("task updated")
	return updated, nil
}

// Get fetches a task by identifier.
func (s *Service) Get(ctx context.Context, id string) (task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks, optionally scoped to an account.
func (s *Service) List(ctx context.Context, accountID string) ([]task.Task, error) {
	return s.store.ListTasks(ctx, accountID)
}
