// Package leads manages prospect records and hands their lifecycle events to
// the workflow engine.
package leads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/lead"
	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/workflow"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// AutomationHook receives lead lifecycle events after the store write
// commits. The workflow engine implements it; evaluation runs synchronously
// in the calling goroutine and reports nothing back, so lead writes succeed
// regardless of workflow outcomes.
type AutomationHook interface {
	LeadCreated(ctx context.Context, ld lead.Lead)
	LeadStatusChanged(ctx context.Context, change lead.StatusChange, ld lead.Lead)
}

// Service manages lead records and the lead activity feed.
type Service struct {
	accounts   storage.AccountStore
	store      storage.LeadStore
	logs       storage.ActionLogStore
	automation AutomationHook
	log        *logger.Logger
}

// New constructs a lead service.
func New(accounts storage.AccountStore, store storage.LeadStore, logs storage.ActionLogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leads")
	}
	return &Service{accounts: accounts, store: store, logs: logs, log: log}
}

// AttachAutomation wires the workflow engine in after construction. The
// engine is built on top of the same stores, so it cannot exist before the
// service does.
func (s *Service) AttachAutomation(hook AutomationHook) {
	s.automation = hook
}

// Create registers a lead. Status defaults to the start of the pipeline; a
// lead_created feed entry is appended and creation triggers are evaluated
// before the call returns.
func (s *Service) Create(ctx context.Context, ld lead.Lead) (lead.Lead, error) {
	ld.Name = strings.TrimSpace(ld.Name)
	if ld.Name == "" {
		return lead.Lead{}, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(ld.AccountID) == "" {
		return lead.Lead{}, fmt.Errorf("account_id is required")
	}

	if s.accounts != nil {
		if _, err := s.accounts.GetAccount(ctx, ld.AccountID); err != nil {
			return lead.Lead{}, fmt.Errorf("account validation failed: %w", err)
		}
	}

	if ld.Status == "" {
		ld.Status = lead.StatusNew
	}
	if !lead.ValidStatus(ld.Status) {
		return lead.Lead{}, fmt.Errorf("unknown status %q", ld.Status)
	}

	created, err := s.store.CreateLead(ctx, ld)
	if err != nil {
		return lead.Lead{}, err
	}

	s.appendFeed(ctx, workflow.ActionLog{
		AccountID:  created.AccountID,
		LeadID:     created.ID,
		ActionType: workflow.FeedLeadCreated,
		Result:     created.Status,
	})
	if s.automation != nil {
		s.automation.LeadCreated(ctx, created)
	}

	s.log.WithField("lead_id", created.ID).
		WithField("account_id", created.AccountID).
		Info("lead created")
	return created, nil
}

// Update applies partial modifications to a lead. Nil fields are left
// untouched. Status moves only through ChangeStatus so that every transition
// reaches the feed and the engine.
func (s *Service) Update(ctx context.Context, id string, name, email, phone, source, assignee *string, fields map[string]string) (lead.Lead, error) {
	ld, err := s.store.GetLead(ctx, id)
	if err != nil {
		return lead.Lead{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return lead.Lead{}, fmt.Errorf("name cannot be empty")
		}
		ld.Name = trimmed
	}
	if email != nil {
		ld.Email = strings.TrimSpace(*email)
	}
	if phone != nil {
		ld.Phone = strings.TrimSpace(*phone)
	}
	if source != nil {
		ld.Source = strings.TrimSpace(*source)
	}
	if assignee != nil {
		ld.Assignee = strings.TrimSpace(*assignee)
	}
	if fields != nil {
		ld.Fields = fields
	}

	updated, err := s.store.UpdateLead(ctx, ld)
	if err != nil {
		return lead.Lead{}, err
	}
	s.log.WithField("lead_id", id).Info("lead updated")
	return updated, nil
}

// ChangeStatus moves a lead through the pipeline, appends a status_changed
// feed entry and evaluates status triggers synchronously. The updated lead is
// returned regardless of workflow outcomes. Setting the current status again
// is a no-op.
func (s *Service) ChangeStatus(ctx context.Context, id, status string) (lead.Lead, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if !lead.ValidStatus(status) {
		return lead.Lead{}, fmt.Errorf("unknown status %q", status)
	}

	ld, err := s.store.GetLead(ctx, id)
	if err != nil {
		return lead.Lead{}, err
	}
	if ld.Status == status {
		return ld, nil
	}

	now := time.Now().UTC()
	change := lead.StatusChange{
		AccountID: ld.AccountID,
		LeadID:    ld.ID,
		OldStatus: ld.Status,
		NewStatus: status,
		At:        now,
	}
	ld.Status = status
	ld.StatusChangedAt = now

	updated, err := s.store.UpdateLead(ctx, ld)
	if err != nil {
		return lead.Lead{}, err
	}

	s.appendFeed(ctx, workflow.ActionLog{
		AccountID:  updated.AccountID,
		LeadID:     updated.ID,
		ActionType: workflow.FeedStatusChanged,
		Result:     change.OldStatus + " -> " + change.NewStatus,
		Timestamp:  now,
	})
	if s.automation != nil {
		s.automation.LeadStatusChanged(ctx, change, updated)
	}

	s.log.WithField("lead_id", id).
		WithField("account_id", updated.AccountID).
		WithField("old_status", change.OldStatus).
		WithField("new_status", change.NewStatus).
		Info("lead status changed")
	return updated, nil
}

// Get fetches a lead by identifier.
func (s *Service) Get(ctx context.Context, id string) (lead.Lead, error) {
	return s.store.GetLead(ctx, id)
}

// List returns leads, optionally scoped to an account.
func (s *Service) List(ctx context.Context, accountID string) ([]lead.Lead, error) {
	return s.store.ListLeads(ctx, accountID)
}

// Delete removes a lead. Feed entries referencing it are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteLead(ctx, id); err != nil {
		return err
	}
	s.log.WithField("lead_id", id).Info("lead deleted")
	return nil
}

// Activity returns the lead's feed: lifecycle entries plus every workflow
// action that ran against it, oldest first.
func (s *Service) Activity(ctx context.Context, leadID string) ([]workflow.ActionLog, error) {
	if s.logs == nil {
		return nil, nil
	}
	return s.logs.ListActionLogs(ctx, "", "", leadID)
}

// appendFeed writes a lifecycle entry, logging instead of failing when the
// store rejects it.
func (s *Service) appendFeed(ctx context.Context, entry workflow.ActionLog) {
	if s.logs == nil {
		return
	}
	if _, err := s.logs.AppendActionLog(ctx, entry); err != nil {
		s.log.WithError(err).
			WithField("lead_id", entry.LeadID).
			Warn("feed append failed")
	}
}
