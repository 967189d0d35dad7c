package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeadWire-CRM/automation_layer/internal/app/domain/account"
	"github.com/LeadWire-CRM/automation_layer/internal/app/storage"
	"github.com/LeadWire-CRM/automation_layer/pkg/logger"
)

// Service manages tenant accounts.
type Service struct {
	store storage.AccountStore
	log   *logger.Logger
}

// New constructs an account service.
func New(store storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// Create provisions a new account. New accounts start active.
func (s *Service) Create(ctx context.Context, name, owner string, metadata map[string]string) (account.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return account.Account{}, fmt.Errorf("name is required")
	}

	acct := account.Account{
		Name:     name,
		Owner:    strings.TrimSpace(owner),
		Active:   true,
		Metadata: metadata,
	}
	created, err := s.store.CreateAccount(ctx, acct)
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("account_id", created.ID).Info("account created")
	return created, nil
}

// Update applies partial modifications to an account. Nil fields are left
// untouched.
func (s *Service) Update(ctx context.Context, id string, name, owner *string, active *bool, metadata map[string]string) (account.Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return account.Account{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return account.Account{}, fmt.Errorf("name cannot be empty")
		}
		acct.Name = trimmed
	}
	if owner != nil {
		acct.Owner = strings.TrimSpace(*owner)
	}
	if active != nil {
		acct.Active = *active
	}
	if metadata != nil {
		acct.Metadata = metadata
	}

	updated, err := s.store.UpdateAccount(ctx, acct)
	if err != nil {
		return account.Account{}, err
	}
	s.log.WithField("account_id", id).Info("account updated")
	return updated, nil
}

// Get fetches an account by identifier.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]account.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.log.WithField("account_id", id).Info("account deleted")
	return nil
}
