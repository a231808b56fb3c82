package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ajramos/gmail-inbox/internal/config"
	"github.com/ajramos/gmail-inbox/internal/db"
	"go.uber.org/zap"
)

// Account is one registered Gmail account
type Account struct {
	Alias     string `json:"alias"`
	Email     string `json:"email"`
	TokenPath string `json:"token_path"`
	Active    bool   `json:"active"`
}

// AccountStore persists the account registry
type AccountStore interface {
	Upsert(ctx context.Context, row db.AccountRow) error
	List(ctx context.Context) ([]db.AccountRow, error)
	SetActive(ctx context.Context, alias string) error
	Delete(ctx context.Context, alias string) error
}

// AccountServiceImpl keeps exactly one account active and rotates between
// accounts in alias order
type AccountServiceImpl struct {
	store  AccountStore
	logger *zap.Logger
	mu     sync.Mutex
}

// NewAccountService creates an account service over store
func NewAccountService(store AccountStore, logger *zap.Logger) *AccountServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountServiceImpl{store: store, logger: logger}
}

// Seed registers the configured accounts. When no account is active yet,
// preferred (or the first alias) becomes active.
func (s *AccountServiceImpl) Seed(ctx context.Context, entries []config.AccountEntry, preferred string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if err := s.store.Upsert(ctx, db.AccountRow{Alias: e.Alias, Email: e.Email, TokenPath: e.TokenPath()}); err != nil {
			return fmt.Errorf("register account %s: %w", e.Alias, err)
		}
	}
	accounts, err := s.listLocked(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}
	if preferred != "" {
		return s.setActiveLocked(ctx, accounts, preferred)
	}
	if _, ok := activeOf(accounts); ok {
		return nil
	}
	return s.store.SetActive(ctx, accounts[0].Alias)
}

// List returns all accounts sorted by alias
func (s *AccountServiceImpl) List(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx)
}

func (s *AccountServiceImpl) listLocked(ctx context.Context) ([]Account, error) {
	if s.store == nil {
		return nil, fmt.Errorf("account store not initialized")
	}
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, Account{Alias: r.Alias, Email: r.Email, TokenPath: r.TokenPath, Active: r.Active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

func activeOf(accounts []Account) (int, bool) {
	for i, a := range accounts {
		if a.Active {
			return i, true
		}
	}
	return -1, false
}

// Active returns the active account
func (s *AccountServiceImpl) Active(ctx context.Context) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.listLocked(ctx)
	if err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{}, ErrNoAccounts
	}
	if i, ok := activeOf(accounts); ok {
		return accounts[i], nil
	}
	return Account{}, ErrAccountNotActive
}

// SetActive makes alias the active account
func (s *AccountServiceImpl) SetActive(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.listLocked(ctx)
	if err != nil {
		return err
	}
	return s.setActiveLocked(ctx, accounts, alias)
}

func (s *AccountServiceImpl) setActiveLocked(ctx context.Context, accounts []Account, alias string) error {
	found := false
	for _, a := range accounts {
		if a.Alias == alias {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, alias)
	}
	if err := s.store.SetActive(ctx, alias); err != nil {
		return fmt.Errorf("activate account %s: %w", alias, err)
	}
	s.logger.Info("account activated", zap.String("alias", alias))
	return nil
}

// SwitchToNext activates the account following the active one in alias
// order, wrapping around
func (s *AccountServiceImpl) SwitchToNext(ctx context.Context) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.listLocked(ctx)
	if err != nil {
		return Account{}, err
	}
	switch len(accounts) {
	case 0:
		return Account{}, ErrNoAccounts
	case 1:
		return Account{}, ErrNoOtherAccount
	}
	i, ok := activeOf(accounts)
	if !ok {
		i = -1
	}
	next := accounts[(i+1)%len(accounts)]
	if err := s.setActiveLocked(ctx, accounts, next.Alias); err != nil {
		return Account{}, err
	}
	next.Active = true
	return next, nil
}

// UpdateEmail records the mailbox address of alias
func (s *AccountServiceImpl) UpdateEmail(ctx context.Context, alias, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.listLocked(ctx)
	if err != nil {
		return err
	}
	for _, a := range accounts {
		if a.Alias == alias {
			return s.store.Upsert(ctx, db.AccountRow{Alias: alias, Email: email, TokenPath: a.TokenPath})
		}
	}
	return fmt.Errorf("%w: %s", ErrAccountNotFound, alias)
}

// Remove deletes alias. Removing the active account activates the next one.
func (s *AccountServiceImpl) Remove(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.listLocked(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i, a := range accounts {
		if a.Alias == alias {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, alias)
	}
	if err := s.store.Delete(ctx, alias); err != nil {
		return fmt.Errorf("remove account %s: %w", alias, err)
	}
	s.logger.Info("account removed", zap.String("alias", alias))

	if accounts[idx].Active && len(accounts) > 1 {
		next := accounts[(idx+1)%len(accounts)]
		return s.store.SetActive(ctx, next.Alias)
	}
	return nil
}
