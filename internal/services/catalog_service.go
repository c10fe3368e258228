package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

// CatalogService manages the reference data: stores, account types, banks,
// and accounts.
type CatalogService struct {
	repo *storage.Repository
}

func NewCatalogService(repo *storage.Repository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListStores(ctx context.Context, activeOnly bool) ([]core.Store, error) {
	stores, err := s.repo.Queries().ListStores(ctx, activeOnly)
	if err != nil {
		return nil, core.NewPersistenceError("list stores", err)
	}
	return stores, nil
}

func (s *CatalogService) GetStore(ctx context.Context, id int64) (core.Store, error) {
	store, err := s.repo.Queries().GetStore(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Store{}, core.NewNotFoundError("store", id)
		}
		return core.Store{}, core.NewPersistenceError("get store", err)
	}
	return store, nil
}

// CreateStore adds a store. Store codes are unique and normalized to upper
// case.
func (s *CatalogService) CreateStore(ctx context.Context, name, code string) (core.Store, error) {
	store := core.Store{Name: strings.TrimSpace(name), Code: strings.ToUpper(strings.TrimSpace(code))}
	if err := store.Validate(); err != nil {
		return core.Store{}, err
	}

	_, err := s.repo.Queries().GetStoreByCode(ctx, store.Code)
	switch {
	case err == nil:
		return core.Store{}, core.NewConflictError(fmt.Sprintf("store code %q already exists", store.Code))
	case !errors.Is(err, sql.ErrNoRows):
		return core.Store{}, core.NewPersistenceError("check store code", err)
	}

	created, err := s.repo.Queries().CreateStore(ctx, store.Name, store.Code, true)
	if err != nil {
		return core.Store{}, core.NewPersistenceError("create store", err)
	}
	slog.InfoContext(ctx, "Created store", "store_id", created.ID, "code", created.Code)
	return created, nil
}

func (s *CatalogService) ListAccountTypes(ctx context.Context) ([]core.AccountType, error) {
	types, err := s.repo.Queries().ListAccountTypes(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("list account types", err)
	}
	return types, nil
}

func (s *CatalogService) CreateAccountType(ctx context.Context, name string, category core.Category, sortOrder int) (core.AccountType, error) {
	t := core.AccountType{Name: strings.TrimSpace(name), Category: category, SortOrder: sortOrder}
	if err := t.Validate(); err != nil {
		return core.AccountType{}, err
	}

	_, err := s.repo.Queries().GetAccountTypeByName(ctx, t.Name)
	switch {
	case err == nil:
		return core.AccountType{}, core.NewConflictError(fmt.Sprintf("account type %q already exists", t.Name))
	case !errors.Is(err, sql.ErrNoRows):
		return core.AccountType{}, core.NewPersistenceError("check account type", err)
	}

	created, err := s.repo.Queries().CreateAccountType(ctx, t.Name, t.Category, t.SortOrder)
	if err != nil {
		return core.AccountType{}, core.NewPersistenceError("create account type", err)
	}
	return created, nil
}

// DeleteAccountType removes a type that no account references. A referenced
// type cannot be deleted.
func (s *CatalogService) DeleteAccountType(ctx context.Context, id int64) error {
	n, err := s.repo.Queries().CountAccountsForType(ctx, id)
	if err != nil {
		return core.NewPersistenceError("count accounts for type", err)
	}
	if n > 0 {
		return core.NewConflictError(fmt.Sprintf("account type is used by %d accounts", n))
	}
	affected, err := s.repo.Queries().DeleteAccountType(ctx, id)
	if err != nil {
		return core.NewPersistenceError("delete account type", err)
	}
	if affected == 0 {
		return core.NewNotFoundError("account type", id)
	}
	return nil
}

func (s *CatalogService) ListBanks(ctx context.Context, activeOnly bool) ([]core.Bank, error) {
	banks, err := s.repo.Queries().ListBanks(ctx, activeOnly)
	if err != nil {
		return nil, core.NewPersistenceError("list banks", err)
	}
	return banks, nil
}

func (s *CatalogService) CreateBank(ctx context.Context, name string) (core.Bank, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Bank{}, core.NewValidationError("name", "bank name is required")
	}

	_, err := s.repo.Queries().GetBankByName(ctx, name)
	switch {
	case err == nil:
		return core.Bank{}, core.NewConflictError(fmt.Sprintf("bank %q already exists", name))
	case !errors.Is(err, sql.ErrNoRows):
		return core.Bank{}, core.NewPersistenceError("check bank", err)
	}

	created, err := s.repo.Queries().CreateBank(ctx, name, true)
	if err != nil {
		return core.Bank{}, core.NewPersistenceError("create bank", err)
	}
	return created, nil
}

// EnsureBank returns the bank with the given name, creating it when absent.
func (s *CatalogService) EnsureBank(ctx context.Context, name string) (core.Bank, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Bank{}, core.NewValidationError("name", "bank name is required")
	}
	bank, err := s.repo.Queries().GetBankByName(ctx, name)
	if err == nil {
		return bank, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Bank{}, core.NewPersistenceError("get bank", err)
	}
	created, err := s.repo.Queries().CreateBank(ctx, name, true)
	if err != nil {
		return core.Bank{}, core.NewPersistenceError("create bank", err)
	}
	return created, nil
}

func (s *CatalogService) ListAccounts(ctx context.Context, f storage.AccountFilter) ([]core.Account, error) {
	accounts, err := s.repo.Queries().ListAccounts(ctx, f)
	if err != nil {
		return nil, core.NewPersistenceError("list accounts", err)
	}
	return accounts, nil
}

func (s *CatalogService) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	account, err := s.repo.Queries().GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, core.NewNotFoundError("account", id)
		}
		return core.Account{}, core.NewPersistenceError("get account", err)
	}
	return account, nil
}

// CreateAccount adds an account to a store. Account names are unique per
// store; recreating an inactive account of the same name reactivates it
// instead.
func (s *CatalogService) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}

	if _, err := s.GetStore(ctx, a.StoreID); err != nil {
		return core.Account{}, err
	}
	if _, err := s.repo.Queries().GetAccountType(ctx, a.TypeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, core.NewNotFoundError("account type", a.TypeID)
		}
		return core.Account{}, core.NewPersistenceError("get account type", err)
	}

	existing, err := s.repo.Queries().GetAccountByStoreAndName(ctx, a.StoreID, a.Name)
	switch {
	case err == nil && existing.Active:
		return core.Account{}, core.NewConflictError(
			fmt.Sprintf("account %q already exists for this store", a.Name))
	case err == nil:
		if err := s.repo.Queries().SetAccountActive(ctx, existing.ID, true); err != nil {
			return core.Account{}, core.NewPersistenceError("reactivate account", err)
		}
		slog.InfoContext(ctx, "Reactivated account", "account_id", existing.ID, "name", existing.Name)
		return s.GetAccount(ctx, existing.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return core.Account{}, core.NewPersistenceError("check account", err)
	}

	a.Active = true
	id, err := s.repo.Queries().CreateAccount(ctx, a)
	if err != nil {
		return core.Account{}, core.NewPersistenceError("create account", err)
	}
	slog.InfoContext(ctx, "Created account", "account_id", id, "store_id", a.StoreID, "name", a.Name)
	return s.GetAccount(ctx, id)
}

// DeleteAccount removes an account. An account that appears in stored
// snapshot balances is deactivated instead of removed, preserving history.
func (s *CatalogService) DeleteAccount(ctx context.Context, id int64) (deactivated bool, err error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return false, err
	}

	hasBalances, err := s.repo.Queries().AccountHasBalances(ctx, id)
	if err != nil {
		return false, core.NewPersistenceError("check account balances", err)
	}
	if hasBalances {
		if err := s.repo.Queries().SetAccountActive(ctx, id, false); err != nil {
			return false, core.NewPersistenceError("deactivate account", err)
		}
		slog.InfoContext(ctx, "Deactivated account with history", "account_id", id)
		return true, nil
	}

	if err := s.repo.Queries().DeleteAccount(ctx, id); err != nil {
		return false, core.NewPersistenceError("delete account", err)
	}
	slog.InfoContext(ctx, "Deleted account", "account_id", id)
	return false, nil
}
