package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

// ImportService seeds the reference catalog and ingests bulk balance data
// from external spreadsheets.
type ImportService struct {
	repo      *storage.Repository
	snapshots *SnapshotService
}

func NewImportService(repo *storage.Repository, snapshots *SnapshotService) *ImportService {
	return &ImportService{
		repo:      repo,
		snapshots: snapshots,
	}
}

// SeedStats counts the catalog after seeding.
type SeedStats struct {
	Stores       int64 `json:"stores"`
	AccountTypes int64 `json:"account_types"`
	Banks        int64 `json:"banks"`
	Accounts     int64 `json:"accounts"`
}

type seedStore struct {
	code string
	name string
}

type seedType struct {
	name      string
	category  core.Category
	sortOrder int
}

type seedAccount struct {
	name   string
	typ    string
	bank   string
	number string
}

var seedStores = []seedStore{
	{"SEAL", "Seal Skin"},
	{"BOAT", "BoatCover"},
	{"JSC", "JetSkiCover"},
	{"DEB", "Debonair"},
	{"UTV", "UTV Cover"},
	{"YORK", "Slice Yorktown"},
	{"SOM", "Slice Somers"},
}

var seedTypes = []seedType{
	{"Bank Checking", core.CategoryAsset, 1},
	{"Bank Savings", core.CategoryAsset, 2},
	{"Merchant Account", core.CategoryAsset, 3},
	{"Intercompany Receivable", core.CategoryAsset, 4},
	{"Points", core.CategoryAsset, 5},
	{"Inventory", core.CategoryAsset, 6},
	{"Order Receivable", core.CategoryAsset, 7},
	{"Tax Refund", core.CategoryAsset, 8},
	{"Loan Receivable", core.CategoryAsset, 9},
	{"Management Fee", core.CategoryLiability, 20},
	{"Advertising Payable", core.CategoryLiability, 21},
	{"Pending Refunds", core.CategoryLiability, 22},
	{"Pending Shipments", core.CategoryLiability, 23},
	{"Shipping Payable", core.CategoryLiability, 24},
	{"Credit Card", core.CategoryLiability, 25},
	{"Container Duties", core.CategoryLiability, 26},
	{"Sales Tax Payable", core.CategoryLiability, 27},
	{"Vendor Payable", core.CategoryLiability, 28},
	{"Rent Payable", core.CategoryLiability, 29},
}

var seedBanks = []string{
	"Chase",
	"Capital One",
	"Amazon",
	"PayPal",
	"Shopify",
	"Points System",
	"Internal",
}

// seedAccountsFor lists the standard account set of one store. Intercompany
// receivables exist only for Seal Skin and rent accounts only for the two
// physical stores.
func seedAccountsFor(s seedStore) []seedAccount {
	accounts := []seedAccount{
		{s.name + " - Chase Checking", "Bank Checking", "Chase", "3456"},
		{s.name + " - Capital One", "Bank Checking", "Capital One", "1234"},
		{s.name + " - Amazon", "Merchant Account", "Amazon", ""},
		{s.name + " - PayPal", "Merchant Account", "PayPal", ""},
		{s.name + " - Shopify/Merchant", "Merchant Account", "Shopify", ""},
		{s.name + " - Points", "Points", "Points System", ""},
	}
	if s.code == "SEAL" {
		accounts = append(accounts,
			seedAccount{"BC owes Seal Skin", "Intercompany Receivable", "Internal", ""},
			seedAccount{"Debonair owes Seal Skin", "Intercompany Receivable", "Internal", ""},
			seedAccount{"JSC owes Seal Skin", "Intercompany Receivable", "Internal", ""},
			seedAccount{"UTV owes Seal Skin", "Intercompany Receivable", "Internal", ""},
		)
	}
	accounts = append(accounts,
		seedAccount{s.name + " - Live Inventory", "Inventory", "", ""},
		seedAccount{s.name + " - Order Q2 2025 Anma", "Order Receivable", "", ""},
		seedAccount{s.name + " - Order Q2 2025 Homful", "Order Receivable", "", ""},
		seedAccount{s.name + " - Order Q3 2025 Anma", "Order Receivable", "", ""},
		seedAccount{s.name + " - Order Q3 2025 Homful", "Order Receivable", "", ""},
		seedAccount{s.name + " - IRS REFUND PTET", "Tax Refund", "", ""},
		seedAccount{s.name + " - CarLoans", "Loan Receivable", "", ""},
		seedAccount{s.name + " - 7a Management Fee", "Management Fee", "", ""},
		seedAccount{s.name + " - AdsBing", "Advertising Payable", "", ""},
		seedAccount{s.name + " - AdsGoogle", "Advertising Payable", "", ""},
		seedAccount{s.name + " - AdsMeta", "Advertising Payable", "", ""},
		seedAccount{s.name + " - Pending Refunds", "Pending Refunds", "", ""},
		seedAccount{s.name + " - Pending Shipments", "Pending Shipments", "", ""},
		seedAccount{s.name + " - UPS/DHL/USPS Carriers", "Shipping Payable", "", ""},
		seedAccount{s.name + " - Credit Card", "Credit Card", "Chase", "9876"},
		seedAccount{s.name + " - Container Duties Due", "Container Duties", "", ""},
		seedAccount{s.name + " - Sales Tax owed", "Sales Tax Payable", "", ""},
		seedAccount{s.name + " - Balkans.io", "Vendor Payable", "", ""},
		seedAccount{s.name + " - WorldWeav", "Vendor Payable", "", ""},
	)
	if s.code == "YORK" || s.code == "SOM" {
		accounts = append(accounts,
			seedAccount{s.name + " - Rent Brewster", "Rent Payable", "", ""},
			seedAccount{s.name + " - Rent Hartford", "Rent Payable", "", ""},
		)
	}
	return accounts
}

// Seed creates the standard catalog: seven stores, the asset and liability
// type taxonomy, the bank list, and every store's standard accounts. Seeding
// is idempotent, existing rows are kept as they are.
func (s *ImportService) Seed(ctx context.Context) (SeedStats, error) {
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		stores := make(map[string]core.Store, len(seedStores))
		for _, sd := range seedStores {
			store, err := q.GetStoreByCode(ctx, sd.code)
			if errors.Is(err, sql.ErrNoRows) {
				store, err = q.CreateStore(ctx, sd.name, sd.code, true)
			}
			if err != nil {
				return fmt.Errorf("seed store %s: %w", sd.code, err)
			}
			stores[sd.code] = store
		}

		types := make(map[string]core.AccountType, len(seedTypes))
		for _, td := range seedTypes {
			t, err := q.GetAccountTypeByName(ctx, td.name)
			if errors.Is(err, sql.ErrNoRows) {
				t, err = q.CreateAccountType(ctx, td.name, td.category, td.sortOrder)
			}
			if err != nil {
				return fmt.Errorf("seed account type %s: %w", td.name, err)
			}
			types[t.Name] = t
		}

		banks := make(map[string]core.Bank, len(seedBanks))
		for _, name := range seedBanks {
			b, err := q.GetBankByName(ctx, name)
			if errors.Is(err, sql.ErrNoRows) {
				b, err = q.CreateBank(ctx, name, true)
			}
			if err != nil {
				return fmt.Errorf("seed bank %s: %w", name, err)
			}
			banks[b.Name] = b
		}

		for _, sd := range seedStores {
			store := stores[sd.code]
			for _, ad := range seedAccountsFor(sd) {
				_, err := q.GetAccountByStoreAndName(ctx, store.ID, ad.name)
				if err == nil {
					continue
				}
				if !errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("check seed account %s: %w", ad.name, err)
				}
				account := core.Account{
					StoreID: store.ID,
					TypeID:  types[ad.typ].ID,
					Name:    ad.name,
					Number:  ad.number,
					Active:  true,
				}
				if ad.bank != "" {
					bankID := banks[ad.bank].ID
					account.BankID = &bankID
				}
				if _, err := q.CreateAccount(ctx, account); err != nil {
					return fmt.Errorf("seed account %s: %w", ad.name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return SeedStats{}, core.NewPersistenceError("seed catalog", err)
	}

	stats, err := s.stats(ctx)
	if err != nil {
		return SeedStats{}, err
	}
	slog.InfoContext(ctx, "Seed data created",
		"stores", stats.Stores,
		"account_types", stats.AccountTypes,
		"banks", stats.Banks,
		"accounts", stats.Accounts)
	return stats, nil
}

// SeedIfEmpty seeds the catalog only when no stores exist yet.
func (s *ImportService) SeedIfEmpty(ctx context.Context) (SeedStats, bool, error) {
	n, err := s.repo.Queries().CountStores(ctx)
	if err != nil {
		return SeedStats{}, false, core.NewPersistenceError("count stores", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Catalog already populated, skipping seed", "stores", n)
		return SeedStats{}, false, nil
	}
	stats, err := s.Seed(ctx)
	if err != nil {
		return SeedStats{}, false, err
	}
	return stats, true, nil
}

func (s *ImportService) stats(ctx context.Context) (SeedStats, error) {
	var stats SeedStats
	var err error
	q := s.repo.Queries()
	if stats.Stores, err = q.CountStores(ctx); err != nil {
		return SeedStats{}, core.NewPersistenceError("count stores", err)
	}
	types, err := q.ListAccountTypes(ctx)
	if err != nil {
		return SeedStats{}, core.NewPersistenceError("list account types", err)
	}
	stats.AccountTypes = int64(len(types))
	banks, err := q.ListBanks(ctx, false)
	if err != nil {
		return SeedStats{}, core.NewPersistenceError("list banks", err)
	}
	stats.Banks = int64(len(banks))
	accounts, err := q.ListAccounts(ctx, storage.AccountFilter{})
	if err != nil {
		return SeedStats{}, core.NewPersistenceError("list accounts", err)
	}
	stats.Accounts = int64(len(accounts))
	return stats, nil
}

// BulkRow is one row of an historical spreadsheet export.
type BulkRow struct {
	StoreName   string          `json:"store_name"`
	AccountName string          `json:"account_name"`
	TypeName    string          `json:"type_name"`
	BankName    string          `json:"bank_name"`
	Balance     decimal.Decimal `json:"balance"`
	Notes       string          `json:"notes"`
}

// BulkImportResult summarizes one bulk ingestion.
type BulkImportResult struct {
	ImportID        int64    `json:"import_id"`
	Snapshots       []int64  `json:"snapshots"`
	AccountsCreated int      `json:"accounts_created"`
	BanksCreated    int      `json:"banks_created"`
	Skipped         []string `json:"skipped,omitempty"`
}

// BulkImport ingests historical rows as published snapshots, one snapshot
// per store present in the data. Store names match case-insensitively on
// name or code, including partial name matches. Unknown accounts are
// created on the fly, unknown banks likewise. Rows whose store cannot be
// matched are skipped and reported, they do not fail the import.
func (s *ImportService) BulkImport(ctx context.Context, filename string, snapshotDate core.Date, rows []BulkRow) (BulkImportResult, error) {
	if len(rows) == 0 {
		return BulkImportResult{}, core.NewValidationError("rows", "no rows to import")
	}
	if snapshotDate.IsZero() {
		return BulkImportResult{}, core.NewValidationError("snapshot_date", "snapshot date is required")
	}

	stores, err := s.repo.Queries().ListStores(ctx, false)
	if err != nil {
		return BulkImportResult{}, core.NewPersistenceError("list stores", err)
	}
	types, err := s.repo.Queries().ListAccountTypes(ctx)
	if err != nil {
		return BulkImportResult{}, core.NewPersistenceError("list account types", err)
	}
	typesByName := make(map[string]core.AccountType, len(types))
	for _, t := range types {
		typesByName[strings.ToLower(t.Name)] = t
	}

	var result BulkImportResult
	byStore := make(map[int64][]BulkRow)
	for _, row := range rows {
		store, ok := matchStore(stores, row.StoreName)
		if !ok {
			result.Skipped = append(result.Skipped,
				fmt.Sprintf("no store matches %q (account %q)", row.StoreName, row.AccountName))
			continue
		}
		byStore[store.ID] = append(byStore[store.ID], row)
	}
	if len(byStore) == 0 {
		return BulkImportResult{}, core.NewValidationError("rows", "no row matched a known store")
	}

	for storeID, storeRows := range byStore {
		var balances []core.BalanceInput
		for _, row := range storeRows {
			account, created, err := s.resolveAccount(ctx, storeID, row, typesByName)
			if err != nil {
				if core.IsValidation(err) {
					result.Skipped = append(result.Skipped, err.Error())
					continue
				}
				return BulkImportResult{}, err
			}
			if created.account {
				result.AccountsCreated++
			}
			if created.bank {
				result.BanksCreated++
			}
			balances = append(balances, core.BalanceInput{
				AccountID: account.ID,
				Amount:    row.Balance,
				Notes:     row.Notes,
			})
		}
		if len(balances) == 0 {
			continue
		}
		snap, err := s.snapshots.Publish(ctx, SnapshotInput{
			StoreID:   storeID,
			Date:      snapshotDate,
			Balances:  balances,
			CreatedBy: "import",
			Notes:     fmt.Sprintf("imported from %s", filename),
		})
		if err != nil {
			return BulkImportResult{}, fmt.Errorf("publish imported snapshot for store %d: %w", storeID, err)
		}
		result.Snapshots = append(result.Snapshots, snap.ID)
	}

	status := "completed"
	notes := fmt.Sprintf("%d snapshots, %d accounts created, %d rows skipped",
		len(result.Snapshots), result.AccountsCreated, len(result.Skipped))
	importID, err := s.repo.Queries().InsertHistoricalImport(ctx, core.HistoricalImport{
		Filename:   filename,
		ImportDate: time.Now().UTC(),
		Status:     status,
		Notes:      notes,
	})
	if err != nil {
		return BulkImportResult{}, core.NewPersistenceError("record historical import", err)
	}
	result.ImportID = importID

	slog.InfoContext(ctx, "Bulk import finished",
		"import_id", importID,
		"filename", filename,
		"snapshots", len(result.Snapshots),
		"skipped", len(result.Skipped))
	return result, nil
}

// ListImports returns past bulk imports, newest first.
func (s *ImportService) ListImports(ctx context.Context) ([]core.HistoricalImport, error) {
	imports, err := s.repo.Queries().ListHistoricalImports(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("list historical imports", err)
	}
	return imports, nil
}

type resolveCreated struct {
	account bool
	bank    bool
}

// resolveAccount finds or creates the account a bulk row refers to. An
// inactive account of the same name is reactivated.
func (s *ImportService) resolveAccount(ctx context.Context, storeID int64, row BulkRow, typesByName map[string]core.AccountType) (core.Account, resolveCreated, error) {
	var created resolveCreated
	name := strings.TrimSpace(row.AccountName)
	if name == "" {
		return core.Account{}, created, core.NewValidationError("account_name", "account name is required")
	}

	account, err := s.repo.Queries().GetAccountByStoreAndName(ctx, storeID, name)
	if err == nil {
		if !account.Active {
			if err := s.repo.Queries().SetAccountActive(ctx, account.ID, true); err != nil {
				return core.Account{}, created, core.NewPersistenceError("reactivate account", err)
			}
			account.Active = true
		}
		return account, created, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, created, core.NewPersistenceError("get account", err)
	}

	t, ok := typesByName[strings.ToLower(strings.TrimSpace(row.TypeName))]
	if !ok {
		return core.Account{}, created, core.NewValidationError("type_name",
			fmt.Sprintf("unknown account type %q for account %q", row.TypeName, name))
	}

	newAccount := core.Account{
		StoreID: storeID,
		TypeID:  t.ID,
		Name:    name,
		Active:  true,
	}
	if bankName := strings.TrimSpace(row.BankName); bankName != "" {
		bank, err := s.repo.Queries().GetBankByName(ctx, bankName)
		if errors.Is(err, sql.ErrNoRows) {
			bank, err = s.repo.Queries().CreateBank(ctx, bankName, true)
			if err == nil {
				created.bank = true
			}
		}
		if err != nil {
			return core.Account{}, created, core.NewPersistenceError("resolve bank", err)
		}
		newAccount.BankID = &bank.ID
	}

	id, err := s.repo.Queries().CreateAccount(ctx, newAccount)
	if err != nil {
		return core.Account{}, created, core.NewPersistenceError("create account", err)
	}
	created.account = true
	account, err = s.repo.Queries().GetAccount(ctx, id)
	if err != nil {
		return core.Account{}, created, core.NewPersistenceError("get created account", err)
	}
	return account, created, nil
}

// matchStore resolves a free-form store reference against the catalog. Exact
// code matches win, then exact name matches, then a single partial name
// match.
func matchStore(stores []core.Store, ref string) (core.Store, bool) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return core.Store{}, false
	}
	for _, s := range stores {
		if strings.ToLower(s.Code) == ref {
			return s, true
		}
	}
	for _, s := range stores {
		if strings.ToLower(s.Name) == ref {
			return s, true
		}
	}
	var (
		partial core.Store
		n       int
	)
	for _, s := range stores {
		if strings.Contains(strings.ToLower(s.Name), ref) {
			partial = s
			n++
		}
	}
	if n == 1 {
		return partial, true
	}
	return core.Store{}, false
}
