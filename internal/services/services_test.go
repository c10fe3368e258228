package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

// testEnv wires all services against a throwaway SQLite database. AMQP is
// left nil, publishing is optional and skipped without a client.
type testEnv struct {
	repo      *storage.Repository
	snapshots *SnapshotService
	catalog   *CatalogService
	wizard    *WizardService
	imports   *ImportService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	snapshots := NewSnapshotService(repo, nil)
	return &testEnv{
		repo:      repo,
		snapshots: snapshots,
		catalog:   NewCatalogService(repo),
		wizard:    NewWizardService(repo, snapshots),
		imports:   NewImportService(repo, snapshots),
	}
}

// fixture is a minimal catalog: one store with a checking account, a
// merchant account, and a credit card.
type fixture struct {
	store    core.Store
	checking core.Account
	merchant core.Account
	card     core.Account
}

func (e *testEnv) seedFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	store, err := e.catalog.CreateStore(ctx, "Seal Skin", "SEAL")
	require.NoError(t, err)

	checkingType, err := e.catalog.CreateAccountType(ctx, "Bank Checking", core.CategoryAsset, 1)
	require.NoError(t, err)
	merchantType, err := e.catalog.CreateAccountType(ctx, "Merchant Account", core.CategoryAsset, 3)
	require.NoError(t, err)
	cardType, err := e.catalog.CreateAccountType(ctx, "Credit Card", core.CategoryLiability, 25)
	require.NoError(t, err)

	checking, err := e.catalog.CreateAccount(ctx, core.Account{
		StoreID: store.ID, TypeID: checkingType.ID, Name: "Seal Skin - Chase Checking", Active: true,
	})
	require.NoError(t, err)
	merchant, err := e.catalog.CreateAccount(ctx, core.Account{
		StoreID: store.ID, TypeID: merchantType.ID, Name: "Seal Skin - PayPal", Active: true,
	})
	require.NoError(t, err)
	card, err := e.catalog.CreateAccount(ctx, core.Account{
		StoreID: store.ID, TypeID: cardType.ID, Name: "Seal Skin - Credit Card", Active: true,
	})
	require.NoError(t, err)

	return fixture{store: store, checking: checking, merchant: merchant, card: card}
}

func (f fixture) submission(date core.Date) SnapshotInput {
	return SnapshotInput{
		StoreID: f.store.ID,
		Date:    date,
		Balances: []core.BalanceInput{
			{AccountID: f.checking.ID, Amount: dec("1000")},
			{AccountID: f.merchant.ID, Amount: dec("500.50")},
			{AccountID: f.card.ID, Amount: dec("-120")},
		},
		YTDSales:  dec("200000"),
		YTDProfit: dec("50000"),
		CreatedBy: "tester",
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
