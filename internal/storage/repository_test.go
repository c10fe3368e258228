package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedStore(t *testing.T, q *Queries, name, code string) core.Store {
	t.Helper()
	store, err := q.CreateStore(context.Background(), name, code, true)
	require.NoError(t, err)
	return store
}

func seedType(t *testing.T, q *Queries, name string, category core.Category, sortOrder int) core.AccountType {
	t.Helper()
	typ, err := q.CreateAccountType(context.Background(), name, category, sortOrder)
	require.NoError(t, err)
	return typ
}

func seedAccount(t *testing.T, q *Queries, storeID, typeID int64, name string) int64 {
	t.Helper()
	id, err := q.CreateAccount(context.Background(), core.Account{
		StoreID: storeID,
		TypeID:  typeID,
		Name:    name,
		Active:  true,
	})
	require.NoError(t, err)
	return id
}

func seedSnapshot(t *testing.T, q *Queries, storeID int64, date core.Date, status core.SnapshotStatus) int64 {
	t.Helper()
	id, err := q.CreateSnapshot(context.Background(), core.Snapshot{
		StoreID:   storeID,
		Date:      date,
		Status:    status,
		CreatedBy: "test",
	})
	require.NoError(t, err)
	return id
}

func TestStoreCRUD(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	assert.Equal(t, "Seal Outlet", store.Name)
	assert.Equal(t, "SEAL", store.Code)
	assert.True(t, store.Active)
	assert.NotZero(t, store.ID)

	got, err := q.GetStore(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ID, got.ID)

	byCode, err := q.GetStoreByCode(ctx, "SEAL")
	require.NoError(t, err)
	assert.Equal(t, store.ID, byCode.ID)

	_, err = q.GetStore(ctx, 9999)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	seedStore(t, q, "Boat Supply", "BOAT")
	stores, err := q.ListStores(ctx, true)
	require.NoError(t, err)
	assert.Len(t, stores, 2)

	count, err := q.CountStores(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestListStoresActiveFilter(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	seedStore(t, q, "Active Store", "ACT")
	inactive, err := q.CreateStore(ctx, "Closed Store", "CLOSED", false)
	require.NoError(t, err)
	assert.False(t, inactive.Active)

	active, err := q.ListStores(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "ACT", active[0].Code)

	all, err := q.ListStores(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAccountTypeOrderingAndDelete(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	card := seedType(t, q, "Credit Card", core.CategoryLiability, 21)
	checking := seedType(t, q, "Bank Checking", core.CategoryAsset, 1)
	savings := seedType(t, q, "Bank Savings", core.CategoryAsset, 2)

	types, err := q.ListAccountTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 3)
	assert.Equal(t, []string{"Bank Checking", "Bank Savings", "Credit Card"},
		[]string{types[0].Name, types[1].Name, types[2].Name})

	byName, err := q.GetAccountTypeByName(ctx, "Bank Savings")
	require.NoError(t, err)
	assert.Equal(t, savings.ID, byName.ID)

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	seedAccount(t, q, store.ID, checking.ID, "Main Checking")

	inUse, err := q.CountAccountsForType(ctx, checking.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inUse)

	affected, err := q.DeleteAccountType(ctx, card.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	affected, err = q.DeleteAccountType(ctx, 9999)
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestAccountJoinedReads(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	other := seedStore(t, q, "Boat Supply", "BOAT")
	checking := seedType(t, q, "Bank Checking", core.CategoryAsset, 1)
	merchant := seedType(t, q, "Merchant Account", core.CategoryAsset, 3)

	bank, err := q.CreateBank(ctx, "First National", true)
	require.NoError(t, err)

	id, err := q.CreateAccount(ctx, core.Account{
		StoreID: store.ID,
		TypeID:  checking.ID,
		BankID:  &bank.ID,
		Name:    "Main Checking",
		Number:  "XX-1234",
		Active:  true,
	})
	require.NoError(t, err)
	seedAccount(t, q, store.ID, merchant.ID, "Stripe")
	seedAccount(t, q, other.ID, checking.ID, "Boat Checking")

	got, err := q.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Main Checking", got.Name)
	assert.Equal(t, "XX-1234", got.Number)
	require.NotNil(t, got.Type)
	assert.Equal(t, core.CategoryAsset, got.Type.Category)
	require.NotNil(t, got.Bank)
	assert.Equal(t, "First National", got.Bank.Name)

	byName, err := q.GetAccountByStoreAndName(ctx, store.ID, "Stripe")
	require.NoError(t, err)
	assert.Nil(t, byName.Bank, "account without bank keeps nil join")

	forStore, err := q.ListAccounts(ctx, AccountFilter{StoreID: store.ID})
	require.NoError(t, err)
	assert.Len(t, forStore, 2)

	forType, err := q.ListAccounts(ctx, AccountFilter{TypeID: checking.ID})
	require.NoError(t, err)
	assert.Len(t, forType, 2)

	require.NoError(t, q.SetAccountActive(ctx, id, false))
	activeOnly, err := q.ListAccounts(ctx, AccountFilter{StoreID: store.ID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "Stripe", activeOnly[0].Name)
}

func TestAccountHasBalancesAndDelete(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	checking := seedType(t, q, "Bank Checking", core.CategoryAsset, 1)
	used := seedAccount(t, q, store.ID, checking.ID, "Main Checking")
	unused := seedAccount(t, q, store.ID, checking.ID, "Spare Checking")

	snapID := seedSnapshot(t, q, store.ID, core.NewDate(2024, 6, 30), core.StatusDraft)
	_, err := q.InsertBalance(ctx, core.AccountBalance{
		SnapshotID: snapID,
		AccountID:  used,
		Balance:    dec("100"),
	})
	require.NoError(t, err)

	has, err := q.AccountHasBalances(ctx, used)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = q.AccountHasBalances(ctx, unused)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, q.DeleteAccount(ctx, unused))
	_, err = q.GetAccount(ctx, unused)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	id, err := q.CreateSnapshot(ctx, core.Snapshot{
		StoreID:          store.ID,
		Date:             core.NewDate(2024, 6, 30),
		Status:           core.StatusCompleted,
		TotalAssets:      dec("1500.50"),
		TotalLiabilities: dec("420.00"),
		NetPosition:      dec("1080.50"),
		YTDSales:         dec("200000"),
		YTDProfit:        dec("50000"),
		ProfitMargin:     dec("25"),
		CreatedBy:        "tester",
		Notes:            "month end",
	})
	require.NoError(t, err)

	got, err := q.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.ID, got.StoreID)
	assert.Equal(t, "2024-06-30", got.Date.String())
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.True(t, got.TotalAssets.Equal(dec("1500.50")))
	assert.True(t, got.NetPosition.Equal(dec("1080.50")))
	assert.Equal(t, "tester", got.CreatedBy)
	assert.Equal(t, "month end", got.Notes)

	got.TotalAssets = dec("1600")
	got.NetPosition = dec("1180")
	got.Notes = "corrected"
	require.NoError(t, q.UpdateSnapshotTotals(ctx, got))

	updated, err := q.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, updated.TotalAssets.Equal(dec("1600")))
	assert.Equal(t, "corrected", updated.Notes)
}

func TestListSnapshotsFilters(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	seal := seedStore(t, q, "Seal Outlet", "SEAL")
	boat := seedStore(t, q, "Boat Supply", "BOAT")

	seedSnapshot(t, q, seal.ID, core.NewDate(2024, 4, 30), core.StatusCompleted)
	seedSnapshot(t, q, seal.ID, core.NewDate(2024, 5, 31), core.StatusCompleted)
	seedSnapshot(t, q, seal.ID, core.NewDate(2024, 6, 30), core.StatusDraft)
	seedSnapshot(t, q, boat.ID, core.NewDate(2024, 6, 30), core.StatusCompleted)

	all, err := q.ListSnapshots(ctx, SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2024-06-30", all[0].Date.String(), "newest first")

	forSeal, err := q.ListSnapshots(ctx, SnapshotFilter{StoreID: seal.ID})
	require.NoError(t, err)
	assert.Len(t, forSeal, 3)

	completed, err := q.ListSnapshots(ctx, SnapshotFilter{Status: core.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 3)

	from := core.NewDate(2024, 5, 1)
	to := core.NewDate(2024, 5, 31)
	may, err := q.ListSnapshots(ctx, SnapshotFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, may, 1)
	assert.Equal(t, "2024-05-31", may[0].Date.String())

	limited, err := q.ListSnapshots(ctx, SnapshotFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListDrafts(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	checking := seedType(t, q, "Bank Checking", core.CategoryAsset, 1)
	acct := seedAccount(t, q, store.ID, checking.ID, "Main Checking")

	draftID := seedSnapshot(t, q, store.ID, core.NewDate(2024, 6, 30), core.StatusDraft)
	seedSnapshot(t, q, store.ID, core.NewDate(2024, 5, 31), core.StatusCompleted)

	_, err := q.InsertBalance(ctx, core.AccountBalance{SnapshotID: draftID, AccountID: acct, Balance: dec("10")})
	require.NoError(t, err)
	_, err = q.InsertBalance(ctx, core.AccountBalance{SnapshotID: draftID, AccountID: acct, Balance: dec("20")})
	require.NoError(t, err)

	drafts, err := q.ListDrafts(ctx)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draftID, drafts[0].Snapshot.ID)
	assert.Equal(t, "Seal Outlet", drafts[0].StoreName)
	assert.EqualValues(t, 2, drafts[0].BalanceCount)
}

func TestDeleteSnapshotCascadesBalances(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	checking := seedType(t, q, "Bank Checking", core.CategoryAsset, 1)
	acct := seedAccount(t, q, store.ID, checking.ID, "Main Checking")
	snapID := seedSnapshot(t, q, store.ID, core.NewDate(2024, 6, 30), core.StatusDraft)

	_, err := q.InsertBalance(ctx, core.AccountBalance{SnapshotID: snapID, AccountID: acct, Balance: dec("10")})
	require.NoError(t, err)

	affected, err := q.DeleteSnapshot(ctx, snapID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	count, err := q.CountSnapshotBalances(ctx, snapID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLatestCompletedPerStore(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	seal := seedStore(t, q, "Seal Outlet", "SEAL")
	boat := seedStore(t, q, "Boat Supply", "BOAT")
	quiet := seedStore(t, q, "Quiet Store", "QUIET")

	seedSnapshot(t, q, seal.ID, core.NewDate(2024, 4, 30), core.StatusCompleted)
	latestSeal := seedSnapshot(t, q, seal.ID, core.NewDate(2024, 5, 31), core.StatusCompleted)
	seedSnapshot(t, q, seal.ID, core.NewDate(2024, 6, 30), core.StatusDraft)
	latestBoat := seedSnapshot(t, q, boat.ID, core.NewDate(2024, 3, 31), core.StatusCompleted)

	latest, err := q.LatestCompletedSnapshot(ctx, seal.ID)
	require.NoError(t, err)
	assert.Equal(t, latestSeal, latest.ID)

	_, err = q.LatestCompletedSnapshot(ctx, quiet.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	perStore, err := q.LatestCompletedPerStore(ctx)
	require.NoError(t, err)
	require.Len(t, perStore, 2)
	assert.Equal(t, latestSeal, perStore[seal.ID].ID)
	assert.Equal(t, latestBoat, perStore[boat.ID].ID)
}

func TestExportBookkeeping(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	first := seedSnapshot(t, q, store.ID, core.NewDate(2024, 4, 30), core.StatusCompleted)
	second := seedSnapshot(t, q, store.ID, core.NewDate(2024, 5, 31), core.StatusCompleted)
	seedSnapshot(t, q, store.ID, core.NewDate(2024, 6, 30), core.StatusDraft)

	pending, err := q.ListUnexportedSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2, "drafts never export")
	assert.Equal(t, first, pending[0].ID, "oldest first")

	require.NoError(t, q.MarkSnapshotExported(ctx, first, time.Now()))

	pending, err = q.ListUnexportedSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	limited, err := q.ListUnexportedSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, limited)
}

func TestBalanceMetricsRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	merchant := seedType(t, q, "Merchant Account", core.CategoryAsset, 3)
	acct := seedAccount(t, q, store.ID, merchant.ID, "Stripe")
	snapID := seedSnapshot(t, q, store.ID, core.NewDate(2024, 6, 30), core.StatusDraft)

	sales := dec("15000.55")
	spend := dec("3000")
	cpa := dec("12.5")
	profit := dec("4000")
	orders := int64(240)

	_, err := q.InsertBalance(ctx, core.AccountBalance{
		SnapshotID: snapID,
		AccountID:  acct,
		Balance:    dec("-75.25"),
		Points:     1200,
		Sales:      &sales,
		Orders:     &orders,
		Spend:      &spend,
		CPA:        &cpa,
		Profit:     &profit,
		Notes:      "mid-month payout",
	})
	require.NoError(t, err)

	balances, err := q.ListSnapshotBalances(ctx, snapID)
	require.NoError(t, err)
	require.Len(t, balances, 1)

	b := balances[0]
	assert.True(t, b.Balance.Equal(dec("-75.25")), "signed balance preserved")
	assert.EqualValues(t, 1200, b.Points)
	require.NotNil(t, b.Sales)
	assert.True(t, b.Sales.Equal(sales))
	require.NotNil(t, b.Orders)
	assert.EqualValues(t, 240, *b.Orders)
	require.NotNil(t, b.CPA)
	assert.True(t, b.CPA.Equal(cpa))
	assert.Equal(t, "mid-month payout", b.Notes)
}

func TestListSnapshotLineItemsOrdering(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	checking := seedType(t, q, "Bank Checking", core.CategoryAsset, 1)
	card := seedType(t, q, "Credit Card", core.CategoryLiability, 21)

	bank, err := q.CreateBank(ctx, "First National", true)
	require.NoError(t, err)

	cardAcct := seedAccount(t, q, store.ID, card.ID, "Visa")
	zChecking := seedAccount(t, q, store.ID, checking.ID, "Zeta Checking")
	aChecking, err := q.CreateAccount(ctx, core.Account{
		StoreID: store.ID, TypeID: checking.ID, BankID: &bank.ID, Name: "Alpha Checking", Active: true,
	})
	require.NoError(t, err)

	snapID := seedSnapshot(t, q, store.ID, core.NewDate(2024, 6, 30), core.StatusCompleted)
	for acct, amount := range map[int64]string{cardAcct: "-300", zChecking: "50", aChecking: "100"} {
		_, err := q.InsertBalance(ctx, core.AccountBalance{SnapshotID: snapID, AccountID: acct, Balance: dec(amount)})
		require.NoError(t, err)
	}

	items, err := q.ListSnapshotLineItems(ctx, snapID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Alpha Checking", items[0].AccountName, "type sort order then account name")
	assert.Equal(t, "First National", items[0].BankName)
	assert.Equal(t, "Zeta Checking", items[1].AccountName)
	assert.Empty(t, items[1].BankName)
	assert.Equal(t, "Visa", items[2].AccountName)
	assert.Equal(t, core.CategoryLiability, items[2].Category)
}

func TestWizardSessionLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	store := seedStore(t, q, "Seal Outlet", "SEAL")
	date := core.NewDate(2024, 6, 30)

	sess, err := q.CreateWizardSession(ctx, "tok-123", store.ID, &date)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.CurrentStep)
	require.NotNil(t, sess.SnapshotDate)
	assert.Equal(t, "2024-06-30", sess.SnapshotDate.String())
	assert.Nil(t, sess.CompletedAt)

	_, err = q.GetWizardSessionByToken(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, q.UpsertWizardStep(ctx, sess.ID, 1, json.RawMessage(`{"accounts":[1]}`)))
	require.NoError(t, q.UpsertWizardStep(ctx, sess.ID, 1, json.RawMessage(`{"accounts":[1,2]}`)))
	require.NoError(t, q.UpsertWizardStep(ctx, sess.ID, 3, json.RawMessage(`{}`)))

	steps, err := q.ListWizardSteps(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.JSONEq(t, `{"accounts":[1,2]}`, string(steps[1]), "upsert replaces the payload")

	require.NoError(t, q.UpdateWizardProgress(ctx, sess.ID, 3, nil))
	got, err := q.GetWizardSessionByToken(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentStep)
	require.NotNil(t, got.SnapshotDate)
	assert.Equal(t, "2024-06-30", got.SnapshotDate.String(), "nil date keeps the stored one")

	require.NoError(t, q.CompleteWizardSession(ctx, sess.ID, time.Now()))
	got, err = q.GetWizardSessionByToken(ctx, "tok-123")
	require.NoError(t, err)
	assert.NotNil(t, got.CompletedAt)
}

func TestHistoricalImports(t *testing.T) {
	repo := openTestRepo(t)
	q := repo.Queries()
	ctx := context.Background()

	id, err := q.InsertHistoricalImport(ctx, core.HistoricalImport{
		Filename:   "balances-2024-06.csv",
		ImportDate: time.Now(),
		Status:     "completed",
		Notes:      "3 snapshots",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	imports, err := q.ListHistoricalImports(ctx)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "balances-2024-06.csv", imports[0].Filename)
	assert.Equal(t, "completed", imports[0].Status)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(q *Queries) error {
		if _, err := q.CreateStore(ctx, "Doomed Store", "DOOM", true); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := repo.Queries().CountStores(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rolled back insert must not persist")

	err = repo.WithTx(ctx, func(q *Queries) error {
		_, err := q.CreateStore(ctx, "Kept Store", "KEEP", true)
		return err
	})
	require.NoError(t, err)

	count, err = repo.Queries().CountStores(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
