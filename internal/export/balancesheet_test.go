package export

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func item(account, typeName string, category core.Category, sortOrder int, bank, balance, notes string) storage.BalanceLineItem {
	return storage.BalanceLineItem{
		Balance:     core.AccountBalance{Balance: dec(balance), Notes: notes},
		AccountName: account,
		TypeName:    typeName,
		Category:    category,
		SortOrder:   sortOrder,
		BankName:    bank,
	}
}

func sampleSnapshot() core.Snapshot {
	return core.Snapshot{
		ID:               10,
		StoreID:          1,
		Date:             core.NewDate(2024, 6, 30),
		Status:           core.StatusCompleted,
		TotalAssets:      dec("1530.50"),
		TotalLiabilities: dec("420.00"),
		NetPosition:      dec("1110.50"),
		YTDSales:         dec("200000"),
		YTDProfit:        dec("50000"),
		ProfitMargin:     dec("25.00"),
	}
}

func TestBucketForType(t *testing.T) {
	tests := []struct {
		typeName string
		category core.Category
		want     string
	}{
		{"Bank Checking", core.CategoryAsset, BucketBank},
		{"Bank Savings", core.CategoryAsset, BucketBank},
		{"Merchant Account", core.CategoryAsset, BucketMerchant},
		{"Intercompany Receivable", core.CategoryAsset, BucketMerchant},
		{"Points", core.CategoryAsset, BucketMerchant},
		{"Inventory", core.CategoryAsset, BucketInventory},
		{"Order Receivable", core.CategoryAsset, BucketReceivable},
		{"Tax Refund", core.CategoryAsset, BucketReceivable},
		{"Loan Receivable", core.CategoryAsset, BucketReceivable},
		{"Credit Card", core.CategoryLiability, BucketLiability},
		{"Rent Payable", core.CategoryLiability, BucketLiability},
		{"Mystery Asset", core.CategoryAsset, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BucketForType(tt.typeName, tt.category), "type %q", tt.typeName)
	}
}

func TestBuildBalanceSheetBuckets(t *testing.T) {
	items := []storage.BalanceLineItem{
		item("Main Checking", "Bank Checking", core.CategoryAsset, 1, "First National", "1000.00", ""),
		item("Payroll Checking", "Bank Checking", core.CategoryAsset, 1, "First National", "500.50", ""),
		item("Stripe", "Merchant Account", core.CategoryAsset, 3, "", "30.00", "pending payout"),
		item("Warehouse Stock", "Inventory", core.CategoryAsset, 6, "", "250.00", ""),
		item("Pending Orders", "Order Receivable", core.CategoryAsset, 7, "", "80.00", ""),
		item("Visa", "Credit Card", core.CategoryLiability, 21, "First National", "-420.00", ""),
		item("Equipment Loan", "Loan Payable", core.CategoryLiability, 28, "", "-900.00", ""),
	}

	sheet := BuildBalanceSheet("Seal Outlet", sampleSnapshot(), items)

	assert.Equal(t, "Seal Outlet", sheet.StoreName)
	assert.Equal(t, "2024-06-30", sheet.SnapshotDate.String())
	assert.Equal(t, core.StatusCompleted, sheet.Status)

	require.Len(t, sheet.Assets.BankAccounts, 2)
	assert.Equal(t, "Main Checking", sheet.Assets.BankAccounts[0].AccountName)
	assert.Equal(t, "First National", sheet.Assets.BankAccounts[0].BankName)

	require.Len(t, sheet.Assets.MerchantAccounts, 1)
	assert.Equal(t, "pending payout", sheet.Assets.MerchantAccounts[0].Notes)

	require.Len(t, sheet.Assets.Inventory, 1)
	require.Len(t, sheet.Assets.OtherAssets, 1)
	assert.Equal(t, "Pending Orders", sheet.Assets.OtherAssets[0].AccountName)

	// Current assets cover bank + merchant + inventory.
	assert.True(t, sheet.Assets.CurrentTotal.Equal(dec("1780.50")), "current = %s", sheet.Assets.CurrentTotal)
	assert.True(t, sheet.Assets.OtherTotal.Equal(dec("80.00")))

	require.Len(t, sheet.Liabilities.CurrentLiabilities, 1)
	assert.True(t, sheet.Liabilities.CurrentLiabilities[0].Balance.Equal(dec("420.00")),
		"liability shown as magnitude, got %s", sheet.Liabilities.CurrentLiabilities[0].Balance)
	require.Len(t, sheet.Liabilities.LongTerm, 1)
	assert.Equal(t, "Equipment Loan", sheet.Liabilities.LongTerm[0].AccountName)
	assert.True(t, sheet.Liabilities.CurrentTotal.Equal(dec("420.00")))
	assert.True(t, sheet.Liabilities.LongTermTotal.Equal(dec("900.00")))
}

func TestBuildBalanceSheetNegativeAssetShownAsMagnitude(t *testing.T) {
	items := []storage.BalanceLineItem{
		item("Overdrawn", "Bank Checking", core.CategoryAsset, 1, "", "-75.25", ""),
	}
	sheet := BuildBalanceSheet("Seal Outlet", sampleSnapshot(), items)
	require.Len(t, sheet.Assets.BankAccounts, 1)
	assert.True(t, sheet.Assets.BankAccounts[0].Balance.Equal(dec("75.25")))
}

func TestBuildBalanceSheetEmptyItems(t *testing.T) {
	sheet := BuildBalanceSheet("Seal Outlet", sampleSnapshot(), nil)
	assert.Empty(t, sheet.Assets.BankAccounts)
	assert.Empty(t, sheet.Liabilities.CurrentLiabilities)
	assert.NotNil(t, sheet.Assets.OtherAssets, "buckets serialize as arrays, never null")
	assert.True(t, sheet.TotalAssets.Equal(dec("1530.50")), "totals come from the snapshot row")
}

func TestBalanceSheetJSONShape(t *testing.T) {
	items := []storage.BalanceLineItem{
		item("Main Checking", "Bank Checking", core.CategoryAsset, 1, "First National", "500", ""),
		item("Visa", "Credit Card", core.CategoryLiability, 21, "", "-420", ""),
	}
	raw, err := json.Marshal(BuildBalanceSheet("Seal Outlet", sampleSnapshot(), items))
	require.NoError(t, err)

	var decoded struct {
		Assets struct {
			BankAccounts []struct {
				AccountName string `json:"account_name"`
				Balance     string `json:"balance"`
			} `json:"bank_accounts"`
			CurrentTotal string `json:"current_total"`
			OtherAssets  []any  `json:"other_assets"`
			OtherTotal   string `json:"other_total"`
		} `json:"assets"`
		Liabilities struct {
			CurrentLiabilities []struct {
				Balance string `json:"balance"`
			} `json:"current_liabilities"`
			LongTerm      []any  `json:"long_term"`
			CurrentTotal  string `json:"current_total"`
			LongTermTotal string `json:"long_term_total"`
		} `json:"liabilities"`
		TotalAssets  string `json:"total_assets"`
		ProfitMargin string `json:"profit_margin"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	// Amounts always carry two decimal places on the wire.
	require.Len(t, decoded.Assets.BankAccounts, 1)
	assert.Equal(t, "500.00", decoded.Assets.BankAccounts[0].Balance)
	assert.Equal(t, "500.00", decoded.Assets.CurrentTotal)
	assert.Equal(t, "420.00", decoded.Liabilities.CurrentLiabilities[0].Balance)
	assert.Equal(t, "1530.50", decoded.TotalAssets)
	assert.Equal(t, "25.00", decoded.ProfitMargin)
	assert.NotNil(t, decoded.Assets.OtherAssets)
	assert.NotNil(t, decoded.Liabilities.LongTerm)
}
