package export

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
	"storeledger/internal/storage"
)

// Money is a decimal amount that always crosses the wire with two decimal
// places.
type Money struct {
	decimal.Decimal
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.StringFixed(2))
}

// Bucket names shared by the wizard capture flow and the balance sheet.
const (
	BucketBank       = "bank_accounts"
	BucketMerchant   = "merchant_accounts"
	BucketInventory  = "inventory"
	BucketReceivable = "receivables"
	BucketLiability  = "liabilities"
)

// BucketForType assigns an account type to the wizard bucket that collects
// it. Unmapped asset types return "".
func BucketForType(typeName string, category core.Category) string {
	switch typeName {
	case "Bank Checking", "Bank Savings":
		return BucketBank
	case "Merchant Account", "Intercompany Receivable", "Points":
		return BucketMerchant
	case "Inventory":
		return BucketInventory
	case "Order Receivable", "Tax Refund", "Loan Receivable":
		return BucketReceivable
	}
	if category == core.CategoryLiability {
		return BucketLiability
	}
	return ""
}

// longTermLiability reports whether a liability type sits below the current
// liabilities on the statement.
func longTermLiability(typeName string) bool {
	return strings.Contains(typeName, "Loan") || strings.Contains(typeName, "Mortgage")
}

// BalanceSheet is the presentation of one snapshot: a categorized tree of
// asset and liability buckets with per-bucket subtotals and the snapshot's
// aggregated figures. Amounts are shown as magnitudes.
type BalanceSheet struct {
	StoreName        string              `json:"store_name"`
	SnapshotDate     core.Date           `json:"snapshot_date"`
	Status           core.SnapshotStatus `json:"status"`
	Assets           AssetSection        `json:"assets"`
	Liabilities      LiabilitySection    `json:"liabilities"`
	TotalAssets      Money               `json:"total_assets"`
	TotalLiabilities Money               `json:"total_liabilities"`
	NetPosition      Money               `json:"net_position"`
	YTDSales         Money               `json:"ytd_sales"`
	YTDProfit        Money               `json:"ytd_profit"`
	ProfitMargin     Money               `json:"profit_margin"`
}

// AssetSection groups asset balances into the buckets the statement
// renders: current assets (bank, merchant, inventory) and other assets.
type AssetSection struct {
	BankAccounts     []Row `json:"bank_accounts"`
	MerchantAccounts []Row `json:"merchant_accounts"`
	Inventory        []Row `json:"inventory"`
	OtherAssets      []Row `json:"other_assets"`
	CurrentTotal     Money `json:"current_total"`
	OtherTotal       Money `json:"other_total"`
}

// LiabilitySection splits liabilities into current and long-term buckets.
type LiabilitySection struct {
	CurrentLiabilities []Row `json:"current_liabilities"`
	LongTerm           []Row `json:"long_term"`
	CurrentTotal       Money `json:"current_total"`
	LongTermTotal      Money `json:"long_term_total"`
}

// Row is one account's captured balance.
type Row struct {
	AccountName string `json:"account_name"`
	TypeName    string `json:"type_name"`
	BankName    string `json:"bank_name,omitempty"`
	Balance     Money  `json:"balance"`
	Notes       string `json:"notes,omitempty"`
}

// BuildBalanceSheet assembles the bucketed view from a snapshot and its
// joined line items. Items arrive ordered by type sort order then account
// name, so buckets keep that order.
func BuildBalanceSheet(storeName string, snap core.Snapshot, items []storage.BalanceLineItem) BalanceSheet {
	sheet := BalanceSheet{
		StoreName:    storeName,
		SnapshotDate: snap.Date,
		Status:       snap.Status,
		Assets: AssetSection{
			BankAccounts:     []Row{},
			MerchantAccounts: []Row{},
			Inventory:        []Row{},
			OtherAssets:      []Row{},
		},
		Liabilities: LiabilitySection{
			CurrentLiabilities: []Row{},
			LongTerm:           []Row{},
		},
		TotalAssets:      Money{snap.TotalAssets},
		TotalLiabilities: Money{snap.TotalLiabilities},
		NetPosition:      Money{snap.NetPosition},
		YTDSales:         Money{snap.YTDSales},
		YTDProfit:        Money{snap.YTDProfit},
		ProfitMargin:     Money{snap.ProfitMargin},
	}

	var assetCurrent, assetOther, liabCurrent, liabLong decimal.Decimal

	for _, it := range items {
		amount := it.Balance.Balance.Abs()
		row := Row{
			AccountName: it.AccountName,
			TypeName:    it.TypeName,
			BankName:    it.BankName,
			Balance:     Money{amount},
			Notes:       it.Balance.Notes,
		}
		if it.Category == core.CategoryLiability {
			if longTermLiability(it.TypeName) {
				sheet.Liabilities.LongTerm = append(sheet.Liabilities.LongTerm, row)
				liabLong = liabLong.Add(amount)
			} else {
				sheet.Liabilities.CurrentLiabilities = append(sheet.Liabilities.CurrentLiabilities, row)
				liabCurrent = liabCurrent.Add(amount)
			}
			continue
		}
		switch BucketForType(it.TypeName, it.Category) {
		case BucketBank:
			sheet.Assets.BankAccounts = append(sheet.Assets.BankAccounts, row)
			assetCurrent = assetCurrent.Add(amount)
		case BucketMerchant:
			sheet.Assets.MerchantAccounts = append(sheet.Assets.MerchantAccounts, row)
			assetCurrent = assetCurrent.Add(amount)
		case BucketInventory:
			sheet.Assets.Inventory = append(sheet.Assets.Inventory, row)
			assetCurrent = assetCurrent.Add(amount)
		default:
			sheet.Assets.OtherAssets = append(sheet.Assets.OtherAssets, row)
			assetOther = assetOther.Add(amount)
		}
	}

	sheet.Assets.CurrentTotal = Money{assetCurrent}
	sheet.Assets.OtherTotal = Money{assetOther}
	sheet.Liabilities.CurrentTotal = Money{liabCurrent}
	sheet.Liabilities.LongTermTotal = Money{liabLong}
	return sheet
}
