package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceLine pairs a signed balance with the category of its account's type.
type BalanceLine struct {
	Amount   decimal.Decimal
	Category Category
}

// Totals holds the aggregated figures stored on a snapshot. All values carry
// two fractional digits.
type Totals struct {
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	NetPosition      decimal.Decimal
	YTDSales         decimal.Decimal
	YTDProfit        decimal.Decimal
	ProfitMargin     decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// ComputeTotals aggregates snapshot totals from balance lines. Both asset and
// liability sides accumulate absolute values, so totals are never negative and
// NetPosition = TotalAssets - TotalLiabilities regardless of input signs.
// Profit margin is ytdProfit/ytdSales*100 when ytdSales > 0, else zero.
//
// The function is pure: identical input yields identical output, and the
// result does not depend on line ordering. A line with an unrecognized
// category fails with ErrUnknownCategory rather than being silently dropped.
func ComputeTotals(lines []BalanceLine, ytdSales, ytdProfit decimal.Decimal) (Totals, error) {
	assets := decimal.Zero
	liabilities := decimal.Zero

	for i, line := range lines {
		switch line.Category {
		case CategoryAsset:
			assets = assets.Add(line.Amount.Abs())
		case CategoryLiability:
			liabilities = liabilities.Add(line.Amount.Abs())
		default:
			return Totals{}, fmt.Errorf("balance line %d: %w: %q", i, ErrUnknownCategory, line.Category)
		}
	}

	margin := decimal.Zero
	if ytdSales.IsPositive() {
		margin = ytdProfit.Div(ytdSales).Mul(oneHundred)
	}

	return Totals{
		TotalAssets:      assets.Round(2),
		TotalLiabilities: liabilities.Round(2),
		NetPosition:      assets.Sub(liabilities).Round(2),
		YTDSales:         ytdSales.Round(2),
		YTDProfit:        ytdProfit.Round(2),
		ProfitMargin:     margin.Round(2),
	}, nil
}
