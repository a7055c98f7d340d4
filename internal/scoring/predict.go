package scoring

import (
	"lotwatch/internal/lots"

	"github.com/shopspring/decimal"
)

// DefaultCloseRatio is the fraction of retail a lot closes at when there is
// no history to learn from.
var DefaultCloseRatio = decimal.RequireFromString("0.35")

// MinIncrement is the smallest amount a new bid raises the price by.
var MinIncrement = decimal.NewFromInt(1)

// ClosedSample is the retail and final price of a lot that already closed.
type ClosedSample struct {
	Retail decimal.Decimal
	Close  decimal.Decimal
}

// CloseRatio is the mean close/retail ratio of `history`, samples with no
// retail price are ignored.
func CloseRatio(history []ClosedSample) decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, h := range history {
		if !h.Retail.IsPositive() || h.Close.IsNegative() {
			continue
		}
		sum = sum.Add(h.Close.Div(h.Retail))
		n++
	}
	if n == 0 {
		return DefaultCloseRatio
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// PredictClose estimates the closing price of a lot: the larger of the
// current bid and retail * CloseRatio(history), plus one increment for each
// bid already placed.
func PredictClose(lot lots.Lot, history []ClosedSample) decimal.Decimal {
	estimate := lot.RetailPrice.Mul(CloseRatio(history))
	if lot.CurrentBid.GreaterThan(estimate) {
		estimate = lot.CurrentBid
	}
	if lot.BidCount > 0 {
		estimate = estimate.Add(MinIncrement.Mul(decimal.NewFromInt(int64(lot.BidCount))))
	}
	return estimate.Round(2)
}
