// Package pricing computes order totals. It is pure: no repositories, no
// clock, no I/O. Line items carry the unit prices captured when the cart was
// built, so a catalog price change mid-checkout can never alter an already
// quoted cart.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
)

var hundred = decimal.NewFromInt(100)

// LineItem is one cart position with its captured unit price.
type LineItem struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the result of a pricing run. FinalTotal = Total - Discount and is
// non-negative by construction: the discount is capped at the total.
type Totals struct {
	Total      decimal.Decimal
	Discount   decimal.Decimal
	FinalTotal decimal.Decimal
}

// ComputeTotals sums unitPrice * quantity over the items and applies the
// optional coupon rule. Fixed discounts are capped at the total; percentage
// discounts are rounded to 2 decimal places, half up, matching price storage
// precision.
func ComputeTotals(items []LineItem, rule *coupon.Rule) Totals {
	total := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	total = total.Round(2)

	discount := decimal.Zero
	if rule != nil {
		switch rule.Kind {
		case coupon.KindFixed:
			discount = decimal.Min(rule.Value, total)
		case coupon.KindPercentage:
			discount = total.Mul(rule.Value).Div(hundred).Round(2)
			if discount.GreaterThan(total) {
				discount = total
			}
		}
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	}

	return Totals{
		Total:      total,
		Discount:   discount,
		FinalTotal: total.Sub(discount),
	}
}
