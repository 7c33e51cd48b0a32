package domain

import "github.com/shopspring/decimal"

// Flat-rate shipping and tax rate used for the client-side estimate shown at
// checkout. Not a ledger of record.
var (
	ShippingFlat = decimal.RequireFromString("9.99")
	TaxRate      = decimal.RequireFromString("0.10")
)

type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// SubtotalOf sums unitPrice × quantity over the lines.
func SubtotalOf(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// ComputeTotals is the single place derived cart money is produced.
//
//	subtotal = Σ unitPrice × quantity
//	tax      = round2(subtotal × 0.10)
//	total    = round2(subtotal + shipping + tax)
func ComputeTotals(lines []CartLine) Totals {
	subtotal := SubtotalOf(lines).Round(2)
	tax := subtotal.Mul(TaxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Shipping: ShippingFlat,
		Tax:      tax,
		Total:    subtotal.Add(ShippingFlat).Add(tax).Round(2),
	}
}
