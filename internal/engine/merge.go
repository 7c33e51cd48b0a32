package engine

import (
	"sort"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

// Merge additively reconciles two carts: for every product present in either
// cart the merged quantity is the sum of both quantities, reflecting that
// items added while offline are additive, never overwriting. Quantities make
// the merge commutative and associative; display metadata and the checkout
// fields come from whichever cart was updated more recently, so the result
// does not depend on argument order either. Merged lines are ordered by
// product id and totals are recomputed from scratch.
//
// Merging an empty cart into anything returns that cart's lines unchanged,
// which is what makes the clear-snapshot-after-commit sequence idempotent.
func Merge(a, b domain.Cart) domain.Cart {
	newer, older := a, b
	if b.UpdatedAt.After(a.UpdatedAt) {
		newer, older = b, a
	}

	byID := make(map[string]domain.CartLine, len(newer.Lines)+len(older.Lines))
	for _, l := range newer.Lines {
		byID[l.ProductID] = l
	}
	for _, l := range older.Lines {
		cur, ok := byID[l.ProductID]
		if !ok {
			byID[l.ProductID] = l
			continue
		}
		cur.Quantity += l.Quantity
		if cur.Name == "" {
			cur.Name = l.Name
		}
		if cur.Image == "" {
			cur.Image = l.Image
		}
		if cur.UnitPrice.IsZero() {
			cur.UnitPrice = l.UnitPrice
		}
		byID[l.ProductID] = cur
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]domain.CartLine, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, byID[id])
	}

	merged := domain.Cart{
		Key:             newer.Key,
		Lines:           lines,
		ShippingAddress: newer.ShippingAddress,
		PaymentMethod:   newer.PaymentMethod,
		UpdatedAt:       newer.UpdatedAt,
	}
	if merged.Key == "" {
		merged.Key = older.Key
	}
	if merged.ShippingAddress.IsZero() {
		merged.ShippingAddress = older.ShippingAddress
	}
	if merged.PaymentMethod == "" {
		merged.PaymentMethod = older.PaymentMethod
	}
	return merged.Repriced()
}
