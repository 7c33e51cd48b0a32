package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cod"
	PaymentOnline         PaymentMethod = "online"
)

// Product is the catalog-facing shape of an item that can be added to a cart.
type Product struct {
	ID    string
	Name  string
	Image string
	Price decimal.Decimal
}

type Address struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// CartLine is one product line in a cart. ProductID is unique within a cart
// and a line with quantity below one must not exist.
type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Cart holds one identity's shopping state. The four money fields are derived
// from Lines and are never independently settable; every operation that
// touches Lines recomputes them through ComputeTotals.
type Cart struct {
	Key             string        `json:"key,omitempty"`
	Lines           []CartLine    `json:"lines"`
	ShippingAddress Address       `json:"shippingAddress"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// EmptyCart returns a cart with no lines and totals derived from them.
func EmptyCart(key string) Cart {
	return Cart{
		Key:           key,
		PaymentMethod: PaymentCashOnDelivery,
	}.Repriced()
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// AddLine returns a copy of the cart with one more unit of the product: an
// existing line is incremented, otherwise a new line with quantity 1 is
// appended. The receiver is never mutated.
func (c Cart) AddLine(p Product) Cart {
	lines := cloneLines(c.Lines)
	found := false
	for i := range lines {
		if lines[i].ProductID == p.ID {
			lines[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			UnitPrice: p.Price,
			Quantity:  1,
		})
	}
	return c.withLines(lines)
}

// RemoveLine returns a copy of the cart without the given product.
func (c Cart) RemoveLine(productID string) Cart {
	lines := make([]CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	return c.withLines(lines)
}

// SetQuantity returns a copy of the cart with the product's quantity set to n.
// n below one removes the line, keeping the no-non-positive-quantity
// invariant.
func (c Cart) SetQuantity(productID string, n int) Cart {
	if n < 1 {
		return c.RemoveLine(productID)
	}
	lines := cloneLines(c.Lines)
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = n
			break
		}
	}
	return c.withLines(lines)
}

// Clear returns an empty cart for the same key. Shipping address and payment
// method are dropped with the lines; an order snapshot carries its own copy.
func (c Cart) Clear() Cart {
	return EmptyCart(c.Key)
}

func (c Cart) WithShippingAddress(a Address) Cart {
	c.Lines = cloneLines(c.Lines)
	c.ShippingAddress = a
	c.UpdatedAt = time.Now()
	return c
}

func (c Cart) WithPaymentMethod(pm PaymentMethod) Cart {
	c.Lines = cloneLines(c.Lines)
	c.PaymentMethod = pm
	c.UpdatedAt = time.Now()
	return c
}

// Repriced returns the cart with all derived money fields recomputed from its
// lines. Callers that accept a cart from outside the package use this instead
// of trusting whatever totals came with it.
func (c Cart) Repriced() Cart {
	t := ComputeTotals(c.Lines)
	c.Subtotal = t.Subtotal
	c.Shipping = t.Shipping
	c.Tax = t.Tax
	c.Total = t.Total
	return c
}

func (c Cart) withLines(lines []CartLine) Cart {
	c.Lines = lines
	c.UpdatedAt = time.Now()
	return c.Repriced()
}

func cloneLines(lines []CartLine) []CartLine {
	if len(lines) == 0 {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}

// NormalizeKey turns an email address into the stable identity key used for
// cart and order records.
func NormalizeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
