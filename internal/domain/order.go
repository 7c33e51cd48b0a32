package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusProcessed OrderStatus = "processed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

var statusRank = map[OrderStatus]int{
	OrderStatusPlaced:    0,
	OrderStatusProcessed: 1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// CanTransitionTo reports whether an order may move from one status to
// another. Status only moves forward; going back or standing still is
// rejected.
func CanTransitionTo(from, to OrderStatus) bool {
	f, okFrom := statusRank[from]
	t, okTo := statusRank[to]
	return okFrom && okTo && t > f
}

// Order is the immutable snapshot created at checkout. Items, address and
// money fields are frozen copies of the cart's state at creation time; later
// cart mutations never touch a placed order. Only Status and UpdatedAt change
// after creation, driven by fulfillment.
type Order struct {
	ID              string          `json:"id,omitempty"`
	UserEmail       string          `json:"userEmail"`
	Items           []CartLine      `json:"items"`
	ShippingAddress Address         `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Tax             decimal.Decimal `json:"tax"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderFromCart freezes a cart into an order snapshot. Totals are recomputed
// from the lines here rather than copied, so a stale cached total can never
// end up on an order.
func OrderFromCart(c Cart, userEmail string) Order {
	t := ComputeTotals(c.Lines)
	return Order{
		UserEmail:       NormalizeKey(userEmail),
		Items:           cloneLines(c.Lines),
		ShippingAddress: c.ShippingAddress,
		PaymentMethod:   c.PaymentMethod,
		Subtotal:        t.Subtotal,
		ShippingCost:    t.Shipping,
		Tax:             t.Tax,
		TotalAmount:     t.Total,
		Status:          OrderStatusPlaced,
	}
}
