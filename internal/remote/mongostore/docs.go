package mongostore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

// Persistence shapes. Money travels as decimal strings so nothing is ever
// coerced through binary floating point on the way to or from the store.

type lineDoc struct {
	ProductID string `bson:"product_id"`
	Name      string `bson:"name"`
	Image     string `bson:"image"`
	UnitPrice string `bson:"unit_price"`
	Quantity  int    `bson:"quantity"`
}

type addressDoc struct {
	FullName   string `bson:"full_name"`
	Line1      string `bson:"line1"`
	Line2      string `bson:"line2,omitempty"`
	City       string `bson:"city"`
	PostalCode string `bson:"postal_code"`
	Country    string `bson:"country"`
	Phone      string `bson:"phone,omitempty"`
}

type cartDoc struct {
	Key             string     `bson:"identity_key"`
	Lines           []lineDoc  `bson:"lines"`
	ShippingAddress addressDoc `bson:"shipping_address"`
	PaymentMethod   string     `bson:"payment_method"`
	Subtotal        string     `bson:"subtotal"`
	Shipping        string     `bson:"shipping"`
	Tax             string     `bson:"tax"`
	Total           string     `bson:"total"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

type orderDoc struct {
	ID              string     `bson:"_id,omitempty"`
	UserEmail       string     `bson:"user_email"`
	Items           []lineDoc  `bson:"items"`
	ShippingAddress addressDoc `bson:"shipping_address"`
	PaymentMethod   string     `bson:"payment_method"`
	Subtotal        string     `bson:"subtotal"`
	ShippingCost    string     `bson:"shipping_cost"`
	Tax             string     `bson:"tax"`
	TotalAmount     string     `bson:"total_amount"`
	Status          string     `bson:"status"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
}

func linesFrom(lines []domain.CartLine) []lineDoc {
	out := make([]lineDoc, 0, len(lines))
	for _, l := range lines {
		out = append(out, lineDoc{
			ProductID: l.ProductID,
			Name:      l.Name,
			Image:     l.Image,
			UnitPrice: l.UnitPrice.String(),
			Quantity:  l.Quantity,
		})
	}
	return out
}

func linesToDomain(docs []lineDoc) ([]domain.CartLine, error) {
	out := make([]domain.CartLine, 0, len(docs))
	for _, d := range docs {
		price, err := decimal.NewFromString(d.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("bad unit price %q for product %s: %w", d.UnitPrice, d.ProductID, err)
		}
		out = append(out, domain.CartLine{
			ProductID: d.ProductID,
			Name:      d.Name,
			Image:     d.Image,
			UnitPrice: price,
			Quantity:  d.Quantity,
		})
	}
	return out, nil
}

func addressFrom(a domain.Address) addressDoc {
	return addressDoc(a)
}

func (d addressDoc) toDomain() domain.Address {
	return domain.Address(d)
}

func cartDocFrom(identityKey string, cart domain.Cart) cartDoc {
	return cartDoc{
		Key:             identityKey,
		Lines:           linesFrom(cart.Lines),
		ShippingAddress: addressFrom(cart.ShippingAddress),
		PaymentMethod:   string(cart.PaymentMethod),
		Subtotal:        cart.Subtotal.String(),
		Shipping:        cart.Shipping.String(),
		Tax:             cart.Tax.String(),
		Total:           cart.Total.String(),
		UpdatedAt:       cart.UpdatedAt,
	}
}

func (d cartDoc) toDomain() (domain.Cart, error) {
	lines, err := linesToDomain(d.Lines)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := domain.Cart{
		Key:             d.Key,
		Lines:           lines,
		ShippingAddress: d.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		UpdatedAt:       d.UpdatedAt,
	}
	// Totals are derived; recomputing beats trusting the stored strings.
	return cart.Repriced(), nil
}

func orderDocFrom(order domain.Order) orderDoc {
	return orderDoc{
		ID:              order.ID,
		UserEmail:       order.UserEmail,
		Items:           linesFrom(order.Items),
		ShippingAddress: addressFrom(order.ShippingAddress),
		PaymentMethod:   string(order.PaymentMethod),
		Subtotal:        order.Subtotal.String(),
		ShippingCost:    order.ShippingCost.String(),
		Tax:             order.Tax.String(),
		TotalAmount:     order.TotalAmount.String(),
		Status:          string(order.Status),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func (d orderDoc) toDomain() (domain.Order, error) {
	items, err := linesToDomain(d.Items)
	if err != nil {
		return domain.Order{}, err
	}
	money := make(map[string]decimal.Decimal, 4)
	for name, raw := range map[string]string{
		"subtotal": d.Subtotal, "shipping_cost": d.ShippingCost,
		"tax": d.Tax, "total_amount": d.TotalAmount,
	} {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("bad %s %q on order %s: %w", name, raw, d.ID, err)
		}
		money[name] = v
	}
	return domain.Order{
		ID:              d.ID,
		UserEmail:       d.UserEmail,
		Items:           items,
		ShippingAddress: d.ShippingAddress.toDomain(),
		PaymentMethod:   domain.PaymentMethod(d.PaymentMethod),
		Subtotal:        money["subtotal"],
		ShippingCost:    money["shipping_cost"],
		Tax:             money["tax"],
		TotalAmount:     money["total_amount"],
		Status:          domain.OrderStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}
