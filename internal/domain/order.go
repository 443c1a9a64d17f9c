package domain

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusShipped   OrderStatus = "shipped"
)

// CanTransition reports whether the order state machine allows moving
// from s to next. pending goes to paid or cancelled, paid goes to
// shipped, terminal states go nowhere.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusShipped
	default:
		return false
	}
}

// Order owns its items. Exactly one of UserID and GuestEmail is set.
// TotalAmount is in minor currency units and is fixed at creation time.
type Order struct {
	ID              string          `db:"id"`
	UserID          *string         `db:"user_id"`
	GuestEmail      *string         `db:"guest_email"`
	Status          OrderStatus     `db:"status"`
	TotalAmount     int64           `db:"total_amount"`
	ShippingAddress json.RawMessage `db:"shipping_address"`
	BillingAddress  json.RawMessage `db:"billing_address"`
	PaymentIntentID *string         `db:"payment_intent_id"`
	CustomerEmail   *string         `db:"customer_email"`
	Carrier         *string         `db:"carrier"`
	TrackingNumber  *string         `db:"tracking_number"`
	Items           []OrderItem     `db:"items"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderItem struct {
	ID              int64  `db:"id"`
	OrderID         string `db:"order_id"`
	VariantID       string `db:"variant_id"`
	Name            string `db:"name"`
	Quantity        int32  `db:"quantity"`
	PriceAtPurchase int64  `db:"price_at_purchase"`
}

func (o *Order) CalculateTotal() {
	var total int64
	for _, item := range o.Items {
		total += item.PriceAtPurchase * int64(item.Quantity)
	}
	o.TotalAmount = total
}

// Owner returns the user id for registered buyers or the guest email
// otherwise. Used as correlation metadata on payment sessions.
func (o *Order) Owner() string {
	if o.UserID != nil {
		return *o.UserID
	}
	if o.GuestEmail != nil {
		return *o.GuestEmail
	}
	return ""
}

// Email returns the best known contact address: the one collected at
// payment time wins, guest checkout email is the fallback.
func (o *Order) Email() string {
	if o.CustomerEmail != nil && *o.CustomerEmail != "" {
		return *o.CustomerEmail
	}
	if o.GuestEmail != nil {
		return *o.GuestEmail
	}
	return ""
}
