package domain

import "time"

type OrderEventItem struct {
	VariantID string `json:"variant_id"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
}

type OrderPaidEvent struct {
	OrderID         string           `json:"order_id"`
	Email           string           `json:"email,omitempty"`
	TotalAmount     int64            `json:"total_amount"`
	PaymentIntentID string           `json:"payment_intent_id"`
	Items           []OrderEventItem `json:"items"`
	PaidAt          time.Time        `json:"paid_at"`
}

// OrderCancelledEvent keeps the payment reference when the order was
// cancelled after capture, so a reconciliation consumer can refund.
type OrderCancelledEvent struct {
	OrderID         string    `json:"order_id"`
	Email           string    `json:"email,omitempty"`
	Reason          string    `json:"reason"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	CancelledAt     time.Time `json:"cancelled_at"`
}

type OrderShippedEvent struct {
	OrderID        string    `json:"order_id"`
	Email          string    `json:"email,omitempty"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"tracking_number"`
	ShippedAt      time.Time `json:"shipped_at"`
}
