package payment

import (
	"context"
	"errors"
)

var (
	ErrSessionNotFound = errors.New("payment session not found")
	ErrNoOrderMetadata = errors.New("payment session has no order metadata")
)

// GuestUserID is the correlation value used when no registered user is
// acting.
const GuestUserID = "guest"

type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

type SessionRequest struct {
	OrderID       string
	UserID        string
	CustomerEmail string
	Lines         []LineItem
	TotalAmount   int64
}

type Session struct {
	ID          string
	RedirectURL string
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// SessionRecord is the gateway's authoritative view of a payment
// session, fetched by the buyer-presented confirmation token.
type SessionRecord struct {
	ID              string
	Paid            bool
	OrderID         string
	UserID          string
	CustomerEmail   string
	PaymentIntentID string
	ShippingAddress *Address
	BillingAddress  *Address
}

// Gateway is the outbound payment boundary. CreateSession embeds the
// order id as opaque correlation metadata; RetrieveSession resolves a
// confirmation token back to it.
type Gateway interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, token string) (*SessionRecord, error)
}
