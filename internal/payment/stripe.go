package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// allowed shipping destinations, matching the storefront's checkout
var shippingCountries = []string{"US", "CA", "GB"}

type stripeGateway struct {
	api     *client.API
	baseURL string
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewStripeGateway builds a Gateway backed by Stripe Checkout. The
// HTTP client timeout bounds every call; failed calls are not retried
// here, compensation is the caller's job.
func NewStripeGateway(secretKey, baseURL string, timeout time.Duration, logger *zap.Logger) Gateway {
	backends := stripe.NewBackends(&http.Client{Timeout: timeout})

	api := &client.API{}
	api.Init(secretKey, backends)

	return &stripeGateway{
		api:     api,
		baseURL: baseURL,
		logger:  logger,
		tracer:  otel.Tracer("payment/stripe_gateway"),
	}
}

func (g *stripeGateway) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	ctx, span := g.tracer.Start(ctx, "StripeGateway.CreateSession")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.Int64("total_amount", req.TotalAmount),
		attribute.Int("line_count", len(req.Lines)),
	)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(g.baseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(g.baseURL + "/payment/cancel"),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(shippingCountries),
		},
		BillingAddressCollection: stripe.String("required"),
	}
	params.Context = ctx

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(string(stripe.CurrencyUSD)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
				UnitAmount: stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	userID := req.UserID
	if userID == "" {
		userID = GuestUserID
	}
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("user_id", userID)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			g.logger,
			"Failed to create stripe checkout session",
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	return &Session{ID: sess.ID, RedirectURL: sess.URL}, nil
}

func (g *stripeGateway) RetrieveSession(ctx context.Context, token string) (*SessionRecord, error) {
	ctx, span := g.tracer.Start(ctx, "StripeGateway.RetrieveSession")
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := g.api.CheckoutSessions.Get(token, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrSessionNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			g.logger,
			"Failed to retrieve stripe checkout session",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to retrieve payment session: %w", err)
	}

	record := &SessionRecord{
		ID:      sess.ID,
		Paid:    sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		OrderID: sess.Metadata["order_id"],
		UserID:  sess.Metadata["user_id"],
	}

	if sess.PaymentIntent != nil {
		record.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil {
		record.CustomerEmail = sess.CustomerDetails.Email
		record.BillingAddress = toAddress(sess.CustomerDetails.Address)
	}
	if sess.CollectedInformation != nil && sess.CollectedInformation.ShippingDetails != nil {
		record.ShippingAddress = toAddress(sess.CollectedInformation.ShippingDetails.Address)
	}

	return record, nil
}

func toAddress(addr *stripe.Address) *Address {
	if addr == nil {
		return nil
	}

	return &Address{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}
