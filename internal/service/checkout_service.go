package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/payment"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"github.com/wenbo68/tonytonyshopper/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CheckoutRequest carries either a registered user id or a guest
// email, never both. Lines may be empty for registered users, in which
// case the persisted cart is used.
type CheckoutRequest struct {
	UserID     string
	GuestEmail string
	Lines      []domain.CartLine
}

type CheckoutResult struct {
	OrderID     string
	RedirectURL string
}

type CheckoutService interface {
	Initiate(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error)
}

type checkoutService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	orderRepo  repository.OrderRepository
	cartRepo   repository.CartRepository
	cartReader CartReader
	gateway    payment.Gateway
	cb         *gobreaker.CircuitBreaker
	tracer     trace.Tracer
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	cartReader CartReader,
	gateway payment.Gateway,
) CheckoutService {
	return &checkoutService{
		pool:       pool,
		logger:     logger,
		orderRepo:  orderRepo,
		cartRepo:   cartRepo,
		cartReader: cartReader,
		gateway:    gateway,
		cb:         newGatewayBreaker("CheckoutGateway", logger),
		tracer:     otel.Tracer("checkout_service"),
	}
}

func (s *checkoutService) Initiate(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Initiate")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", req.UserID),
		attribute.Int("line_count", len(req.Lines)),
	)

	if req.UserID == "" && req.GuestEmail == "" {
		return nil, ErrGuestEmailRequired
	}

	lines := req.Lines
	if len(lines) == 0 && req.UserID != "" {
		persisted, err := s.cartRepo.GetUserCart(ctx, req.UserID)
		if err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to load user cart",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to load cart: %w", err)
		}
		lines = persisted
	}

	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	cart, err := s.cartReader.Resolve(ctx, lines)
	if err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to resolve cart",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)

		return nil, err
	}

	order := s.buildOrder(req, cart)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)
		err := tx.Rollback(shutdownCtx)

		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				shutdownCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	if req.UserID != "" {
		superseded, err := s.orderRepo.CancelPendingByUser(ctx, tx, req.UserID)
		if err != nil {
			return nil, err
		}

		if superseded > 0 {
			mylogger.Info(
				ctx,
				s.logger,
				"Superseded stale pending orders",
				zap.String("user_id", req.UserID),
				zap.Int64("count", superseded),
			)
		}
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	sessionReq := &payment.SessionRequest{
		OrderID:       order.ID,
		UserID:        req.UserID,
		CustomerEmail: req.GuestEmail,
		TotalAmount:   order.TotalAmount,
	}
	for _, item := range order.Items {
		sessionReq.Lines = append(sessionReq.Lines, payment.LineItem{
			Name:       item.Name,
			UnitAmount: item.PriceAtPurchase,
			Quantity:   int64(item.Quantity),
		})
	}

	sess, err := utils.ExecuteWithBreaker(s.cb, func() (*payment.Session, error) {
		return s.gateway.CreateSession(ctx, sessionReq)
	})
	if err != nil {
		span.RecordError(err)

		// the order is already committed; without a session nobody can
		// ever pay it, so cancel right away
		if cancelErr := s.orderRepo.MarkCancelled(ctx, order.ID); cancelErr != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to cancel order after gateway failure",
				zap.String("order_id", order.ID),
				zap.Error(cancelErr),
			)
		}

		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("payment gateway unavailable: %w", err)
		}

		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Checkout session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", sess.ID),
		zap.Int64("total_amount", order.TotalAmount),
	)

	return &CheckoutResult{OrderID: order.ID, RedirectURL: sess.RedirectURL}, nil
}

func (s *checkoutService) buildOrder(req *CheckoutRequest, cart *ResolvedCart) *domain.Order {
	order := &domain.Order{
		ID:     "order_" + uuid.NewString(),
		Status: domain.OrderStatusPending,
	}

	if req.UserID != "" {
		userID := req.UserID
		order.UserID = &userID
	} else {
		guestEmail := req.GuestEmail
		order.GuestEmail = &guestEmail
	}

	for _, item := range cart.Items {
		order.Items = append(order.Items, domain.OrderItem{
			VariantID:       item.Snapshot.ID,
			Name:            item.Snapshot.DisplayName(),
			Quantity:        item.Quantity,
			PriceAtPurchase: item.Snapshot.Price,
		})
	}

	order.CalculateTotal()

	return order
}

func newGatewayBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}
