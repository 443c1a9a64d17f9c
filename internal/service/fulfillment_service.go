package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/payment"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	outboxDomain "github.com/wenbo68/tonytonyshopper/pkg/outbox/domain"
	"github.com/wenbo68/tonytonyshopper/pkg/outbox/worker"
	"github.com/wenbo68/tonytonyshopper/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// VariantCacheInvalidator drops cached stock snapshots after a
// decrement commits.
type VariantCacheInvalidator interface {
	Invalidate(ctx context.Context, variantIDs []string)
}

type FulfillmentService interface {
	Confirm(ctx context.Context, sessionID string) (*domain.Order, error)
}

type fulfillmentService struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	orderRepo     repository.OrderRepository
	inventoryRepo repository.InventoryRepository
	cartRepo      repository.CartRepository
	outboxRepo    worker.OutboxRepository
	gateway       payment.Gateway
	cache         VariantCacheInvalidator
	cb            *gobreaker.CircuitBreaker
	tracer        trace.Tracer
}

func NewFulfillmentService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	inventoryRepo repository.InventoryRepository,
	cartRepo repository.CartRepository,
	outboxRepo worker.OutboxRepository,
	gateway payment.Gateway,
	cache VariantCacheInvalidator,
) FulfillmentService {
	return &fulfillmentService{
		pool:          pool,
		logger:        logger,
		orderRepo:     orderRepo,
		inventoryRepo: inventoryRepo,
		cartRepo:      cartRepo,
		outboxRepo:    outboxRepo,
		gateway:       gateway,
		cache:         cache,
		cb:            newGatewayBreaker("FulfillmentGateway", logger),
		tracer:        otel.Tracer("fulfillment_service"),
	}
}

// Confirm finalizes an order after the buyer returns from the payment
// gateway. The status move to paid is a compare-and-set that runs
// before any stock write, so a replayed or concurrent confirmation
// claims zero rows and reads the already-finalized order instead of
// decrementing stock twice.
func (s *fulfillmentService) Confirm(ctx context.Context, sessionID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "FulfillmentService.Confirm")
	defer span.End()

	record, err := utils.ExecuteWithBreaker(s.cb, func() (*payment.SessionRecord, error) {
		return s.gateway.RetrieveSession(ctx, sessionID)
	})
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("payment gateway unavailable: %w", err)
		}

		return nil, err
	}

	if record.OrderID == "" {
		mylogger.Error(
			ctx,
			s.logger,
			"Payment session carries no order reference",
			zap.String("session_id", sessionID),
		)

		return nil, payment.ErrNoOrderMetadata
	}

	span.SetAttributes(
		attribute.String("order_id", record.OrderID),
		attribute.Bool("paid", record.Paid),
	)

	if !record.Paid {
		mylogger.Info(
			ctx,
			s.logger,
			"Payment not completed, order left pending",
			zap.String("order_id", record.OrderID),
		)

		return nil, ErrPaymentNotCompleted
	}

	order, err := s.orderRepo.GetByID(ctx, record.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status != domain.OrderStatusPending {
		mylogger.Info(
			ctx,
			s.logger,
			"Order already finalized, confirmation is a no-op",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)

		return order, nil
	}

	finalized, err := s.finalize(ctx, order, record)
	if err != nil {
		var stockErr *OutOfStockError
		if errors.As(err, &stockErr) {
			s.compensate(ctx, order, record, stockErr.Error())
			return nil, err
		}

		// transient failure: the order stays pending and the
		// confirmation can be retried
		return nil, err
	}

	return finalized, nil
}

func (s *fulfillmentService) finalize(ctx context.Context, order *domain.Order, record *payment.SessionRecord) (*domain.Order, error) {
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

	shipping := marshalAddress(record.ShippingAddress)
	billing := marshalAddress(record.BillingAddress)

	err = s.orderRepo.MarkPaid(ctx, tx, order.ID, record.PaymentIntentID, record.CustomerEmail, shipping, billing)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotPending) {
			mylogger.Info(
				ctx,
				s.logger,
				"Order claimed by a concurrent confirmation",
				zap.String("order_id", order.ID),
			)

			return s.orderRepo.GetByID(ctx, order.ID)
		}

		return nil, err
	}

	items, err := s.orderRepo.GetItems(ctx, tx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	for _, item := range items {
		if err := s.inventoryRepo.DecreaseStock(ctx, tx, item.VariantID, item.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				// release the claim before the compensating cancel so
				// it does not block on our own row lock
				if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
					mylogger.Warn(ctx, s.logger, "Error rolling back transaction", zap.Error(rbErr))
				}

				return nil, &OutOfStockError{
					VariantID:   item.VariantID,
					ProductName: item.Name,
				}
			}

			return nil, fmt.Errorf("failed to decrease stock: %w", err)
		}
	}

	if order.UserID != nil {
		if err := s.cartRepo.ClearUserCart(ctx, tx, *order.UserID); err != nil {
			return nil, fmt.Errorf("failed to clear cart: %w", err)
		}
	}

	eventItems := make([]domain.OrderEventItem, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, domain.OrderEventItem{
			VariantID: item.VariantID,
			Name:      item.Name,
			Quantity:  item.Quantity,
		})
	}

	email := record.CustomerEmail
	if email == "" {
		email = order.Email()
	}

	err = s.emitEvent(ctx, tx, "order.paid", order.ID, &domain.OrderPaidEvent{
		OrderID:         order.ID,
		Email:           email,
		TotalAmount:     order.TotalAmount,
		PaymentIntentID: record.PaymentIntentID,
		Items:           eventItems,
		PaidAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, err
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

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VariantID)
	}
	s.cache.Invalidate(ctx, ids)

	mylogger.Info(
		ctx,
		s.logger,
		"Order finalized",
		zap.String("order_id", order.ID),
		zap.String("payment_intent_id", record.PaymentIntentID),
	)

	return s.orderRepo.GetByID(ctx, order.ID)
}

// compensate cancels the order after a failed finalization. The
// payment was already captured, so the cancelled event keeps the
// payment reference for the reconciliation consumer to refund.
func (s *fulfillmentService) compensate(ctx context.Context, order *domain.Order, record *payment.SessionRecord, reason string) {
	ctx = context.WithoutCancel(ctx)

	if err := s.orderRepo.MarkCancelled(ctx, order.ID); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Compensating cancel failed",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(ctx, s.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	email := record.CustomerEmail
	if email == "" {
		email = order.Email()
	}

	err = s.emitEvent(ctx, tx, "order.cancelled", order.ID, &domain.OrderCancelledEvent{
		OrderID:         order.ID,
		Email:           email,
		Reason:          reason,
		PaymentIntentID: record.PaymentIntentID,
		CancelledAt:     time.Now().UTC(),
	})
	if err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to emit cancelled event",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)

		return
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return
	}

	mylogger.Warn(
		ctx,
		s.logger,
		"Order cancelled by compensation",
		zap.String("order_id", order.ID),
		zap.String("reason", reason),
	)
}

func (s *fulfillmentService) emitEvent(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	wrapper := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       wrapperBytes,
		Topic:         "order_events",
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}

func marshalAddress(addr *payment.Address) json.RawMessage {
	if addr == nil {
		return nil
	}

	data, err := json.Marshal(addr)
	if err != nil {
		return nil
	}

	return data
}
