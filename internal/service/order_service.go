package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	outboxDomain "github.com/wenbo68/tonytonyshopper/pkg/outbox/domain"
	"github.com/wenbo68/tonytonyshopper/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderService interface {
	History(ctx context.Context, userID string, filter repository.OrderFilter) ([]domain.Order, int64, error)
	Ship(ctx context.Context, orderID, carrier, trackingNumber string) (*domain.Order, error)
}

type orderService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	orderRepo  repository.OrderRepository
	outboxRepo worker.OutboxRepository
	tracer     trace.Tracer
}

func NewOrderService(pool *pgxpool.Pool, logger *zap.Logger, orderRepo repository.OrderRepository, outboxRepo worker.OutboxRepository) OrderService {
	return &orderService{
		pool:       pool,
		logger:     logger,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		tracer:     otel.Tracer("order_service"),
	}
}

func (s *orderService) History(ctx context.Context, userID string, filter repository.OrderFilter) ([]domain.Order, int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.History")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", filter.Page),
	)

	orders, total, err := s.orderRepo.ListUserOrders(ctx, userID, filter)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to list orders",
			zap.String("user_id", userID),
			zap.Error(err),
		)

		return nil, 0, err
	}

	return orders, total, nil
}

func (s *orderService) Ship(ctx context.Context, orderID, carrier, trackingNumber string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Ship")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("carrier", carrier),
	)

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

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

	if err := s.orderRepo.MarkShipped(ctx, tx, orderID, carrier, trackingNumber); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to mark order shipped",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return nil, err
	}

	event := &domain.OrderShippedEvent{
		OrderID:        orderID,
		Email:          order.Email(),
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		ShippedAt:      time.Now().UTC(),
	}

	wrapper := map[string]any{
		"event":   "order.shipped",
		"payload": event,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   orderID,
		EventType:     "order.shipped",
		Payload:       wrapperBytes,
		Topic:         "order_events",
	}

	if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to save outbox event",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to save outbox event: %w", err)
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

	mylogger.Info(
		ctx,
		s.logger,
		"Order shipped",
		zap.String("order_id", orderID),
		zap.String("carrier", carrier),
		zap.String("tracking_number", trackingNumber),
	)

	return s.orderRepo.GetByID(ctx, orderID)
}
