package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/notification/email"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	outboxUtils "github.com/wenbo68/tonytonyshopper/pkg/outbox/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Service struct {
	emailSender email.Sender
	logger      *zap.Logger
	pool        *pgxpool.Pool
	tracer      trace.Tracer
}

func NewService(emailSender email.Sender, logger *zap.Logger, pool *pgxpool.Pool) *Service {
	return &Service{
		emailSender: emailSender,
		logger:      logger,
		pool:        pool,
		tracer:      otel.Tracer("notification-service"),
	}
}

func (s *Service) HandleOrderPaid(ctx context.Context, eventID int64, event *domain.OrderPaidEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderPaid")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("order_id", event.OrderID),
	)

	if event.Email == "" {
		mylogger.Warn(
			ctx,
			s.logger,
			"Paid order has no email, skipping",
			zap.String("order_id", event.OrderID),
		)

		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func() error {
		return s.emailSender.SendOrderPaidEmail(ctx, event.Email, event)
	})
}

func (s *Service) HandleOrderShipped(ctx context.Context, eventID int64, event *domain.OrderShippedEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderShipped")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("order_id", event.OrderID),
	)

	if event.Email == "" {
		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func() error {
		return s.emailSender.SendOrderShippedEmail(ctx, event.Email, event)
	})
}

func (s *Service) HandleOrderCancelled(ctx context.Context, eventID int64, event *domain.OrderCancelledEvent) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.HandleOrderCancelled")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("order_id", event.OrderID),
	)

	if event.Email == "" {
		return nil
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, eventID, func() error {
		return s.emailSender.SendOrderCancelledEmail(ctx, event.Email, event)
	})
}
