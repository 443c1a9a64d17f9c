package notification

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/pkg/kafka"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.uber.org/zap"
)

type Consumer struct {
	service *Service
	logger  *zap.Logger
}

func NewConsumer(service *Service, logger *zap.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

func (c *Consumer) Start(ctx context.Context, brokers []string, groupID, topic string) {
	consumerGroup := kafka.NewConsumerGroup(
		brokers,
		groupID,
		[]string{topic},
		c.processMessage,
		c.logger,
	)

	consumerGroup.Run(ctx)
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	mylogger.Info(
		ctx,
		c.logger,
		"Processing message",
		zap.String("topic", msg.Topic),
	)

	type EventWrapper struct {
		Event   string          `json:"event"`
		EventID int64           `json:"event_id"`
		Payload json.RawMessage `json:"payload"`
	}

	var wrapper EventWrapper
	if err := json.Unmarshal(msg.Value, &wrapper); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling wrapper", zap.Error(err))
		return err
	}

	switch wrapper.Event {
	case "order.paid":
		var event domain.OrderPaidEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing paid event", zap.Error(err))
			return nil
		}

		return c.service.HandleOrderPaid(ctx, wrapper.EventID, &event)
	case "order.shipped":
		var event domain.OrderShippedEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing shipped event", zap.Error(err))
			return nil
		}

		return c.service.HandleOrderShipped(ctx, wrapper.EventID, &event)
	case "order.cancelled":
		var event domain.OrderCancelledEvent
		if err := json.Unmarshal(wrapper.Payload, &event); err != nil {
			mylogger.Error(ctx, c.logger, "Error parsing cancelled event", zap.Error(err))
			return nil
		}

		return c.service.HandleOrderCancelled(ctx, wrapper.EventID, &event)
	default:
		mylogger.Warn(
			ctx,
			c.logger,
			"Ignored event type",
			zap.String("event", wrapper.Event),
		)
	}

	return nil
}
