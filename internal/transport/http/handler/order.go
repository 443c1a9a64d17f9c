package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/internal/service"
	"github.com/wenbo68/tonytonyshopper/internal/transport/http/middleware"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders   service.OrderService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(),
		logger:   logger,
	}
}

type ShipOrderInput struct {
	Carrier        string `json:"carrier" validate:"required"`
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

func (h *OrderHandler) History(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	userID := middleware.UserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed user"})
	}

	filter, err := parseOrderFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	orders, total, err := h.orders.History(ctx, userID, filter)
	if err != nil {
		mylogger.Error(
			ctx,
			h.logger,
			"order history failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list orders",
		})
	}

	responses := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		responses = append(responses, orderToResponse(&orders[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"orders":      responses,
		"total_count": total,
		"page":        filter.Page,
		"page_size":   filter.PageSize,
	})
}

func (h *OrderHandler) Ship(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	orderID := c.Params("id")
	if orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "order id is required"})
	}

	input := new(ShipOrderInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"failed to parse body in ship",
			zap.Error(err),
		)

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	order, err := h.orders.Ship(ctx, orderID, input.Carrier, input.TrackingNumber)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, repository.ErrOrderNotPaid):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}

		mylogger.Error(
			ctx,
			h.logger,
			"ship order failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to ship order",
		})
	}

	return c.Status(fiber.StatusOK).JSON(orderToResponse(order))
}

func parseOrderFilter(c *fiber.Ctx) (repository.OrderFilter, error) {
	filter := repository.OrderFilter{
		IDContains:     c.Query("id"),
		Carrier:        c.Query("carrier"),
		TrackingNumber: c.Query("tracking_number"),
		Page:           c.QueryInt("page", 1),
		PageSize:       c.QueryInt("page_size", 10),
	}

	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			status := domain.OrderStatus(strings.TrimSpace(s))
			switch status {
			case domain.OrderStatusPaid, domain.OrderStatusShipped:
				filter.Statuses = append(filter.Statuses, status)
			default:
				return filter, errors.New("invalid status filter: " + string(status))
			}
		}
	}

	if v := c.Query("date_min"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid date_min")
		}
		filter.DateMin = &t
	}
	if v := c.Query("date_max"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid date_max")
		}
		filter.DateMax = &t
	}
	if v := c.Query("price_min"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid price_min")
		}
		filter.PriceMin = &n
	}
	if v := c.Query("price_max"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid price_max")
		}
		filter.PriceMax = &n
	}

	return filter, nil
}
