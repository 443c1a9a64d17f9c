package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/payment"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/internal/service"
	"github.com/wenbo68/tonytonyshopper/internal/transport/http/middleware"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkout    service.CheckoutService
	fulfillment service.FulfillmentService
	validate    *validator.Validate
	logger      *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, fulfillment service.FulfillmentService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:    checkout,
		fulfillment: fulfillment,
		validate:    validator.New(),
		logger:      logger,
	}
}

type CartLineInput struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

type InitiateCheckoutInput struct {
	Items      []CartLineInput `json:"items" validate:"dive"`
	GuestEmail string          `json:"guest_email" validate:"omitempty,email"`
}

type ConfirmCheckoutInput struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (h *CheckoutHandler) Initiate(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	input := new(InitiateCheckoutInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"failed to parse body in checkout",
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

	req := &service.CheckoutRequest{
		UserID:     middleware.UserID(c),
		GuestEmail: input.GuestEmail,
	}
	for _, item := range input.Items {
		req.Lines = append(req.Lines, domain.CartLine{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	mylogger.Info(
		ctx,
		h.logger,
		"checkout request",
		zap.String("user_id", req.UserID),
		zap.Int("line_count", len(req.Lines)),
	)

	result, err := h.checkout.Initiate(ctx, req)
	if err != nil {
		return h.checkoutError(c, ctx, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"order_id":     result.OrderID,
		"redirect_url": result.RedirectURL,
	})
}

func (h *CheckoutHandler) Confirm(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	input := new(ConfirmCheckoutInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(
			ctx,
			h.logger,
			"failed to parse body in confirm",
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

	order, err := h.fulfillment.Confirm(ctx, input.SessionID)
	if err != nil {
		return h.confirmError(c, ctx, err)
	}

	return c.Status(fiber.StatusOK).JSON(orderToResponse(order))
}

func (h *CheckoutHandler) checkoutError(c *fiber.Ctx, ctx context.Context, err error) error {
	var stockErr *service.OutOfStockError

	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrGuestEmailRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, repository.ErrVariantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.As(err, &stockErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":      stockErr.Error(),
			"variant_id": stockErr.VariantID,
		})

	case errors.Is(err, gobreaker.ErrOpenState):
		mylogger.Warn(ctx, h.logger, "Circuit breaker open")

		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Payment service temporarily unavailable",
		})
	}

	mylogger.Error(
		ctx,
		h.logger,
		"checkout failed",
		zap.Error(err),
	)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "checkout failed",
	})
}

func (h *CheckoutHandler) confirmError(c *fiber.Ctx, ctx context.Context, err error) error {
	var stockErr *service.OutOfStockError

	switch {
	case errors.Is(err, payment.ErrSessionNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, payment.ErrNoOrderMetadata):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})

	case errors.Is(err, service.ErrPaymentNotCompleted):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error()})

	case errors.As(err, &stockErr):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":      stockErr.Error(),
			"variant_id": stockErr.VariantID,
		})

	case errors.Is(err, gobreaker.ErrOpenState):
		mylogger.Warn(ctx, h.logger, "Circuit breaker open")

		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Payment service temporarily unavailable",
		})
	}

	mylogger.Error(
		ctx,
		h.logger,
		"confirmation failed",
		zap.Error(err),
	)

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "confirmation failed",
	})
}
