package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/wenbo68/tonytonyshopper/internal/transport/http/handler"
	"github.com/wenbo68/tonytonyshopper/internal/transport/http/middleware"
	"github.com/wenbo68/tonytonyshopper/pkg/metrics"
)

type Handlers struct {
	Checkout *handler.CheckoutHandler
	Order    *handler.OrderHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, m *metrics.ServerMetrics) {
	app.Use(newMetricsMiddleware(m))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	checkout := api.Group("/checkout", middleware.NewIdentityMiddleware())
	checkout.Post("", h.Checkout.Initiate)
	checkout.Post("/confirm", h.Checkout.Confirm)

	orders := api.Group("/orders", middleware.NewAuthMiddleware())
	orders.Get("", h.Order.History)

	admin := api.Group("/admin", middleware.NewAuthMiddleware(), middleware.NewAdminMiddleware())
	admin.Post("/orders/:id/ship", h.Order.Ship)
}

func newMetricsMiddleware(m *metrics.ServerMetrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()

		m.Observe(c.Method(), route, status, time.Since(start))

		return err
	}
}
