package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/wenbo68/tonytonyshopper/internal/notification"
	"github.com/wenbo68/tonytonyshopper/internal/notification/email"
	"github.com/wenbo68/tonytonyshopper/internal/payment"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/internal/service"
	transport "github.com/wenbo68/tonytonyshopper/internal/transport/http"
	"github.com/wenbo68/tonytonyshopper/internal/transport/http/handler"
	"github.com/wenbo68/tonytonyshopper/pkg/config"
	"github.com/wenbo68/tonytonyshopper/pkg/db"
	"github.com/wenbo68/tonytonyshopper/pkg/kafka"
	"github.com/wenbo68/tonytonyshopper/pkg/metrics"
	outboxRepository "github.com/wenbo68/tonytonyshopper/pkg/outbox/repository"
	"github.com/wenbo68/tonytonyshopper/pkg/outbox/worker"
	"github.com/wenbo68/tonytonyshopper/pkg/tracing"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := tracing.InitTracer(ctx, "storefront-service")
	if err != nil {
		log.Fatalf("Failed to init trace: %v", err)
	}

	logger, err := config.NewLogger(config.LoggerConfig{
		Level: "info",
		Env:   cfg.Env,
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Error connecting to postgres: %v", err)
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr: cfg.Redis.Addr,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing redis client: %v\n", err)
		}
	}()

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("Error creating kafka producer: %v", err)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Printf("Error closing kafka producer: %v\n", err)
		}
	}()

	orderRepo := repository.NewOrderRepository(pool, logger)
	inventoryRepo := repository.NewInventoryRepository(pool, logger)
	cartRepo := repository.NewCartRepository(pool, logger)
	variantRepo := repository.NewCachedVariantRepository(
		repository.NewVariantRepository(pool, logger),
		redisClient,
	)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)

	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.HTTP.BaseURL, cfg.Stripe.Timeout, logger)

	cartReader := service.NewCartReader(variantRepo, logger)
	checkoutService := service.NewCheckoutService(pool, logger, orderRepo, cartRepo, cartReader, gateway)
	fulfillmentService := service.NewFulfillmentService(pool, logger, orderRepo, inventoryRepo, cartRepo, outboxRepo, gateway, variantRepo)
	orderService := service.NewOrderService(pool, logger, orderRepo, outboxRepo)

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger)
	go outboxProcessor.Start(ctx)

	emailSender := email.NewSMTPSender(
		cfg.Notifier.From,
		cfg.Notifier.Password,
		cfg.Notifier.Host,
		cfg.Notifier.Port,
		logger,
	)
	notificationService := notification.NewService(emailSender, logger, pool)
	consumer := notification.NewConsumer(notificationService, logger)
	go consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrderTopic)

	app := fiber.New(fiber.Config{
		ReadTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	serverMetrics := metrics.NewServerMetrics("storefront")

	handlers := &transport.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutService, fulfillmentService, logger),
		Order:    handler.NewOrderHandler(orderService, logger),
	}

	transport.RegisterRoutes(app, handlers, serverMetrics)

	logger.Info("Storefront service started!")

	go func() {
		log.Println("HTTP Service listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownContext); err != nil {
		log.Printf("Error shutting down HTTP app: %v\n", err)
	} else {
		log.Println("HTTP App stopped gracefully")
	}

	if err := tp.Shutdown(shutdownContext); err != nil {
		log.Printf("Error shutting down tracer provider: %v\n", err)
	}
}
