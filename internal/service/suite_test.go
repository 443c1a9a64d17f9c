package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/payment"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/internal/service"
	outboxRepository "github.com/wenbo68/tonytonyshopper/pkg/outbox/repository"
	"github.com/wenbo68/tonytonyshopper/pkg/testsuite"
	"go.uber.org/zap"
)

// fakeGateway stands in for the hosted checkout provider. Sessions
// start unpaid; tests flip them with markPaid to simulate the buyer
// completing payment.
type fakeGateway struct {
	mu         sync.Mutex
	sessions   map[string]*payment.SessionRecord
	byOrder    map[string]string
	failCreate bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(map[string]*payment.SessionRecord),
		byOrder:  make(map[string]string),
	}
}

func (g *fakeGateway) CreateSession(_ context.Context, req *payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failCreate {
		return nil, fmt.Errorf("gateway is down")
	}

	id := "cs_test_" + uuid.NewString()
	g.sessions[id] = &payment.SessionRecord{
		ID:            id,
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		CustomerEmail: req.CustomerEmail,
	}
	g.byOrder[req.OrderID] = id

	return &payment.Session{ID: id, RedirectURL: "https://checkout.test/" + id}, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, token string) (*payment.SessionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.sessions[token]
	if !ok {
		return nil, payment.ErrSessionNotFound
	}

	copied := *record
	return &copied, nil
}

func (g *fakeGateway) markPaid(sessionID, paymentIntentID, email string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record := g.sessions[sessionID]
	record.Paid = true
	record.PaymentIntentID = paymentIntentID
	if email != "" {
		record.CustomerEmail = email
	}
}

func (g *fakeGateway) sessionFor(orderID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.byOrder[orderID]
}

type ServiceSuite struct {
	testsuite.BaseSuite

	Gateway     *fakeGateway
	VariantRepo repository.CachedVariantRepository
	OrderRepo   repository.OrderRepository
	Checkout    service.CheckoutService
	Fulfillment service.FulfillmentService
	Orders      service.OrderService
}

func (s *ServiceSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *ServiceSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *ServiceSuite) SetupTest() {
	s.BaseSuite.TruncateTable("orders")
	s.BaseSuite.TruncateTable("users")
	s.BaseSuite.TruncateTable("products")
	s.BaseSuite.TruncateTable("outbox")
	s.BaseSuite.TruncateTable("processed_events")
	s.Require().NoError(s.RedisClient.FlushAll(s.Ctx).Err())

	logger := zap.NewNop()

	s.OrderRepo = repository.NewOrderRepository(s.DbPool, logger)
	inventoryRepo := repository.NewInventoryRepository(s.DbPool, logger)
	cartRepo := repository.NewCartRepository(s.DbPool, logger)
	s.VariantRepo = repository.NewCachedVariantRepository(
		repository.NewVariantRepository(s.DbPool, logger),
		s.RedisClient,
	)
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)

	s.Gateway = newFakeGateway()

	cartReader := service.NewCartReader(s.VariantRepo, logger)
	s.Checkout = service.NewCheckoutService(s.DbPool, logger, s.OrderRepo, cartRepo, cartReader, s.Gateway)
	s.Fulfillment = service.NewFulfillmentService(s.DbPool, logger, s.OrderRepo, inventoryRepo, cartRepo, outboxRepo, s.Gateway, s.VariantRepo)
	s.Orders = service.NewOrderService(s.DbPool, logger, s.OrderRepo, outboxRepo)
}

func (s *ServiceSuite) seedUser(id, email string) {
	query := `
		INSERT INTO users (id, email)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`

	_, err := s.DbPool.Exec(s.Ctx, query, id, email)
	s.Require().NoError(err)
}

func (s *ServiceSuite) seedVariant(id, productName, variantName string, price int64, stock int32) {
	productID := "prod_" + id

	_, err := s.DbPool.Exec(s.Ctx, `
		INSERT INTO products (id, name)
		VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, productID, productName)
	s.Require().NoError(err)

	_, err = s.DbPool.Exec(s.Ctx, `
		INSERT INTO product_variants (id, product_id, name, price, stock)
		VALUES ($1, $2, $3, $4, $5)
	`, id, productID, variantName, price, stock)
	s.Require().NoError(err)
}

func (s *ServiceSuite) seedCartItem(userID, variantID string, quantity int32) {
	_, err := s.DbPool.Exec(s.Ctx, `
		INSERT INTO cart_items (user_id, variant_id, quantity)
		VALUES ($1, $2, $3)
	`, userID, variantID, quantity)
	s.Require().NoError(err)
}

func (s *ServiceSuite) orderStatus(orderID string) string {
	var status string
	err := s.DbPool.QueryRow(s.Ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	s.Require().NoError(err)

	return status
}

func (s *ServiceSuite) variantStock(variantID string) int32 {
	var stock int32
	err := s.DbPool.QueryRow(s.Ctx, `SELECT stock FROM product_variants WHERE id = $1`, variantID).Scan(&stock)
	s.Require().NoError(err)

	return stock
}

func (s *ServiceSuite) countCartItems(userID string) int {
	var count int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, userID).Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *ServiceSuite) countOutboxEvents(eventType string) int {
	var count int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM outbox WHERE event_type = $1`, eventType).Scan(&count)
	s.Require().NoError(err)

	return count
}

// initiateAndPay runs checkout for the user and flips the session to
// paid, returning the order id.
func (s *ServiceSuite) initiateAndPay(userID string, lines []domain.CartLine) string {
	result, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: userID,
		Lines:  lines,
	})
	s.Require().NoError(err)

	s.Gateway.markPaid(s.Gateway.sessionFor(result.OrderID), "pi_"+uuid.NewString(), "buyer@example.com")

	return result.OrderID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
