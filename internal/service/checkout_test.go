package service_test

import (
	"errors"
	"strings"

	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/internal/service"
)

func (s *ServiceSuite) TestCheckout_Registered_Success() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	result, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 2}},
	})
	s.Require().NoError(err)
	s.Require().True(strings.HasPrefix(result.OrderID, "order_"))
	s.Require().NotEmpty(result.RedirectURL)

	s.Require().Equal("pending", s.orderStatus(result.OrderID))

	var total int64
	err = s.DbPool.QueryRow(s.Ctx, `SELECT total_amount FROM orders WHERE id = $1`, result.OrderID).Scan(&total)
	s.Require().NoError(err)
	s.Require().Equal(int64(9000), total)

	// stock is only reserved at confirmation
	s.Require().Equal(int32(5), s.variantStock("var_1"))
}

func (s *ServiceSuite) TestCheckout_Guest_Success() {
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	result, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		GuestEmail: "guest@example.com",
		Lines:      []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().NoError(err)

	var guestEmail string
	err = s.DbPool.QueryRow(s.Ctx, `SELECT guest_email FROM orders WHERE id = $1`, result.OrderID).Scan(&guestEmail)
	s.Require().NoError(err)
	s.Require().Equal("guest@example.com", guestEmail)
}

func (s *ServiceSuite) TestCheckout_Guest_RequiresEmail() {
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		Lines: []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().ErrorIs(err, service.ErrGuestEmailRequired)
}

func (s *ServiceSuite) TestCheckout_FromPersistedCart() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)
	s.seedVariant("var_2", "Mug", "White", 1200, 10)
	s.seedCartItem("user_1", "var_1", 1)
	s.seedCartItem("user_1", "var_2", 3)

	result, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{UserID: "user_1"})
	s.Require().NoError(err)

	var total int64
	err = s.DbPool.QueryRow(s.Ctx, `SELECT total_amount FROM orders WHERE id = $1`, result.OrderID).Scan(&total)
	s.Require().NoError(err)
	s.Require().Equal(int64(4500+3*1200), total)

	// the cart survives until the payment is confirmed
	s.Require().Equal(2, s.countCartItems("user_1"))
}

func (s *ServiceSuite) TestCheckout_EmptyCart() {
	s.seedUser("user_1", "user1@example.com")

	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{UserID: "user_1"})
	s.Require().ErrorIs(err, service.ErrEmptyCart)
}

func (s *ServiceSuite) TestCheckout_UnknownVariant() {
	s.seedUser("user_1", "user1@example.com")

	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_missing", Quantity: 1}},
	})
	s.Require().ErrorIs(err, repository.ErrVariantNotFound)
}

func (s *ServiceSuite) TestCheckout_AdvisoryStockCheck() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 2)

	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 10}},
	})

	var stockErr *service.OutOfStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Require().Equal("var_1", stockErr.VariantID)
	s.Require().Contains(stockErr.Error(), "Hoodie")
}

func (s *ServiceSuite) TestCheckout_SupersedesPendingOrder() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	first, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().NoError(err)

	second, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 2}},
	})
	s.Require().NoError(err)

	s.Require().Equal("cancelled", s.orderStatus(first.OrderID))
	s.Require().Equal("pending", s.orderStatus(second.OrderID))
}

func (s *ServiceSuite) TestCheckout_GatewayFailure_CancelsOrder() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)
	s.Gateway.failCreate = true

	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().Error(err)

	var count int
	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = 'cancelled'`,
		"user_1",
	).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)

	err = s.DbPool.QueryRow(
		s.Ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = 'pending'`,
		"user_1",
	).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(0, count)
}

func (s *ServiceSuite) TestCheckout_MergesDuplicateLines() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	result, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines: []domain.CartLine{
			{VariantID: "var_1", Quantity: 1},
			{VariantID: "var_1", Quantity: 2},
		},
	})
	s.Require().NoError(err)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, result.OrderID).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(1, count)

	var quantity int32
	err = s.DbPool.QueryRow(s.Ctx, `SELECT quantity FROM order_items WHERE order_id = $1`, result.OrderID).Scan(&quantity)
	s.Require().NoError(err)
	s.Require().Equal(int32(3), quantity)
}
