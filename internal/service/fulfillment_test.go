package service_test

import (
	"errors"

	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/payment"
	"github.com/wenbo68/tonytonyshopper/internal/service"
)

func (s *ServiceSuite) TestConfirm_Success() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)
	s.seedCartItem("user_1", "var_1", 2)

	orderID := s.initiateAndPay("user_1", nil)
	sessionID := s.Gateway.sessionFor(orderID)

	order, err := s.Fulfillment.Confirm(s.Ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, order.Status)
	s.Require().NotNil(order.PaymentIntentID)
	s.Require().NotNil(order.CustomerEmail)
	s.Require().Equal("buyer@example.com", *order.CustomerEmail)

	s.Require().Equal(int32(3), s.variantStock("var_1"))
	s.Require().Equal(0, s.countCartItems("user_1"))
	s.Require().Equal(1, s.countOutboxEvents("order.paid"))
}

func (s *ServiceSuite) TestConfirm_Idempotent() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	orderID := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 2}})
	sessionID := s.Gateway.sessionFor(orderID)

	first, err := s.Fulfillment.Confirm(s.Ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, first.Status)

	second, err := s.Fulfillment.Confirm(s.Ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusPaid, second.Status)

	// the replay must not decrement again or emit a second event
	s.Require().Equal(int32(3), s.variantStock("var_1"))
	s.Require().Equal(1, s.countOutboxEvents("order.paid"))
}

func (s *ServiceSuite) TestConfirm_PaymentNotCompleted() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	result, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().NoError(err)

	_, err = s.Fulfillment.Confirm(s.Ctx, s.Gateway.sessionFor(result.OrderID))
	s.Require().ErrorIs(err, service.ErrPaymentNotCompleted)

	s.Require().Equal("pending", s.orderStatus(result.OrderID))
	s.Require().Equal(int32(5), s.variantStock("var_1"))
	s.Require().Equal(0, s.countOutboxEvents("order.paid"))
}

func (s *ServiceSuite) TestConfirm_UnknownSession() {
	_, err := s.Fulfillment.Confirm(s.Ctx, "cs_test_missing")
	s.Require().ErrorIs(err, payment.ErrSessionNotFound)
}

func (s *ServiceSuite) TestConfirm_InsufficientStock_Compensates() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 2)

	orderID := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 2}})

	// a competing sale drains the stock between checkout and confirm
	_, err := s.DbPool.Exec(s.Ctx, `UPDATE product_variants SET stock = 1 WHERE id = 'var_1'`)
	s.Require().NoError(err)

	_, err = s.Fulfillment.Confirm(s.Ctx, s.Gateway.sessionFor(orderID))

	var stockErr *service.OutOfStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Require().Equal("var_1", stockErr.VariantID)

	s.Require().Equal("cancelled", s.orderStatus(orderID))
	s.Require().Equal(int32(1), s.variantStock("var_1"))
	s.Require().Equal(0, s.countOutboxEvents("order.paid"))
	s.Require().Equal(1, s.countOutboxEvents("order.cancelled"))
}

func (s *ServiceSuite) TestConfirm_PriceChangeDoesNotAffectOrder() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	orderID := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 2}})

	_, err := s.DbPool.Exec(s.Ctx, `UPDATE product_variants SET price = 9900 WHERE id = 'var_1'`)
	s.Require().NoError(err)

	order, err := s.Fulfillment.Confirm(s.Ctx, s.Gateway.sessionFor(orderID))
	s.Require().NoError(err)
	s.Require().Equal(int64(9000), order.TotalAmount)

	s.Require().Len(order.Items, 1)
	s.Require().Equal(int64(4500), order.Items[0].PriceAtPurchase)
}

func (s *ServiceSuite) TestConfirm_SupersededOrder_NoOp() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	first := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 1}})

	// a second checkout cancels the first pending order
	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().NoError(err)

	order, err := s.Fulfillment.Confirm(s.Ctx, s.Gateway.sessionFor(first))
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusCancelled, order.Status)

	s.Require().Equal(int32(5), s.variantStock("var_1"))
}
