package service_test

import (
	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/internal/repository"
	"github.com/wenbo68/tonytonyshopper/internal/service"
)

func (s *ServiceSuite) paidOrder(userID, variantID string, quantity int32) string {
	orderID := s.initiateAndPay(userID, []domain.CartLine{{VariantID: variantID, Quantity: quantity}})

	_, err := s.Fulfillment.Confirm(s.Ctx, s.Gateway.sessionFor(orderID))
	s.Require().NoError(err)

	return orderID
}

func (s *ServiceSuite) TestShip_Success() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	orderID := s.paidOrder("user_1", "var_1", 1)

	order, err := s.Orders.Ship(s.Ctx, orderID, "UPS", "1Z999AA10123456784")
	s.Require().NoError(err)
	s.Require().Equal(domain.OrderStatusShipped, order.Status)
	s.Require().NotNil(order.Carrier)
	s.Require().Equal("UPS", *order.Carrier)
	s.Require().NotNil(order.TrackingNumber)
	s.Require().Equal("1Z999AA10123456784", *order.TrackingNumber)

	s.Require().Equal(1, s.countOutboxEvents("order.shipped"))
}

func (s *ServiceSuite) TestShip_PendingOrder_Conflict() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	orderID := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 1}})

	_, err := s.Orders.Ship(s.Ctx, orderID, "UPS", "1Z999AA10123456784")
	s.Require().ErrorIs(err, repository.ErrOrderNotPaid)

	s.Require().Equal("pending", s.orderStatus(orderID))
	s.Require().Equal(0, s.countOutboxEvents("order.shipped"))
}

func (s *ServiceSuite) TestShip_AlreadyShipped_Conflict() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	orderID := s.paidOrder("user_1", "var_1", 1)

	_, err := s.Orders.Ship(s.Ctx, orderID, "UPS", "1Z999AA10123456784")
	s.Require().NoError(err)

	_, err = s.Orders.Ship(s.Ctx, orderID, "FedEx", "another-number")
	s.Require().ErrorIs(err, repository.ErrOrderNotPaid)

	s.Require().Equal(1, s.countOutboxEvents("order.shipped"))
}

func (s *ServiceSuite) TestShip_NotFound() {
	_, err := s.Orders.Ship(s.Ctx, "order_missing", "UPS", "1Z999AA10123456784")
	s.Require().ErrorIs(err, repository.ErrOrderNotFound)
}

func (s *ServiceSuite) TestHistory_OnlyFinalizedOrders() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 10)

	paidID := s.paidOrder("user_1", "var_1", 1)

	// pending order must not show up in history
	_, err := s.Checkout.Initiate(s.Ctx, &service.CheckoutRequest{
		UserID: "user_1",
		Lines:  []domain.CartLine{{VariantID: "var_1", Quantity: 1}},
	})
	s.Require().NoError(err)

	orders, total, err := s.Orders.History(s.Ctx, "user_1", repository.OrderFilter{})
	s.Require().NoError(err)
	s.Require().Equal(int64(1), total)
	s.Require().Len(orders, 1)
	s.Require().Equal(paidID, orders[0].ID)
	s.Require().Len(orders[0].Items, 1)
}

func (s *ServiceSuite) TestHistory_Filters() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 10)
	s.seedVariant("var_2", "Mug", "White", 1200, 10)

	cheapID := s.paidOrder("user_1", "var_2", 1)
	expensiveID := s.paidOrder("user_1", "var_1", 2)

	_, err := s.Orders.Ship(s.Ctx, expensiveID, "UPS", "1Z999AA10123456784")
	s.Require().NoError(err)

	priceMin := int64(5000)
	orders, total, err := s.Orders.History(s.Ctx, "user_1", repository.OrderFilter{PriceMin: &priceMin})
	s.Require().NoError(err)
	s.Require().Equal(int64(1), total)
	s.Require().Equal(expensiveID, orders[0].ID)

	orders, total, err = s.Orders.History(s.Ctx, "user_1", repository.OrderFilter{
		Statuses: []domain.OrderStatus{domain.OrderStatusPaid},
	})
	s.Require().NoError(err)
	s.Require().Equal(int64(1), total)
	s.Require().Equal(cheapID, orders[0].ID)

	orders, total, err = s.Orders.History(s.Ctx, "user_1", repository.OrderFilter{Carrier: "ups"})
	s.Require().NoError(err)
	s.Require().Equal(int64(1), total)
	s.Require().Equal(expensiveID, orders[0].ID)
}

func (s *ServiceSuite) TestHistory_Pagination() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 100)

	for i := 0; i < 3; i++ {
		s.paidOrder("user_1", "var_1", 1)
	}

	orders, total, err := s.Orders.History(s.Ctx, "user_1", repository.OrderFilter{Page: 1, PageSize: 2})
	s.Require().NoError(err)
	s.Require().Equal(int64(3), total)
	s.Require().Len(orders, 2)

	orders, _, err = s.Orders.History(s.Ctx, "user_1", repository.OrderFilter{Page: 2, PageSize: 2})
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
}

func (s *ServiceSuite) TestHistory_DoesNotLeakOtherUsers() {
	s.seedUser("user_1", "user1@example.com")
	s.seedUser("user_2", "user2@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 10)

	s.paidOrder("user_1", "var_1", 1)

	orders, total, err := s.Orders.History(s.Ctx, "user_2", repository.OrderFilter{})
	s.Require().NoError(err)
	s.Require().Equal(int64(0), total)
	s.Require().Empty(orders)
}
