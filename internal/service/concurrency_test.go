package service_test

import (
	"sync"

	"github.com/wenbo68/tonytonyshopper/internal/domain"
)

// Two buyers race for the last unit. Exactly one order may end up
// paid; stock must never go negative.
func (s *ServiceSuite) TestConfirm_ConcurrentBuyers_LastUnit() {
	s.seedUser("user_1", "user1@example.com")
	s.seedUser("user_2", "user2@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 1)

	orderA := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 1}})
	orderB := s.initiateAndPay("user_2", []domain.CartLine{{VariantID: "var_1", Quantity: 1}})

	var wg sync.WaitGroup
	confirm := func(orderID string) {
		defer wg.Done()
		// errors are expected for the loser; state is asserted below
		_, _ = s.Fulfillment.Confirm(s.Ctx, s.Gateway.sessionFor(orderID))
	}

	wg.Add(2)
	go confirm(orderA)
	go confirm(orderB)
	wg.Wait()

	s.Require().Equal(int32(0), s.variantStock("var_1"))

	statusA := s.orderStatus(orderA)
	statusB := s.orderStatus(orderB)

	paid := 0
	cancelled := 0
	for _, status := range []string{statusA, statusB} {
		switch status {
		case "paid":
			paid++
		case "cancelled":
			cancelled++
		}
	}

	s.Require().Equal(1, paid)
	s.Require().Equal(1, cancelled)
	s.Require().Equal(1, s.countOutboxEvents("order.paid"))
	s.Require().Equal(1, s.countOutboxEvents("order.cancelled"))
}

// The same confirmation replayed concurrently must decrement stock
// exactly once.
func (s *ServiceSuite) TestConfirm_SameSession_Concurrent() {
	s.seedUser("user_1", "user1@example.com")
	s.seedVariant("var_1", "Hoodie", "Black / M", 4500, 5)

	orderID := s.initiateAndPay("user_1", []domain.CartLine{{VariantID: "var_1", Quantity: 2}})
	sessionID := s.Gateway.sessionFor(orderID)

	var wg sync.WaitGroup
	results := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.Fulfillment.Confirm(s.Ctx, sessionID)
		}(i)
	}
	wg.Wait()

	s.Require().NoError(results[0])
	s.Require().NoError(results[1])

	s.Require().Equal("paid", s.orderStatus(orderID))
	s.Require().Equal(int32(3), s.variantStock("var_1"))
	s.Require().Equal(1, s.countOutboxEvents("order.paid"))
}
