package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateTotal(t *testing.T) {
	order := Order{
		Items: []OrderItem{
			{PriceAtPurchase: 4500, Quantity: 2},
			{PriceAtPurchase: 1200, Quantity: 3},
		},
	}

	order.CalculateTotal()
	require.Equal(t, int64(4500*2+1200*3), order.TotalAmount)
}

func TestCalculateTotal_Empty(t *testing.T) {
	var order Order
	order.CalculateTotal()
	require.Equal(t, int64(0), order.TotalAmount)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusCancelled, false},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
		{OrderStatusShipped, OrderStatusPaid, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestOrderEmail(t *testing.T) {
	collected := "collected@example.com"
	guest := "guest@example.com"

	order := Order{GuestEmail: &guest}
	require.Equal(t, guest, order.Email())

	order.CustomerEmail = &collected
	require.Equal(t, collected, order.Email())

	var empty Order
	require.Empty(t, empty.Email())
}

func TestDisplayName(t *testing.T) {
	snapshot := VariantSnapshot{ProductName: "Hoodie", Name: "Black / M"}
	require.Equal(t, "Hoodie - Black / M", snapshot.DisplayName())
}
