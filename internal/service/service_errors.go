package service

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrGuestEmailRequired  = errors.New("guest checkout requires an email")
	ErrPaymentNotCompleted = errors.New("payment has not completed")
)

// OutOfStockError names the product whose stock ran out so the
// storefront can show the buyer exactly what sold out.
type OutOfStockError struct {
	VariantID   string
	ProductName string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%s is sold out", e.ProductName)
}
