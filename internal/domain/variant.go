package domain

// CartLine is a buyer-supplied (variant, quantity) pair, either from a
// registered user's persisted cart or a guest's locally-held cart.
type CartLine struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

// VariantSnapshot is a point-in-time view of a purchasable variant:
// its authoritative current price and visible stock. It carries no
// reservation, the binding stock check happens at finalize time.
type VariantSnapshot struct {
	ID          string `db:"id"`
	ProductID   string `db:"product_id"`
	ProductName string `db:"product_name"`
	Name        string `db:"name"`
	Price       int64  `db:"price"`
	Stock       int32  `db:"stock"`
}

// DisplayName is the label sent to the payment gateway for a line,
// e.g. "Straw Hat - Red / Medium".
func (v *VariantSnapshot) DisplayName() string {
	if v.Name == "" {
		return v.ProductName
	}
	return v.ProductName + " - " + v.Name
}
