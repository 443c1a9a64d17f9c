package handler

import (
	"encoding/json"
	"time"

	"github.com/wenbo68/tonytonyshopper/internal/domain"
)

type OrderItemResponse struct {
	VariantID       string `json:"variant_id"`
	Name            string `json:"name"`
	Quantity        int32  `json:"quantity"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	Status          string              `json:"status"`
	TotalAmount     int64               `json:"total_amount"`
	ShippingAddress json.RawMessage     `json:"shipping_address,omitempty"`
	BillingAddress  json.RawMessage     `json:"billing_address,omitempty"`
	Carrier         *string             `json:"carrier,omitempty"`
	TrackingNumber  *string             `json:"tracking_number,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func orderToResponse(order *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:              order.ID,
		Status:          string(order.Status),
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		Carrier:         order.Carrier,
		TrackingNumber:  order.TrackingNumber,
		Items:           make([]OrderItemResponse, 0, len(order.Items)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}

	for _, item := range order.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			VariantID:       item.VariantID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase,
		})
	}

	return resp
}
