package validation

import "github.com/imrishuroy/go-storefront/internal/orders"

// CreateOrderRequest is the payload for POST /api/orders. Prices and totals
// sent by clients are not part of it; the server computes them.
type CreateOrderRequest struct {
	Items           []orders.LineRequest   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress orders.ShippingAddress `json:"shippingAddress"`
	PaymentDetails  orders.PaymentDetails  `json:"paymentDetails"`
}

// OrderStatusRequest is the payload for both order status endpoints.
// PaymentDetails is only honoured on the owner endpoint.
type OrderStatusRequest struct {
	Status         orders.Status          `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled"`
	PaymentDetails *orders.PaymentDetails `json:"paymentDetails,omitempty"`
	Notes          string                 `json:"notes" validate:"max=1000"`
}

// ApplicationStatusRequest is the payload for PATCH /api/admin/applications/:id/status.
type ApplicationStatusRequest struct {
	Status     string `json:"status" validate:"required,oneof=pending under_review approved rejected"`
	AdminNotes string `json:"adminNotes" validate:"max=2000"`
}
