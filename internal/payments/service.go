package payments

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

const defaultMethod = "razorpay"

// ConfirmRequest is the body of POST /api/payments/verify.
type ConfirmRequest struct {
	RazorpayOrderID   string                 `json:"razorpayOrderId" validate:"required"`
	RazorpayPaymentID string                 `json:"razorpayPaymentId" validate:"required"`
	RazorpaySignature string                 `json:"razorpaySignature" validate:"required"`
	Items             []orders.LineRequest   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress   orders.ShippingAddress `json:"shippingAddress"`
	Method            string                 `json:"method" validate:"max=50"`
}

// OrderPlacer is the slice of orders.Service the payment flow needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderInput) (*orders.Order, error)
	CountPaymentFailure(ctx context.Context)
}

type Service struct {
	placer   OrderPlacer
	verifier *Verifier
	logger   *zap.Logger
}

func NewService(placer OrderPlacer, verifier *Verifier, logger *zap.Logger) *Service {
	return &Service{placer: placer, verifier: verifier, logger: logger}
}

// ConfirmAndPlace verifies the gateway signature and, only if it matches,
// places the order with completed payment details.
func (s *Service) ConfirmAndPlace(ctx context.Context, userID string, req ConfirmRequest, idempotencyKey string) (*orders.Order, error) {
	if !s.verifier.Verify(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		s.placer.CountPaymentFailure(ctx)
		s.logger.Warn("payment signature rejected",
			zap.String("user_id", userID),
			zap.String("gateway_order_id", req.RazorpayOrderID))
		return nil, apperr.PaymentFailed(errors.New("signature mismatch"))
	}

	method := req.Method
	if method == "" {
		method = defaultMethod
	}
	return s.placer.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:          userID,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentDetails: orders.PaymentDetails{
			Method:    method,
			Status:    orders.PaymentCompleted,
			PaymentID: req.RazorpayPaymentID,
			OrderID:   req.RazorpayOrderID,
			Signature: req.RazorpaySignature,
		},
		IdempotencyKey: idempotencyKey,
	})
}
