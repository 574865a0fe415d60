package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// createOrder places an order for the caller. Payment status from the
// client is ignored; only the payment flow creates completed orders.
func (h *Handler) createOrder(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		// BindAndValidate already wrote a 400
		return
	}
	payment := req.PaymentDetails
	payment.Status = orders.PaymentPending
	payment.PaymentID, payment.OrderID, payment.Signature = "", "", ""

	h.idempotent(c, "orders.create", func(key string) (int, any) {
		o, err := h.orders.PlaceOrder(c.Request.Context(), orders.PlaceOrderInput{
			UserID:          subject(c),
			Items:           req.Items,
			ShippingAddress: req.ShippingAddress,
			PaymentDetails:  payment,
			IdempotencyKey:  key,
		})
		if err != nil {
			return h.errorResponse(c, err)
		}
		c.Header("Location", fmt.Sprintf("/api/orders/%s", o.ID))
		return http.StatusCreated, o
	})
}

func (h *Handler) myOrders(c *gin.Context) {
	list, err := h.orders.ListUserOrders(c.Request.Context(), subject(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), subject(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) updateOwnOrderStatus(c *gin.Context) {
	var req validation.OrderStatusRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	o, err := h.orders.UpdateOwnOrderStatus(c.Request.Context(), c.Param("id"), subject(c), req.Status, req.PaymentDetails)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) verifyPayment(c *gin.Context) {
	var req payments.ConfirmRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	h.idempotent(c, "payments.verify", func(key string) (int, any) {
		o, err := h.payments.ConfirmAndPlace(c.Request.Context(), subject(c), req, key)
		if err != nil {
			return h.errorResponse(c, err)
		}
		c.Header("Location", fmt.Sprintf("/api/orders/%s", o.ID))
		return http.StatusCreated, o
	})
}
