package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func actor(c *gin.Context) audit.Actor {
	claims := middleware.Claims(c)
	if claims == nil {
		return audit.Actor{}
	}
	return audit.Actor{ID: claims.Subject, Role: claims.Role}
}

func (h *Handler) dashboard(c *gin.Context) {
	d, err := h.admin.Dashboard(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) adminListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.orders.ListOrders(ctx, orders.ListFilter{Status: orders.Status(c.Query("status"))})
	if err != nil {
		h.writeError(c, err)
		return
	}
	views, err := h.admin.OrderViews(ctx, list)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) adminGetOrder(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.orders.GetAnyOrder(ctx, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.admin.OrderView(ctx, o)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) adminSetOrderStatus(c *gin.Context) {
	var req validation.OrderStatusRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	ctx := c.Request.Context()
	o, err := h.orders.SetOrderStatus(ctx, c.Param("id"), req.Status, actor(c), req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.admin.OrderView(ctx, o)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) adminListApplications(c *gin.Context) {
	list, err := h.applications.ListApplications(c.Request.Context(), applications.ListFilter{
		Status: applications.Status(c.Query("status")),
		Type:   applications.Type(c.Query("type")),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) adminSetApplicationStatus(c *gin.Context) {
	var req validation.ApplicationStatusRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	a, err := h.applications.SetApplicationStatus(c.Request.Context(), c.Param("id"),
		applications.Status(req.Status), req.AdminNotes, actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) auditTrail(c *gin.Context) {
	entityType := c.Param("entityType")
	if entityType != audit.EntityOrder && entityType != audit.EntityApplication {
		c.JSON(http.StatusBadRequest, gin.H{"message": "entityType must be order or application"})
		return
	}
	entries, err := h.audit.List(c.Request.Context(), entityType, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
