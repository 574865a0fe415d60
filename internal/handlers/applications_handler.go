package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (h *Handler) submitApplication(c *gin.Context) {
	var req applications.SubmitRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	a, err := h.applications.Submit(c.Request.Context(), subject(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) myApplications(c *gin.Context) {
	list, err := h.applications.ListUserApplications(c.Request.Context(), subject(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getApplication(c *gin.Context) {
	a, err := h.applications.GetApplication(c.Request.Context(), c.Param("id"), subject(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
