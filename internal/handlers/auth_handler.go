package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (h *Handler) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	s, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	s, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req auth.LoginRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	s, err := h.auth.AdminLogin(req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) me(c *gin.Context) {
	s, err := h.auth.Me(c.Request.Context(), middleware.Claims(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
