package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func productFilter(c *gin.Context, activeOnly bool) catalog.ListFilter {
	return catalog.ListFilter{
		Category:   catalog.Category(c.Query("category")),
		OffersOnly: c.Query("offers") == "true",
		ActiveOnly: activeOnly,
	}
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context(), productFilter(c, true))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.catalog.Get(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) adminListProducts(c *gin.Context) {
	products, err := h.catalog.List(c.Request.Context(), productFilter(c, false))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) createProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := validation.BindAndValidate(c, &in, h.validate); err != nil {
		return
	}
	p, err := h.catalog.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := validation.BindAndValidate(c, &in, h.validate); err != nil {
		return
	}
	p, err := h.catalog.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}
