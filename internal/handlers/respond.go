package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/middleware"
)

// errorResponse classifies err into a status and client-safe body. Internal
// errors are logged with the request id and never echoed.
func (h *Handler) errorResponse(c *gin.Context, err error) (int, gin.H) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.RequestIDFrom(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	return status, gin.H{"message": apperr.PublicMessage(err)}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := h.errorResponse(c, err)
	c.AbortWithStatusJSON(status, body)
}

// subject returns the authenticated caller's id. Only used behind RequireAuth.
func subject(c *gin.Context) string {
	if claims := middleware.Claims(c); claims != nil {
		return claims.Subject
	}
	return ""
}
