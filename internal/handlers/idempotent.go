package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
)

// operation runs the request body. key is the scoped idempotency key, or ""
// when the client sent none.
type operation func(key string) (int, any)

// idempotent runs op at most once per (operation, user, Idempotency-Key).
// A finished request (2xx or 4xx) is replayed verbatim, a running one gets
// 202, and a 5xx leaves the key FAILED so a retry can reclaim it.
func (h *Handler) idempotent(c *gin.Context, opName string, op operation) {
	clientKey := c.GetHeader(IdempotencyKeyHeader)
	if clientKey == "" {
		status, body := op("")
		c.JSON(status, body)
		return
	}
	if len(clientKey) > maxIdempotencyKeyLen {
		c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("%s must be at most %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLen)})
		return
	}

	ctx := c.Request.Context()
	key := idempotency.ScopedKey(opName, subject(c), clientKey)

	created, err := h.idem.CreateIfNotExists(ctx, key)
	if err != nil {
		h.writeError(c, fmt.Errorf("idempotency create: %w", err))
		return
	}
	if !created {
		if h.resume(c, key) {
			return
		}
	}

	status, body := op(key)
	payload, err := json.Marshal(body)
	if err != nil {
		h.writeError(c, fmt.Errorf("marshal response: %w", err))
		return
	}

	if status >= http.StatusInternalServerError {
		if err := h.idem.MarkFailed(ctx, key, fmt.Sprintf("status %d", status)); err != nil {
			h.logger.Warn("mark idempotency key failed", zap.String("key", key), zap.Error(err))
		}
	} else if err := h.idem.MarkDone(ctx, key, string(payload), status); err != nil {
		h.logger.Warn("mark idempotency key done", zap.String("key", key), zap.Error(err))
	}
	c.Data(status, "application/json; charset=utf-8", payload)
}

// resume handles a key that already exists. It returns true when a response
// was written, false when the caller reclaimed a FAILED key and should run.
func (h *Handler) resume(c *gin.Context, key string) bool {
	ctx := c.Request.Context()
	rec, err := h.idem.Get(ctx, key)
	if err != nil {
		h.writeError(c, fmt.Errorf("idempotency get: %w", err))
		return true
	}
	if rec == nil {
		// expired between the put and the read
		c.JSON(http.StatusConflict, gin.H{"message": "idempotency key expired, retry the request"})
		return true
	}

	switch rec.Status {
	case idempotency.StatusDone:
		c.Header("Idempotent-Replayed", "true")
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return true
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "resourceId": rec.ResourceID})
		return true
	case idempotency.StatusFailed:
		err := h.idem.Reclaim(ctx, key)
		if errors.Is(err, idempotency.ErrConditionFailed) {
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
			return true
		}
		if err != nil {
			h.writeError(c, fmt.Errorf("idempotency reclaim: %w", err))
			return true
		}
		return false
	default:
		h.writeError(c, fmt.Errorf("unknown idempotency status %q", rec.Status))
		return true
	}
}
