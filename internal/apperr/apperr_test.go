package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("place order: %w", InsufficientStock("Laptop X", 1, 2))

	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.True(t, IsKind(err, KindInsufficientStock))
	assert.Equal(t, http.StatusBadRequest, KindOf(err).HTTPStatus())
	assert.Equal(t, "insufficient stock for Laptop X: 1 available, 2 requested", PublicMessage(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindInsufficientStock}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(errors.New("dynamodb: throttled")))
	assert.Equal(t, KindInternal, KindOf(nil))
	assert.False(t, IsKind(nil, KindInternal))

	pay := PaymentFailed(errors.New("signature mismatch"))
	assert.Equal(t, "payment verification failed", PublicMessage(pay))
	assert.Contains(t, pay.Error(), "signature mismatch")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:        http.StatusBadRequest,
		KindUnauthorized:      http.StatusUnauthorized,
		KindForbidden:         http.StatusForbidden,
		KindNotFound:          http.StatusNotFound,
		KindInsufficientStock: http.StatusBadRequest,
		KindPayment:           http.StatusBadRequest,
		KindConflict:          http.StatusConflict,
		KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), kind.String())
	}
}
