package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(iss *auth.Issuer) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(zap.NewNop()))
	r.GET("/open", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })
	authed := r.Group("/", RequireAuth(iss))
	authed.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, Claims(c).Subject) })
	admin := authed.Group("/admin", RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func do(r http.Handler, path, token string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newRouter(auth.NewIssuer("0123456789abcdef", time.Hour))

	w := do(r, "/open", "", RequestIDHeader, "req-42")
	assert.Equal(t, "req-42", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	w = do(r, "/open", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestAuthGates(t *testing.T) {
	iss := auth.NewIssuer("0123456789abcdef", time.Hour)
	r := newRouter(iss)
	userTok, _, err := iss.Issue("u1", "u@x.io", auth.RoleUser)
	require.NoError(t, err)
	adminTok, _, err := iss.Issue(auth.AdminSubject, "admin@x.io", auth.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name, path, token string
		want              int
	}{
		{"no token", "/me", "", http.StatusUnauthorized},
		{"junk token", "/me", "junk", http.StatusUnauthorized},
		{"user token", "/me", userTok, http.StatusOK},
		{"user on admin route", "/admin/ping", userTok, http.StatusForbidden},
		{"anonymous on admin route", "/admin/ping", "", http.StatusUnauthorized},
		{"admin token", "/admin/ping", adminTok, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.path, tt.token)
			assert.Equal(t, tt.want, w.Code)
			if tt.want >= 400 {
				assert.Contains(t, w.Body.String(), `"message"`)
			}
		})
	}
}
