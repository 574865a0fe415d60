package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/admin"
	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/users"
)

func init() { gin.SetMode(gin.TestMode) }

const (
	testSecret   = "handler-test-secret-0123456789"
	paymentKey   = "rzp-test-key"
	adminEmail   = "admin@shop.in"
	adminPass    = "admin-pass"
)

type testAPI struct {
	router   *gin.Engine
	db       *dynamotest.Fake
	issuer   *auth.Issuer
	products *catalog.Store
	users    *users.Store
	verifier *payments.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	tables := dynamotest.DefaultTables
	db := dynamotest.NewStorefront(tables)
	logger := zap.NewNop()

	productStore := catalog.NewStore(db, tables.Products)
	userStore := users.NewStore(db, tables.Users)
	auditStore := audit.NewStore(db, tables.Audit)
	idemStore := idempotency.NewStore(db, tables.Idempotency, time.Hour)
	issuer := auth.NewIssuer(testSecret, time.Hour)
	verifier := payments.NewVerifier(paymentKey)

	catalogSvc := catalog.NewService(productStore, nil, logger)
	orderSvc := orders.NewService(orders.Deps{
		Orders:      orders.NewStore(db, tables.Orders),
		Products:    productStore,
		Audit:       auditStore,
		Idempotency: idemStore,
		Cache:       catalogSvc,
		Verifier:    verifier,
		Logger:      logger,
	})
	appSvc := applications.NewService(applications.NewStore(db, tables.Applications), auditStore, nil, logger)

	router := NewRouter(HandlerConfig{
		Catalog:      catalogSvc,
		Auth:         auth.NewService(userStore, issuer, auth.NewAdminAuthenticator(adminEmail, adminPass, ""), logger),
		Tokens:       issuer,
		Orders:       orderSvc,
		Payments:     payments.NewService(orderSvc, verifier, logger),
		Applications: appSvc,
		Admin:        admin.NewService(productStore, userStore, orderSvc, appSvc, logger),
		Audit:        auditStore,
		Idempotency:  idemStore,
		Logger:       logger,
	})
	return &testAPI{router: router, db: db, issuer: issuer, products: productStore, users: userStore, verifier: verifier}
}

func (a *testAPI) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, _, err := a.issuer.Issue(sub, sub+"@example.com", role)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) seed(t *testing.T, id string, price float64, stock int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, a.products.Create(context.Background(), &catalog.Product{
		ID: id, Name: "Product " + id, Price: price, Stock: stock, IsActive: true,
		Category: catalog.CategoryLaptop, CreatedAt: now, UpdatedAt: now,
	}))
}

func (a *testAPI) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := a.products.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

type call struct {
	method, path, token string
	body                any
	headers             map[string]string
}

func (a *testAPI) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func orderBody(lines ...orders.LineRequest) gin.H {
	return gin.H{
		"items": lines,
		"shippingAddress": orders.ShippingAddress{
			Name: "Meera", Phone: "9876543210", Street: "12 MG Road",
			City: "Pune", State: "MH", Pincode: "411001",
		},
		"paymentDetails": gin.H{"method": "cod", "status": "completed"},
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestAccessControl(t *testing.T) {
	api := newTestAPI(t)
	user := api.token(t, "u1", auth.RoleUser)
	adm := api.token(t, auth.AdminSubject, auth.RoleAdmin)

	tests := []struct {
		name string
		c    call
		want int
	}{
		{"public catalog", call{method: http.MethodGet, path: "/api/products"}, http.StatusOK},
		{"orders without token", call{method: http.MethodGet, path: "/api/orders/my-orders"}, http.StatusUnauthorized},
		{"orders with garbage token", call{method: http.MethodGet, path: "/api/orders/my-orders", token: "x.y.z"}, http.StatusUnauthorized},
		{"user dashboard", call{method: http.MethodGet, path: "/api/admin/dashboard", token: user}, http.StatusForbidden},
		{"user creates product", call{method: http.MethodPost, path: "/api/admin/products", token: user, body: gin.H{"name": "x"}}, http.StatusForbidden},
		{"admin dashboard", call{method: http.MethodGet, path: "/api/admin/dashboard", token: adm}, http.StatusOK},
		{"admin login is public", call{method: http.MethodPost, path: "/api/admin/login", body: gin.H{"email": adminEmail, "password": adminPass}}, http.StatusOK},
		{"admin login bad password", call{method: http.MethodPost, path: "/api/admin/login", body: gin.H{"email": adminEmail, "password": "nope"}}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, tt.c)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRegisterLoginMe(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: gin.H{
		"name": "Asha", "email": "Asha@Example.com", "password": "correct-horse", "phone": "9876543210",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	w = api.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: gin.H{
		"name": "Asha", "email": "asha@example.com", "password": "correct-horse",
	}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: gin.H{"email": "asha@example.com", "password": "correct-horse"}})
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[auth.Session](t, w)

	w = api.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: session.Token})
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[auth.Session](t, w)
	require.NotNil(t, me.User)
	assert.Equal(t, "asha@example.com", me.User.Email)
}

func TestCreateOrder_ServerPricesAndForcesPending(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "p1", 999.99, 3)
	user := api.token(t, "u1", auth.RoleUser)

	w := api.do(t, call{method: http.MethodPost, path: "/api/orders", token: user,
		body: orderBody(orders.LineRequest{ProductID: "p1", Quantity: 2})})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	o := decode[orders.Order](t, w)
	assert.Equal(t, 1999.98, o.TotalAmount)
	assert.Equal(t, orders.PaymentPending, o.PaymentDetails.Status)
	assert.Equal(t, "/api/orders/"+o.ID, w.Header().Get("Location"))
	assert.Equal(t, 1, api.stock(t, "p1"))

	w = api.do(t, call{method: http.MethodPost, path: "/api/orders", token: user,
		body: orderBody(orders.LineRequest{ProductID: "p1", Quantity: 2})})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient stock for Product p1: 1 available, 2 requested")
	assert.Equal(t, 1, api.stock(t, "p1"))
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	api := newTestAPI(t)
	user := api.token(t, "u1", auth.RoleUser)

	body := orderBody(orders.LineRequest{ProductID: "p1", Quantity: 0})
	w := api.do(t, call{method: http.MethodPost, path: "/api/orders", token: user, body: body})
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[struct {
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	}](t, w)
	assert.Equal(t, "validation failed", resp.Message)
	assert.Contains(t, resp.Fields, "items[0].quantity")

	w = api.do(t, call{method: http.MethodPost, path: "/api/orders", token: user,
		body: orderBody(orders.LineRequest{ProductID: "missing", Quantity: 1})})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "p1", 100, 5)
	user := api.token(t, "u1", auth.RoleUser)
	c := call{method: http.MethodPost, path: "/api/orders", token: user,
		body:    orderBody(orders.LineRequest{ProductID: "p1", Quantity: 1}),
		headers: map[string]string{IdempotencyKeyHeader: "checkout-1"}}

	first := api.do(t, c)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := api.do(t, c)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 4, api.stock(t, "p1"))
	assert.Equal(t, 1, api.db.Len(dynamotest.DefaultTables.Orders))

	// same key from another user is a different request
	other := c
	other.token = api.token(t, "u2", auth.RoleUser)
	w := api.do(t, other)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 3, api.stock(t, "p1"))
}

func TestCreateOrder_FailedKeyIsReclaimed(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "p1", 100, 5)
	user := api.token(t, "u1", auth.RoleUser)
	c := call{method: http.MethodPost, path: "/api/orders", token: user,
		body:    orderBody(orders.LineRequest{ProductID: "p1", Quantity: 1}),
		headers: map[string]string{IdempotencyKeyHeader: "checkout-2"}}

	api.db.FailNext("TransactWriteItems", errors.New("service unavailable"))
	w := api.do(t, c)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, w.Body.String())
	assert.Equal(t, 5, api.stock(t, "p1"))

	w = api.do(t, c)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 4, api.stock(t, "p1"))
}

func TestOrders_OwnershipIsolation(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "p1", 10, 10)
	alice := api.token(t, "alice", auth.RoleUser)
	bob := api.token(t, "bob", auth.RoleUser)

	w := api.do(t, call{method: http.MethodPost, path: "/api/orders", token: alice,
		body: orderBody(orders.LineRequest{ProductID: "p1", Quantity: 1})})
	require.Equal(t, http.StatusCreated, w.Code)
	o := decode[orders.Order](t, w)

	w = api.do(t, call{method: http.MethodGet, path: "/api/orders/" + o.ID, token: bob})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, call{method: http.MethodPatch, path: "/api/orders/" + o.ID + "/status", token: bob, body: gin.H{"status": "cancelled"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, call{method: http.MethodGet, path: "/api/orders/my-orders", token: bob})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	for i := 0; i < 2; i++ {
		w = api.do(t, call{method: http.MethodGet, path: "/api/orders/" + o.ID, token: alice})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, o.ID, decode[orders.Order](t, w).ID)
	}
}

func TestAdminSetOrderStatus_AuditedAndAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "p1", 10, 10)
	require.NoError(t, api.users.Create(context.Background(), &users.User{ID: "alice", Name: "Alice", Email: "alice@example.com"}))
	alice := api.token(t, "alice", auth.RoleUser)
	adm := api.token(t, auth.AdminSubject, auth.RoleAdmin)

	w := api.do(t, call{method: http.MethodPost, path: "/api/orders", token: alice,
		body: orderBody(orders.LineRequest{ProductID: "p1", Quantity: 1})})
	require.Equal(t, http.StatusCreated, w.Code)
	o := decode[orders.Order](t, w)

	w = api.do(t, call{method: http.MethodPatch, path: "/api/admin/orders/" + o.ID + "/status", token: alice, body: gin.H{"status": "shipped"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, call{method: http.MethodPatch, path: "/api/admin/orders/" + o.ID + "/status", token: adm, body: gin.H{"status": "shipped", "notes": "dispatched"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[admin.OrderView](t, w)
	assert.Equal(t, orders.StatusShipped, view.Status)
	require.NotNil(t, view.User)
	assert.Equal(t, "alice@example.com", view.User.Email)
	require.Len(t, view.Products, 1)

	w = api.do(t, call{method: http.MethodGet, path: "/api/admin/audit/order/" + o.ID, token: adm})
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]audit.Entry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "pending", entries[0].PreviousStatus)
	assert.Equal(t, "shipped", entries[0].NewStatus)
	assert.Equal(t, auth.RoleAdmin, entries[0].ActorRole)

	w = api.do(t, call{method: http.MethodPatch, path: "/api/admin/orders/nope/status", token: adm, body: gin.H{"status": "shipped"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, call{method: http.MethodGet, path: "/api/admin/audit/user/" + o.ID, token: adm})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyPayment(t *testing.T) {
	api := newTestAPI(t)
	api.seed(t, "p1", 250, 2)
	api.seed(t, "p2", 90000, 3)
	user := api.token(t, "u1", auth.RoleUser)
	body := func(sig string) gin.H {
		b := orderBody(orders.LineRequest{ProductID: "p1", Quantity: 1})
		b["razorpayOrderId"] = "order_A"
		b["razorpayPaymentId"] = "pay_B"
		b["razorpaySignature"] = sig
		return b
	}

	w := api.do(t, call{method: http.MethodPost, path: "/api/payments/verify", token: user, body: body("deadbeef")})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"message":"payment verification failed"}`, w.Body.String())
	assert.Equal(t, 0, api.db.Len(dynamotest.DefaultTables.Orders))
	assert.Equal(t, 2, api.stock(t, "p1"))

	w = api.do(t, call{method: http.MethodPost, path: "/api/payments/verify", token: user, body: body(api.verifier.Sign("order_A", "pay_B"))})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[orders.Order](t, w)
	assert.Equal(t, orders.PaymentCompleted, o.PaymentDetails.Status)
	assert.Equal(t, "pay_B", o.PaymentDetails.PaymentID)
	assert.Equal(t, 1, api.stock(t, "p1"))

	replay := body(api.verifier.Sign("order_A", "pay_B"))
	replay["items"] = []orders.LineRequest{{ProductID: "p2", Quantity: 1}}
	w = api.do(t, call{method: http.MethodPost, path: "/api/payments/verify", token: user, body: replay})
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, 1, api.db.Len(dynamotest.DefaultTables.Orders))
	assert.Equal(t, 3, api.stock(t, "p2"))
}

func TestApplications_SubmitAndReview(t *testing.T) {
	api := newTestAPI(t)
	user := api.token(t, "u1", auth.RoleUser)
	other := api.token(t, "u2", auth.RoleUser)
	adm := api.token(t, auth.AdminSubject, auth.RoleAdmin)

	req := gin.H{
		"type": "loan", "subType": "personal",
		"personalInfo":  gin.H{"fullName": "Ravi", "email": "ravi@example.com", "phone": "9123456789"},
		"financialInfo": gin.H{"monthlyIncome": 0},
	}
	w := api.do(t, call{method: http.MethodPost, path: "/api/applications", token: user, body: req})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "financialInfo.monthlyIncome")

	req["financialInfo"] = gin.H{"monthlyIncome": 40000}
	w = api.do(t, call{method: http.MethodPost, path: "/api/applications", token: user, body: req})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[applications.Application](t, w)
	assert.Equal(t, applications.StatusPending, a.Status)

	w = api.do(t, call{method: http.MethodGet, path: "/api/applications/" + a.ID, token: other})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, call{method: http.MethodPatch, path: "/api/admin/applications/" + a.ID + "/status", token: adm,
		body: gin.H{"status": "approved", "adminNotes": "Documents verified"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[applications.Application](t, w)
	assert.Equal(t, applications.StatusApproved, updated.Status)
	assert.Equal(t, "Documents verified", updated.AdminNotes)

	w = api.do(t, call{method: http.MethodGet, path: "/api/admin/applications?status=approved", token: adm})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]applications.Application](t, w), 1)
}

func TestAdminProducts(t *testing.T) {
	api := newTestAPI(t)
	adm := api.token(t, auth.AdminSubject, auth.RoleAdmin)

	w := api.do(t, call{method: http.MethodPost, path: "/api/admin/products", token: adm, body: gin.H{
		"name": "ThinkPad", "price": 1200.5, "stock": 4, "category": "laptop",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[catalog.Product](t, w)

	w = api.do(t, call{method: http.MethodPut, path: "/api/admin/products/" + p.ID, token: adm, body: gin.H{
		"name": "ThinkPad X1", "price": 1300, "stock": 2, "category": "laptop", "isActive": false,
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, call{method: http.MethodGet, path: "/api/products/" + p.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, call{method: http.MethodGet, path: "/api/admin/products", token: adm})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]catalog.Product](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "ThinkPad X1", list[0].Name)

	w = api.do(t, call{method: http.MethodDelete, path: "/api/admin/products/" + p.ID, token: adm})
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, call{method: http.MethodDelete, path: "/api/admin/products/" + p.ID, token: adm})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
