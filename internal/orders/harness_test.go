package orders

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/notify"
)

// hookDB runs beforeTx ahead of every TransactWriteItems call so tests can
// interleave a competing write between a read and a commit.
type hookDB struct {
	*dynamotest.Fake
	beforeTx func(call int)
	calls    atomic.Int32
}

func (h *hookDB) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	n := int(h.calls.Add(1))
	if h.beforeTx != nil {
		h.beforeTx(n)
	}
	return h.Fake.TransactWriteItems(ctx, in, optFns...)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordedEvents) Publish(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (m *countingMetrics) Count(_ context.Context, name string, value float64, _ ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name] += value
	return nil
}

func (m *countingMetrics) get(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type invalidations struct {
	mu  sync.Mutex
	ids []string
}

func (i *invalidations) Invalidate(_ context.Context, ids ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, ids...)
}

type staticVerifier struct{ valid string }

func (v staticVerifier) Verify(_, _, signature string) bool { return signature == v.valid }

type harness struct {
	db       *hookDB
	svc      *Service
	orders   *Store
	products *catalog.Store
	audit    *audit.Store
	idem     *idempotency.Store
	events   *recordedEvents
	metrics  *countingMetrics
	cache    *invalidations
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := &hookDB{Fake: dynamotest.NewStorefront(dynamotest.DefaultTables)}
	h := &harness{
		db:       db,
		orders:   NewStore(db, dynamotest.DefaultTables.Orders),
		products: catalog.NewStore(db, dynamotest.DefaultTables.Products),
		audit:    audit.NewStore(db, dynamotest.DefaultTables.Audit),
		idem:     idempotency.NewStore(db, dynamotest.DefaultTables.Idempotency, time.Hour),
		events:   &recordedEvents{},
		metrics:  &countingMetrics{counts: map[string]float64{}},
		cache:    &invalidations{},
	}
	h.svc = NewService(Deps{
		Orders:      h.orders,
		Products:    h.products,
		Audit:       h.audit,
		Idempotency: h.idem,
		Cache:       h.cache,
		Events:      h.events,
		Metrics:     h.metrics,
		Verifier:    staticVerifier{valid: "good-sig"},
		Logger:      zap.NewNop(),
	})
	h.svc.backoff = time.Millisecond
	return h
}

func (h *harness) seed(t *testing.T, id, name string, price float64, stock int) {
	t.Helper()
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, h.products.Create(context.Background(), &catalog.Product{
		ID: id, Name: name, Price: price, Stock: stock, IsActive: true,
		Category: catalog.CategoryAccessories, CreatedAt: now, UpdatedAt: now,
	}))
}

func (h *harness) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := h.products.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

func address() ShippingAddress {
	return ShippingAddress{Name: "Meera", Phone: "9876543210", Street: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001"}
}

func input(userID string, lines ...LineRequest) PlaceOrderInput {
	return PlaceOrderInput{
		UserID:          userID,
		Items:           lines,
		ShippingAddress: address(),
		PaymentDetails:  PaymentDetails{Method: "cod"},
	}
}
