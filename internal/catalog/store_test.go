package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/dynamotest"
)

func newTestStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.NewStorefront(dynamotest.DefaultTables)
	return NewStore(fake, dynamotest.DefaultTables.Products), fake
}

func seedProduct(t *testing.T, s *Store, id string, price float64, stock int, created time.Time) *Product {
	t.Helper()
	p := &Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     price,
		Category:  CategoryLaptop,
		Stock:     stock,
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func TestStore_CreateGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	p := seedProduct(t, s, "p1", 999.5, 3, now)
	assert.ErrorIs(t, s.Create(ctx, p), ErrExists)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 999.5, got.Price)
	assert.Equal(t, 3, got.Stock)
	assert.True(t, got.CreatedAt.Equal(now))

	require.NoError(t, s.Delete(ctx, "p1"))
	assert.ErrorIs(t, s.Delete(ctx, "p1"), ErrNotFound)

	got, err = s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListFiltersAndOrders(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedProduct(t, s, "old", 10, 1, base)
	seedProduct(t, s, "new", 20, 1, base.Add(time.Hour))
	hidden := &Product{ID: "hidden", Name: "Hidden", Category: CategorySoftware, CreatedAt: base, UpdatedAt: base}
	require.NoError(t, s.Create(ctx, hidden))
	offer := &Product{
		ID: "deal", Name: "Deal", Category: CategoryAccessories, IsActive: true, HasOffer: true,
		Offer: &Offer{DiscountPercent: 15}, CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base,
	}
	require.NoError(t, s.Create(ctx, offer))

	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "deal", all[0].ID)

	active, err := s.List(ctx, ListFilter{ActiveOnly: true, Category: CategoryLaptop})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "new", active[0].ID)
	assert.Equal(t, "old", active[1].ID)

	offers, err := s.List(ctx, ListFilter{ActiveOnly: true, OffersOnly: true})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, 15.0, offers[0].Offer.DiscountPercent)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestStore_ReplaceDetectsInterleavedWrite(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := seedProduct(t, s, "p1", 100, 5, base)

	// An order decrements stock and bumps updated_at in between.
	dec, err := s.DecrementStock("p1", 2, 100, base.Add(time.Minute))
	require.NoError(t, err)
	_, err = fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{dec}})
	require.NoError(t, err)

	p.Stock = 50
	p.UpdatedAt = base.Add(2 * time.Minute)
	assert.ErrorIs(t, s.Replace(ctx, p, base), ErrModified)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	require.NoError(t, s.Replace(ctx, p, got.UpdatedAt))
	got, err = s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Stock)
}

func TestStore_DecrementStockGuards(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedProduct(t, s, "p1", 49.99, 1, now)

	tx := func(qty int, price float64) error {
		item, err := s.DecrementStock("p1", qty, price, now)
		require.NoError(t, err)
		_, err = fake.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: []types.TransactWriteItem{item}})
		return err
	}

	var tce *types.TransactionCanceledException
	assert.True(t, errors.As(tx(2, 49.99), &tce), "over-stock decrement must be cancelled")
	assert.True(t, errors.As(tx(1, 39.99), &tce), "stale price must be cancelled")
	require.NoError(t, tx(1, 49.99))

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestStore_GetPropagatesErrors(t *testing.T) {
	s, fake := newTestStore(t)
	fake.FailNext("GetItem", errors.New("throttled"))
	_, err := s.Get(context.Background(), "p1")
	assert.ErrorContains(t, err, "throttled")
}
