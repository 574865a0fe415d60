package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// Service is the catalog use-case layer shared by public and admin routes.
type Service struct {
	store   *Store
	cache   Cache
	logger  *zap.Logger
	nowFunc func() time.Time
}

func NewService(store *Store, cache Cache, logger *zap.Logger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{store: store, cache: cache, logger: logger, nowFunc: time.Now}
}

// Get returns a product by id. Inactive products are hidden unless
// includeInactive is set.
func (s *Service) Get(ctx context.Context, id string, includeInactive bool) (*Product, error) {
	p, ok := s.cache.Get(ctx, id)
	if !ok {
		var err error
		p, err = s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.NotFound("product not found")
		}
		s.cache.Set(ctx, p)
	}
	if !p.IsActive && !includeInactive {
		return nil, apperr.NotFound("product not found")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Product, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, apperr.Validation("unknown category %q", filter.Category)
	}
	return s.store.List(ctx, filter)
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	now := s.nowFunc().UTC()
	p := &Product{
		ID:        uuid.NewString(),
		IsActive:  true,
		CreatedAt: now,
	}
	apply(p, in, now)
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// Update replaces every mutable field of an existing product, stock included.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperr.NotFound("product not found")
	}
	prev := current.UpdatedAt
	apply(current, in, s.nowFunc().UTC())
	if err := s.store.Replace(ctx, current, prev); err != nil {
		if errors.Is(err, ErrModified) {
			return nil, apperr.Conflict("product was modified concurrently, reload and retry")
		}
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	return current, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("product not found")
		}
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// Invalidate drops cached copies after stock changes made elsewhere.
func (s *Service) Invalidate(ctx context.Context, ids ...string) {
	s.cache.Invalidate(ctx, ids...)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func apply(p *Product, in ProductInput, now time.Time) {
	p.Name = in.Name
	p.Description = in.Description
	if in.Price != nil {
		p.Price = *in.Price
	}
	p.OriginalPrice = in.OriginalPrice
	p.Category = in.Category
	p.Images = in.Images
	p.Specifications = in.Specifications
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.HasOffer = in.HasOffer
	p.Offer = nil
	if in.HasOffer {
		p.Offer = in.Offer
	}
	p.Brand = in.Brand
	p.Model = in.Model
	p.Warranty = in.Warranty
	p.UpdatedAt = now
}
