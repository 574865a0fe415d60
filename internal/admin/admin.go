// Package admin builds the read models behind the admin console: the
// dashboard and order views enriched with customer and product summaries.
package admin

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/users"
)

const recentLimit = 5

type ProductReader interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
	Count(ctx context.Context) (int, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
	Count(ctx context.Context) (int, error)
}

type OrderLister interface {
	ListOrders(ctx context.Context, filter orders.ListFilter) ([]orders.Order, error)
}

type ApplicationLister interface {
	ListApplications(ctx context.Context, filter applications.ListFilter) ([]applications.Application, error)
}

type Dashboard struct {
	TotalProducts       int                        `json:"totalProducts"`
	TotalUsers          int                        `json:"totalUsers"`
	TotalOrders         int                        `json:"totalOrders"`
	TotalApplications   int                        `json:"totalApplications"`
	PendingOrders       int                        `json:"pendingOrders"`
	PendingApplications int                        `json:"pendingApplications"`
	TotalRevenue        float64                    `json:"totalRevenue"`
	RecentOrders        []OrderView                `json:"recentOrders"`
	RecentApplications  []applications.Application `json:"recentApplications"`
}

type ProductSummary struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Category catalog.Category `json:"category"`
	Image    string           `json:"image,omitempty"`
}

// OrderView is an order with the customer and the products it references.
// Products that have since been deleted are omitted from Products.
type OrderView struct {
	*orders.Order
	User     *users.Summary   `json:"user,omitempty"`
	Products []ProductSummary `json:"products"`
}

type Service struct {
	products     ProductReader
	users        UserDirectory
	orders       OrderLister
	applications ApplicationLister
	logger       *zap.Logger
}

func NewService(products ProductReader, userDir UserDirectory, orderLister OrderLister, appLister ApplicationLister, logger *zap.Logger) *Service {
	return &Service{
		products:     products,
		users:        userDir,
		orders:       orderLister,
		applications: appLister,
		logger:       logger,
	}
}

// Dashboard gathers the counters in parallel. Revenue sums every order that
// is not cancelled.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d       Dashboard
		allOrds []orders.Order
		allApps []applications.Application
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.TotalProducts, err = s.products.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.TotalUsers, err = s.users.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		allOrds, err = s.orders.ListOrders(gctx, orders.ListFilter{})
		return err
	})
	g.Go(func() (err error) {
		allApps, err = s.applications.ListApplications(gctx, applications.ListFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	revenue := decimal.Zero
	for _, o := range allOrds {
		if o.Status == orders.StatusPending {
			d.PendingOrders++
		}
		if o.Status != orders.StatusCancelled {
			revenue = revenue.Add(decimal.NewFromFloat(o.TotalAmount))
		}
	}
	d.TotalOrders = len(allOrds)
	d.TotalRevenue = revenue.Round(2).InexactFloat64()

	for _, a := range allApps {
		if a.Status == applications.StatusPending {
			d.PendingApplications++
		}
	}
	d.TotalApplications = len(allApps)
	d.RecentApplications = allApps[:min(recentLimit, len(allApps))]

	// listings are newest first
	recent := allOrds[:min(recentLimit, len(allOrds))]
	views, err := s.OrderViews(ctx, recent)
	if err != nil {
		return nil, err
	}
	d.RecentOrders = views
	return &d, nil
}

// OrderView enriches a single order.
func (s *Service) OrderView(ctx context.Context, o *orders.Order) (*OrderView, error) {
	views, err := s.OrderViews(ctx, []orders.Order{*o})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// OrderViews enriches a list of orders, reading each user and product once.
func (s *Service) OrderViews(ctx context.Context, list []orders.Order) ([]OrderView, error) {
	userCache := map[string]*users.Summary{}
	productCache := map[string]*ProductSummary{}

	out := make([]OrderView, 0, len(list))
	for i := range list {
		o := list[i]
		v := OrderView{Order: &o, Products: []ProductSummary{}}

		u, err := s.userSummary(ctx, o.UserID, userCache)
		if err != nil {
			return nil, err
		}
		v.User = u

		for _, it := range o.Items {
			p, err := s.productSummary(ctx, it.ProductID, productCache)
			if err != nil {
				return nil, err
			}
			if p != nil {
				v.Products = append(v.Products, *p)
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) userSummary(ctx context.Context, id string, cache map[string]*users.Summary) (*users.Summary, error) {
	if u, ok := cache[id]; ok {
		return u, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	var sum *users.Summary
	if u != nil {
		v := u.Summary()
		sum = &v
	} else {
		s.logger.Warn("order references unknown user", zap.String("user_id", id))
	}
	cache[id] = sum
	return sum, nil
}

func (s *Service) productSummary(ctx context.Context, id string, cache map[string]*ProductSummary) (*ProductSummary, error) {
	if p, ok := cache[id]; ok {
		return p, nil
	}
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	var sum *ProductSummary
	if p != nil {
		sum = &ProductSummary{ID: p.ID, Name: p.Name, Category: p.Category}
		if len(p.Images) > 0 {
			sum.Image = p.Images[0]
		}
	}
	cache[id] = sum
	return sum, nil
}
