package orders

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/notify"
)

// Metric names recorded by the order service.
const (
	MetricOrdersPlaced        = "OrdersPlaced"
	MetricStockRejections     = "StockRejections"
	MetricPlacementConflicts  = "OrderPlacementConflicts"
	MetricPaymentVerifyFailed = "PaymentVerificationFailed"
)

const (
	defaultMaxAttempts = 4
	defaultBackoff     = 25 * time.Millisecond
	metricTimeout      = 2 * time.Second
)

// errRetry marks a cancelled placement that is worth re-running from the
// read step.
var errRetry = errors.New("order placement conflict")

// ProductInvalidator drops cached product copies.
type ProductInvalidator interface {
	Invalidate(ctx context.Context, ids ...string)
}

// MetricsRecorder is satisfied by aws.Metrics.
type MetricsRecorder interface {
	Count(ctx context.Context, name string, value float64, dims ...string) error
}

// SignatureVerifier checks a payment gateway signature.
type SignatureVerifier interface {
	Verify(gatewayOrderID, paymentID, signature string) bool
}

// Deps groups the collaborators of Service. Orders, Products and Audit are
// required; the rest may be nil.
type Deps struct {
	Orders      *Store
	Products    *catalog.Store
	Audit       *audit.Store
	Idempotency *idempotency.Store
	Cache       ProductInvalidator
	Events      notify.Publisher
	Metrics     MetricsRecorder
	Verifier    SignatureVerifier
	Logger      *zap.Logger
}

// Service implements order placement and the order status lifecycle.
type Service struct {
	orders   *Store
	products *catalog.Store
	audit    *audit.Store
	idem     *idempotency.Store
	cache    ProductInvalidator
	events   notify.Publisher
	metrics  MetricsRecorder
	verifier SignatureVerifier
	logger   *zap.Logger

	nowFunc     func() time.Time
	maxAttempts int
	backoff     time.Duration
}

func NewService(d Deps) *Service {
	s := &Service{
		orders:      d.Orders,
		products:    d.Products,
		audit:       d.Audit,
		idem:        d.Idempotency,
		cache:       d.Cache,
		events:      d.Events,
		metrics:     d.Metrics,
		verifier:    d.Verifier,
		logger:      d.Logger,
		nowFunc:     time.Now,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	if s.cache == nil {
		s.cache = catalog.NopCache{}
	}
	if s.events == nil {
		s.events = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// PlaceOrder validates the cart, prices it from the catalog and commits the
// stock decrements and the order atomically. Client prices are never used.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}
	payment := in.PaymentDetails
	if payment.Status == "" {
		payment.Status = PaymentPending
	}
	if !payment.Status.Valid() {
		return nil, apperr.Validation("invalid payment status %q", payment.Status)
	}
	if payment.Status == PaymentCompleted {
		if err := s.canClaim(&payment); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		o, err := s.tryPlace(ctx, in, lines, payment)
		switch {
		case err == nil:
			s.placed(ctx, o)
			return o, nil
		case errors.Is(err, errRetry):
			if attempt >= s.maxAttempts {
				s.count(ctx, MetricPlacementConflicts)
				return nil, apperr.Conflict("order could not be placed because the catalog changed concurrently, please retry")
			}
			s.logger.Info("retrying order placement", zap.Int("attempt", attempt), zap.String("user_id", in.UserID))
			if err := sleep(ctx, s.backoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		default:
			if apperr.IsKind(err, apperr.KindInsufficientStock) {
				s.count(ctx, MetricStockRejections)
			}
			return nil, err
		}
	}
}

func (s *Service) tryPlace(ctx context.Context, in PlaceOrderInput, lines []LineRequest, payment PaymentDetails) (*Order, error) {
	now := s.nowFunc().UTC()
	items := make([]Item, 0, len(lines))
	writes := make([]types.TransactWriteItem, 0, len(lines)+1)
	total := decimal.Zero

	for _, l := range lines {
		p, err := s.products.Get(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, apperr.NotFound("product %s not found", l.ProductID)
		}
		if !p.IsActive {
			return nil, apperr.Validation("product %q is not available", p.Name)
		}
		if p.Stock < l.Quantity {
			return nil, apperr.InsufficientStock(p.Name, p.Stock, l.Quantity)
		}
		w, err := s.products.DecrementStock(p.ID, l.Quantity, p.Price, now)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
		items = append(items, Item{ProductID: p.ID, Quantity: l.Quantity, Price: p.Price, Name: p.Name})
		total = total.Add(decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	o := &Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Items:           items,
		TotalAmount:     total.Round(2).InexactFloat64(),
		ShippingAddress: in.ShippingAddress,
		PaymentDetails:  payment,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	layout := placement{keyAt: -1, claimAt: -1}
	if in.IdempotencyKey != "" && s.idem != nil {
		layout.keyAt = len(writes)
		writes = append(writes, s.idem.BindResource(in.IdempotencyKey, o.ID, now))
	}
	if payment.Status == PaymentCompleted {
		layout.claimAt = len(writes)
		writes = append(writes, s.idem.ClaimPayment(payment.PaymentID, o.ID, now))
	}

	err := s.orders.Create(ctx, o, writes...)
	if err == nil {
		return o, nil
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, err
	}
	return nil, s.diagnose(ctx, tce, lines, layout, payment.PaymentID)
}

// placement records where the optional writes sit in the order transaction.
// -1 means absent.
type placement struct {
	keyAt   int
	claimAt int
}

// diagnose turns a cancelled placement into a client error or errRetry.
// Reasons are positional: one per line, then the idempotency binding, then
// the payment claim, then the order put. Reasons other than a failed
// condition (TransactionConflict under contention) are retried.
func (s *Service) diagnose(ctx context.Context, tce *types.TransactionCanceledException, lines []LineRequest, layout placement, paymentID string) error {
	for i := range tce.CancellationReasons {
		if !conditionFailed(tce, i) {
			continue
		}
		switch {
		case i < len(lines):
			l := lines[i]
			p, err := s.products.Get(ctx, l.ProductID)
			if err != nil {
				return err
			}
			if p == nil {
				return apperr.NotFound("product %s not found", l.ProductID)
			}
			if p.Stock < l.Quantity {
				return apperr.InsufficientStock(p.Name, p.Stock, l.Quantity)
			}
			// price edited between read and commit
			return errRetry
		case i == layout.keyAt:
			return apperr.Conflict("idempotency key was already used for another order")
		case i == layout.claimAt:
			return errPaymentUsed(paymentID)
		}
	}
	return errRetry
}

func conditionFailed(tce *types.TransactionCanceledException, i int) bool {
	if i >= len(tce.CancellationReasons) {
		return false
	}
	code := tce.CancellationReasons[i].Code
	return code != nil && *code == "ConditionalCheckFailed"
}

func errPaymentUsed(paymentID string) error {
	return apperr.Conflict("payment %s has already been used for an order", paymentID)
}

// canClaim checks that a completed payment can be recorded as spent.
func (s *Service) canClaim(p *PaymentDetails) error {
	if p.PaymentID == "" {
		return apperr.Validation("a completed payment needs a gateway payment id")
	}
	if s.idem == nil {
		return errors.New("payment claims need an idempotency store")
	}
	return nil
}

func (s *Service) placed(ctx context.Context, o *Order) {
	ids := make([]string, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.ProductID
	}
	s.cache.Invalidate(ctx, ids...)
	s.count(ctx, MetricOrdersPlaced)
	s.events.Publish(ctx, notify.Event{
		Type:       notify.OrderPlaced,
		UserID:     o.UserID,
		EntityID:   o.ID,
		Status:     string(o.Status),
		Amount:     decimal.NewFromFloat(o.TotalAmount).StringFixed(2),
		OccurredAt: o.CreatedAt,
	})
	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int("lines", len(o.Items)),
		zap.Float64("total", o.TotalAmount),
		zap.String("payment_status", string(o.PaymentDetails.Status)))
}

// GetOrder returns an order owned by userID. Orders of other users are
// reported as not found.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil || o.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

// GetAnyOrder is the admin lookup.
func (s *Service) GetAnyOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Validation("invalid status %q", filter.Status)
	}
	return s.orders.List(ctx, filter)
}

// UpdateOwnOrderStatus is the owner's self-service status change. A payment
// update that claims completion must carry a valid gateway signature.
func (s *Service) UpdateOwnOrderStatus(ctx context.Context, orderID, userID string, status Status, payment *PaymentDetails) (*Order, error) {
	if !status.Valid() {
		return nil, apperr.Validation("invalid status %q", status)
	}
	o, err := s.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		if payment.Status == "" {
			payment.Status = PaymentPending
		}
		if !payment.Status.Valid() {
			return nil, apperr.Validation("invalid payment status %q", payment.Status)
		}
		if payment.Status == PaymentCompleted {
			if !s.verified(payment) {
				s.count(ctx, MetricPaymentVerifyFailed)
				return nil, apperr.PaymentFailed(errors.New("payment signature mismatch"))
			}
			claim, err := s.paymentClaim(ctx, o.ID, payment)
			if err != nil {
				return nil, err
			}
			if claim != nil {
				return s.changeStatus(ctx, o, status, payment, audit.Actor{ID: userID, Role: audit.RoleUser}, "", *claim)
			}
		}
	}
	return s.changeStatus(ctx, o, status, payment, audit.Actor{ID: userID, Role: audit.RoleUser}, "")
}

// paymentClaim returns the write that marks payment as spent on orderID, or
// nil when the payment already backs this order.
func (s *Service) paymentClaim(ctx context.Context, orderID string, payment *PaymentDetails) (*types.TransactWriteItem, error) {
	if err := s.canClaim(payment); err != nil {
		return nil, err
	}
	owner, err := s.idem.PaymentOwner(ctx, payment.PaymentID)
	if err != nil {
		return nil, err
	}
	switch owner {
	case "":
		claim := s.idem.ClaimPayment(payment.PaymentID, orderID, s.nowFunc())
		return &claim, nil
	case orderID:
		return nil, nil
	default:
		return nil, errPaymentUsed(payment.PaymentID)
	}
}

// SetOrderStatus is the admin transition: any order, any status.
func (s *Service) SetOrderStatus(ctx context.Context, orderID string, status Status, actor audit.Actor, notes string) (*Order, error) {
	if !status.Valid() {
		return nil, apperr.Validation("invalid status %q", status)
	}
	o, err := s.GetAnyOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.changeStatus(ctx, o, status, nil, actor, notes)
}

// changeStatus writes next conditioned on the status last read, with the
// audit entry and claim (a payment claim, if any) in the same transaction.
// A lost race is retried once against a fresh read.
func (s *Service) changeStatus(ctx context.Context, o *Order, next Status, payment *PaymentDetails, actor audit.Actor, notes string, claim ...types.TransactWriteItem) (*Order, error) {
	for attempt := 0; ; attempt++ {
		entry := audit.NewEntry(audit.EntityOrder, o.ID, actor, string(o.Status), string(next), notes, s.nowFunc())
		put, err := s.audit.PutItem(entry)
		if err != nil {
			return nil, err
		}
		// order update, audit put, then the claim
		err = s.orders.UpdateStatus(ctx, o.ID, o.Status, next, payment, append([]types.TransactWriteItem{put}, claim...)...)
		if err == nil {
			break
		}
		var tce *types.TransactionCanceledException
		if len(claim) > 0 && errors.As(err, &tce) && conditionFailed(tce, 2) {
			return nil, errPaymentUsed(payment.PaymentID)
		}
		if !errors.Is(err, ErrStatusMismatch) {
			return nil, err
		}
		if attempt > 0 {
			return nil, apperr.Conflict("order status changed concurrently, please retry")
		}
		if o, err = s.GetAnyOrder(ctx, o.ID); err != nil {
			return nil, err
		}
	}

	prev := o.Status
	updated, err := s.GetAnyOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("actor", actor.ID),
		zap.String("role", actor.Role))
	if prev != next {
		s.events.Publish(ctx, notify.Event{
			Type:       notify.OrderStatusChanged,
			UserID:     updated.UserID,
			EntityID:   updated.ID,
			Status:     string(next),
			Notes:      notes,
			OccurredAt: updated.UpdatedAt,
		})
	}
	return updated, nil
}

func (s *Service) verified(p *PaymentDetails) bool {
	if s.verifier == nil || p.OrderID == "" || p.PaymentID == "" || p.Signature == "" {
		return false
	}
	return s.verifier.Verify(p.OrderID, p.PaymentID, p.Signature)
}

// count records a metric without letting a metrics outage affect the request.
func (s *Service) count(ctx context.Context, name string) {
	if s.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricTimeout)
	defer cancel()
	if err := s.metrics.Count(ctx, name, 1); err != nil {
		s.logger.Warn("metric not recorded", zap.String("metric", name), zap.Error(err))
	}
}

// CountPaymentFailure lets the payment flow record rejected signatures.
func (s *Service) CountPaymentFailure(ctx context.Context) {
	s.count(ctx, MetricPaymentVerifyFailed)
}

func mergeLines(reqs []LineRequest) ([]LineRequest, error) {
	if len(reqs) == 0 {
		return nil, apperr.Validation("order must contain at least one item")
	}
	idx := make(map[string]int, len(reqs))
	lines := make([]LineRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.ProductID == "" {
			return nil, apperr.Validation("productId is required")
		}
		if r.Quantity < 1 {
			return nil, apperr.Validation("quantity for product %s must be at least 1", r.ProductID)
		}
		if i, ok := idx[r.ProductID]; ok {
			lines[i].Quantity += r.Quantity
			continue
		}
		idx[r.ProductID] = len(lines)
		lines = append(lines, r)
	}
	if len(lines) > maxDistinctProducts {
		return nil, apperr.Validation("an order can contain at most %d different products", maxDistinctProducts)
	}
	return lines, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
