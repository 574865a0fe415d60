// Package notify publishes customer notification events to the outbound
// queue. Publishing never blocks or fails the request that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/users"
)

// Event types.
const (
	OrderPlaced              = "order.placed"
	OrderStatusChanged       = "order.status_changed"
	ApplicationSubmitted     = "application.submitted"
	ApplicationStatusChanged = "application.status_changed"
)

const (
	defaultPublishTimeout = 5 * time.Second
	attrEventType         = "event_type"
	attrEntityID          = "entity_id"
)

// Event is the message body sent to the notifications queue.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	EntityID   string    `json:"entityId"`
	Status     string    `json:"status,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Sender delivers a message body with string attributes.
type Sender interface {
	Send(ctx context.Context, body string, attrs map[string]string) error
}

// Directory resolves a user id to a user record.
type Directory interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Notifier sends events asynchronously. A nil Sender disables sending.
type Notifier struct {
	sender  Sender
	dir     Directory
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func New(sender Sender, dir Directory, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, dir: dir, logger: logger, timeout: defaultPublishTimeout}
}

// Publish resolves the recipient and sends ev in a background goroutine.
// The request context is only used for its values, not its deadline.
func (n *Notifier) Publish(ctx context.Context, ev Event) {
	if n == nil || n.sender == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.send(ctx, ev); err != nil {
			n.logger.Warn("notification not sent",
				zap.String("event", ev.Type),
				zap.String("entity_id", ev.EntityID),
				zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (n *Notifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func (n *Notifier) send(ctx context.Context, ev Event) error {
	if ev.Email == "" && ev.UserID != "" && n.dir != nil {
		u, err := n.dir.GetByID(ctx, ev.UserID)
		if err != nil {
			return err
		}
		if u != nil {
			ev.Email, ev.Name = u.Email, u.Name
		}
	}
	if ev.Email == "" {
		n.logger.Debug("notification skipped, no recipient", zap.String("event", ev.Type), zap.String("entity_id", ev.EntityID))
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, string(body), map[string]string{
		attrEventType: ev.Type,
		attrEntityID:  ev.EntityID,
	})
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
