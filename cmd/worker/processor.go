package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/mailer"
	"github.com/imrishuroy/go-storefront/internal/notify"
)

// Processor turns queued notification events into emails. Delivery is best
// effort: a bad message or a failed send is logged and the batch continues.
type Processor struct {
	mailer mailer.Mailer
	logger *zap.Logger
}

func NewProcessor(m mailer.Mailer, logger *zap.Logger) *Processor {
	return &Processor{mailer: m, logger: logger}
}

// Handle never returns an error so that Lambda does not redeliver the batch.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.logger.Debug("received notification batch", zap.Int("records", len(ev.Records)))
	for _, rec := range ev.Records {
		p.processMessage(ctx, rec)
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) {
	logger := p.logger.With(zap.String("message_id", rec.MessageId))

	var ev notify.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		logger.Error("invalid notification body", zap.Error(err))
		return
	}
	logger = logger.With(zap.String("event_type", ev.Type), zap.String("entity_id", ev.EntityID))

	msg, ok := mailer.Compose(ev)
	if !ok {
		logger.Warn("no email for event type")
		return
	}
	if msg.To == "" {
		logger.Warn("notification without recipient")
		return
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		logger.Error("email not sent", zap.Error(err))
		return
	}
	logger.Info("email sent")
}
