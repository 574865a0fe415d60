package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/logging"
	"github.com/imrishuroy/go-storefront/internal/mailer"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var m mailer.Mailer
	if cfg.SMTPAddr != "" {
		m = mailer.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		logger.Warn("SMTP_ADDR not set, emails will only be logged")
		m = mailer.NewLogMailer(logger)
	}
	p := NewProcessor(m, logger)

	// RUN_LOCAL feeds a single message from LOCAL_SQS_BODY through the processor.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"type":"order.placed","email":"local@example.com","entityId":"local-order-1","amount":"10.00","status":"pending"}`
		}
		ev := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local", Body: body}}}
		if err := p.Handle(context.Background(), ev); err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	lambda.Start(p.Handle)
}
