// Package mailer turns notification events into plain-text emails.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/notify"
)

var ErrNoRecipient = errors.New("mailer: message has no recipient")

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends through a single relay with optional PLAIN auth.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
	send sendFunc
}

func NewSMTPMailer(addr, username, password, from string) *SMTPMailer {
	m := &SMTPMailer{addr: addr, from: from, send: smtp.SendMail}
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw := buildMessage(m.from, msg, time.Now())
	if err := m.send(m.addr, m.auth, m.from, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func buildMessage(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogMailer records messages instead of sending them. Used when no SMTP
// relay is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	m.logger.Info("email (not sent, smtp disabled)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// Compose renders the email for an event. ok is false for event types that
// do not produce mail.
func Compose(ev notify.Event) (msg Message, ok bool) {
	greeting := "Hello"
	if ev.Name != "" {
		greeting = "Hello " + ev.Name
	}
	msg.To = ev.Email

	switch ev.Type {
	case notify.OrderPlaced:
		msg.Subject = "Order confirmation " + ev.EntityID
		msg.Body = fmt.Sprintf("%s,\n\nThanks for your order %s.\nTotal: %s\nStatus: %s\n",
			greeting, ev.EntityID, ev.Amount, ev.Status)
	case notify.OrderStatusChanged:
		msg.Subject = fmt.Sprintf("Order %s is now %s", ev.EntityID, ev.Status)
		msg.Body = fmt.Sprintf("%s,\n\nYour order %s is now %s.\n", greeting, ev.EntityID, ev.Status)
	case notify.ApplicationSubmitted:
		msg.Subject = "Application received " + ev.EntityID
		msg.Body = fmt.Sprintf("%s,\n\nWe received your application %s and will review it shortly.\n",
			greeting, ev.EntityID)
	case notify.ApplicationStatusChanged:
		msg.Subject = fmt.Sprintf("Application %s is now %s", ev.EntityID, ev.Status)
		msg.Body = fmt.Sprintf("%s,\n\nYour application %s is now %s.\n", greeting, ev.EntityID, ev.Status)
	default:
		return Message{}, false
	}
	if ev.Notes != "" {
		msg.Body += "\nNotes: " + ev.Notes + "\n"
	}
	return msg, true
}
