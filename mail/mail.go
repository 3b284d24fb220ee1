// Package mail delivers the invite and password-reset emails.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"
	gomail "gopkg.in/mail.v2"
	"student-records-backend/config"
	"student-records-backend/log"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers m and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, m *Message) (string, error)
}

func NewSender(cfg config.Mail) (Sender, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		return NewSMTP(cfg), nil
	case config.TransportMailgun:
		return NewMailgun(cfg), nil
	case config.TransportLog:
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("mail: unknown transport %q", cfg.Transport)
	}
}

type SMTP struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTP(cfg config.Mail) *SMTP {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.Timeout = 15 * time.Second

	return &SMTP{from: cfg.Sender(), dialer: d}
}

func (s *SMTP) Send(ctx context.Context, m *Message) (string, error) {
	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.dialer.Host)

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetHeader("Message-ID", id)
	msg.SetBody("text/plain", m.Text)
	msg.AddAlternative("text/html", m.HTML)

	// DialAndSend cannot be cancelled; bail out early if the caller is gone.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("mail: smtp send: %w", err)
	}
	return id, nil
}

type Mailgun struct {
	from string
	mg   mailgun.Mailgun
}

func NewMailgun(cfg config.Mail) *Mailgun {
	return &Mailgun{
		from: cfg.Sender(),
		mg:   mailgun.NewMailgun(cfg.MailgunHost, cfg.MailgunKey),
	}
}

func (s *Mailgun) Send(ctx context.Context, m *Message) (string, error) {
	msg := s.mg.NewMessage(s.from, m.Subject, m.Text, m.To)
	msg.SetHtml(m.HTML)

	_, id, err := s.mg.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("mail: mailgun send: %w", err)
	}
	return id, nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m *Message) (string, error) {
	id := uuid.NewString()
	log.Logger.Info("mail not delivered (log transport)",
		zap.String("id", id),
		zap.String("subject", m.Subject),
	)
	// The body can carry a live reset link.
	log.Logger.Debug("undelivered mail body", zap.String("id", id), zap.String("text", m.Text))
	return id, nil
}
