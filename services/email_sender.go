package services

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"learning-platform/logger"
)

// Attachment is an in-memory file attached to an email.
type Attachment struct {
	Name string
	Data []byte
}

// Email is a single outgoing HTML message.
type Email struct {
	To          string
	Subject     string
	HTMLBody    string
	Attachments []Attachment
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPConfig holds SMTP delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPMailer sends mail through an SMTP relay with gomail.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("email sender not configured (set EMAIL_FROM or SMTP_USER)")
	}
	if cfg.User == "" || cfg.Password == "" {
		return nil, fmt.Errorf("smtp credentials not configured (set SMTP_USER and SMTP_PASS)")
	}
	return &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}, nil
}

// Send delivers email. The context is only checked before dialing; gomail
// has no cancellation support.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if email.To == "" {
		return fmt.Errorf("email recipient is required")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTMLBody)

	for _, a := range email.Attachments {
		data := a.Data
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		logger.Error("Failed to send email to %s: %v", email.To, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.Info("Email sent to %s (%s)", email.To, email.Subject)
	return nil
}
