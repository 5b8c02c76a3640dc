// Package notify delivers user-facing messages (password recovery mail).
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sso/internal/logging"
	"gopkg.in/gomail.v2"
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends multipart (html + text/plain) mail through gomail.
type SMTPSender struct {
	from   string
	dialer dialer
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, errors.New("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	return &SMTPSender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, text, html string) error {
	if to == "" {
		return errors.New("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	if html != "" {
		msg.SetBody("text/html", html)
		if text != "" {
			msg.AddAlternative("text/plain", text)
		}
	} else {
		msg.SetBody("text/plain", text)
	}

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender only logs that a message would have been sent. Bodies are not
// logged because they carry recovery tokens.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, subject, _, _ string) error {
	s.log.Info(ctx, "mail not delivered, no smtp configured", "to", to, "subject", subject)
	return nil
}
