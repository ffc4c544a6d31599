// Package notify delivers messages that must leave the system out-of-band:
// password-reset codes and announcement broadcasts. The auth service only
// ever hands a reset code to a Sender; it is never placed in an HTTP
// response.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

// Sender is the outbound message channel.
type Sender interface {
	// SendResetCode delivers a password-reset code to the address.
	SendResetCode(ctx context.Context, email, code string) error
	// SendAnnouncement delivers a broadcast message to all recipients.
	SendAnnouncement(ctx context.Context, recipients []string, subject, body string) error
}

// LogSender is the development Sender: messages go to the structured log
// instead of a mail server.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendResetCode(ctx context.Context, email, code string) error {
	s.Logger.InfoContext(ctx, "password reset code issued", "email", email, "code", code)
	return nil
}

func (s LogSender) SendAnnouncement(ctx context.Context, recipients []string, subject, body string) error {
	s.Logger.InfoContext(ctx, "announcement sent",
		"recipients", len(recipients), "subject", subject, "bytes", len(body))
	return nil
}

// SMTPConfig holds the mail relay settings for the production Sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// ResetCodeTTL is quoted in the reset-code message. Zero leaves the
	// expiry unstated.
	ResetCodeTTL time.Duration
}

// SMTPSender delivers mail through a plain-auth SMTP relay.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates a Sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *SMTPSender) auth() smtp.Auth {
	if s.cfg.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
}

func (s *SMTPSender) send(to []string, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(s.addr(), s.auth(), s.cfg.From, to, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// resetCodeBody renders the reset-code mail text.
func resetCodeBody(code string, ttl time.Duration) string {
	expiry := "It expires shortly."
	if ttl > 0 {
		expiry = "It expires in " + formatTTL(ttl) + "."
	}
	return fmt.Sprintf("Your password reset code is %s.\n\n%s If you did not request a reset, ignore this message.", code, expiry)
}

func formatTTL(ttl time.Duration) string {
	if m := int(ttl.Minutes()); m >= 1 {
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return fmt.Sprintf("%d seconds", int(ttl.Seconds()))
}

func (s *SMTPSender) SendResetCode(_ context.Context, email, code string) error {
	body := resetCodeBody(code, s.cfg.ResetCodeTTL)
	return s.send([]string{email}, "Your password reset code", body)
}

func (s *SMTPSender) SendAnnouncement(_ context.Context, recipients []string, subject, body string) error {
	return s.send(recipients, subject, body)
}
