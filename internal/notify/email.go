package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/permanent"
)

// EmailSender delivers alert notifications through an SMTP relay.
// Params: relay host/port, sender address, and recipients.
// Returns: email channel sender.
type EmailSender struct {
	cfg config.EmailNotifier
}

// NewEmailSender creates the SMTP channel sender.
// Params: email notifier config.
// Returns: sender ready for delivery.
func NewEmailSender(cfg config.EmailNotifier) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *EmailSender) Channel() string {
	return ChannelEmail
}

// Send submits one alert as a plain-text message to the relay.
// Params: context and alert snapshot.
// Returns: SMTP submission error.
func (s *EmailSender) Send(_ context.Context, alert domain.Alert) error {
	if s.cfg.Host == "" {
		return permanent.Mark(errors.New("smtp host is not configured"))
	}
	if len(s.cfg.To) == 0 {
		return permanent.Mark(errors.New("no email recipients configured"))
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	return smtp.SendMail(addr, auth, s.cfg.From, s.cfg.To, buildEmailBody(s.cfg, alert))
}

// buildEmailBody renders the RFC 5322 message for one alert.
// Params: channel config and alert snapshot.
// Returns: raw message bytes with headers.
func buildEmailBody(cfg config.EmailNotifier, alert domain.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [%s] %s\r\n", alert.Severity, alert.Title)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(FormatMessage(alert), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
