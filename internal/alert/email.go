package alert

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

// EmailSink delivers one SMTP message per event (spec.md §4.7). Built on
// net/smtp: no example repo in the retrieval pack wires a third-party
// SMTP client for this exact "plain outbound integration" concern (see
// DESIGN.md), so the standard library is the grounded choice here.
type EmailSink struct {
	cfg config.EmailConfig
}

func NewEmailSink(cfg config.EmailConfig) *EmailSink {
	return &EmailSink{cfg: cfg}
}

func (s *EmailSink) Send(_ context.Context, line string, _ Event) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: taskmasterd alert\r\n\r\n%s\r\n", s.cfg.From, s.cfg.To, line)
	return smtp.SendMail(addr, auth, s.cfg.From, []string{s.cfg.To}, []byte(msg))
}

func (s *EmailSink) Close() error { return nil }
