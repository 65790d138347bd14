// Package mailer delivers transactional email over SMTP. Delivery is
// reported as a boolean; callers never see transport errors.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elskow/scribe/internal/config"
)

type Sender interface {
	Send(ctx context.Context, to, template string, params map[string]string) bool
}

type SMTPMailer struct {
	config *config.EmailConfig
	log    *zap.Logger
}

func NewSMTPMailer(config *config.EmailConfig, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{config: config, log: log}
}

func (m *SMTPMailer) Send(ctx context.Context, to, template string, params map[string]string) bool {
	subject, body, err := render(template, params)
	if err != nil {
		m.log.Error("failed to render email", zap.String("template", template), zap.Error(err))
		return false
	}

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := m.deliver(ctx, to, buildMessage(m.config.From, to, subject, body)); err != nil {
		m.log.Warn("email delivery failed",
			zap.String("template", template),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return false
	}

	m.log.Debug("email delivered", zap.String("template", template), zap.Duration("elapsed", time.Since(start)))
	return true
}

func (m *SMTPMailer) deliver(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(m.config.Host, strconv.Itoa(m.config.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.config.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}

	if m.config.Username != "" {
		auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(m.config.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}

// Disabled reports every message as undelivered.
type Disabled struct {
	log *zap.Logger
}

func NewDisabled(log *zap.Logger) *Disabled {
	return &Disabled{log: log}
}

func (d *Disabled) Send(_ context.Context, _ string, template string, _ map[string]string) bool {
	d.log.Warn("email disabled, message not sent", zap.String("template", template))
	return false
}
