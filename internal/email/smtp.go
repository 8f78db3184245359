// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Default SMTP settings.
const (
	DefaultSMTPPort    = 587
	DefaultSMTPTimeout = 10 * time.Second
)

// SMTPConfig configures an SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	// RequireTLS refuses to deliver when the relay does not offer STARTTLS,
	// so a stripped capability list cannot downgrade the session.
	RequireTLS bool
	// TLSConfig overrides the STARTTLS configuration. ServerName defaults to Host.
	TLSConfig *tls.Config
}

// ErrSTARTTLSRequired is returned when RequireTLS is set and the relay does
// not offer STARTTLS.
var ErrSTARTTLSRequired = oops.Code("EMAIL_STARTTLS_REQUIRED").Errorf("smtp relay does not offer STARTTLS")

// SMTPSender delivers messages through an SMTP relay, upgrading to TLS with
// STARTTLS when the server offers it. With RequireTLS the upgrade is
// mandatory.
type SMTPSender struct {
	cfg  SMTPConfig
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSMTPSender validates cfg and creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("EMAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("EMAIL_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, oops.Code("EMAIL_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	d := &net.Dialer{}
	return &SMTPSender{cfg: cfg, dial: d.DialContext}, nil
}

// Addr returns the relay address in host:port form.
func (s *SMTPSender) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// SendPasswordReset renders msg and delivers it to the relay.
func (s *SMTPSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	subject, body, err := RenderReset(msg)
	if err != nil {
		return err
	}
	if err := s.send(ctx, msg.To, buildMessage(s.cfg.From, msg.To, subject, body)); err != nil {
		recordDispatch(StatusFailed)
		return oops.Code("EMAIL_SMTP_FAILED").With("addr", s.Addr()).Wrap(err)
	}
	recordDispatch(StatusSent)
	return nil
}

func (s *SMTPSender) send(ctx context.Context, to string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", s.Addr())
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close() //nolint:errcheck // deadline error takes precedence
			return err
		}
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close() //nolint:errcheck // handshake error takes precedence
		return err
	}
	defer client.Close() //nolint:errcheck // Quit below reports the meaningful error

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsCfg := s.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		}
		if err := client.StartTLS(tlsCfg); err != nil {
			return err
		}
	} else if s.cfg.RequireTLS {
		return ErrSTARTTLSRequired
	}

	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close() //nolint:errcheck // write error takes precedence
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// buildMessage assembles an RFC 5322 plain-text message with CRLF line endings.
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}
