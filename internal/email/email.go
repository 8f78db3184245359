// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package email delivers password reset messages.
//
// Senders are interchangeable behind the Sender interface:
//   - ConsoleSender - writes messages to a local stream, for development
//   - SMTPSender - delivers through an SMTP relay
//   - AsyncSender - queues messages for another Sender on a background worker
package email

import (
	"bytes"
	"context"
	"strconv"
	"text/template"
	"time"

	"github.com/samber/oops"
)

// ResetSubject is the subject line of password reset messages.
const ResetSubject = "Reset your password"

// ResetMessage is a password reset email. ResetLink carries the raw token
// and must not be logged.
type ResetMessage struct {
	To        string
	ResetLink string
	ExpiresIn time.Duration
}

// Sender delivers password reset messages.
type Sender interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

var resetBody = template.Must(template.New("reset").Parse(`Hello,

We received a request to reset the password for your account.
Open the link below to choose a new password:

{{.ResetLink}}

This link expires in {{.Expiry}} and can be used once.
If you did not ask for a password reset, you can ignore this email.
`))

// RenderReset returns the subject and plain-text body for msg.
func RenderReset(msg ResetMessage) (subject, body string, err error) {
	if msg.To == "" {
		return "", "", oops.Code("EMAIL_INVALID_MESSAGE").Errorf("recipient is required")
	}
	if msg.ResetLink == "" {
		return "", "", oops.Code("EMAIL_INVALID_MESSAGE").Errorf("reset link is required")
	}

	var buf bytes.Buffer
	data := struct {
		ResetLink string
		Expiry    string
	}{
		ResetLink: msg.ResetLink,
		Expiry:    DescribeExpiry(msg.ExpiresIn),
	}
	if err := resetBody.Execute(&buf, data); err != nil {
		return "", "", oops.Code("EMAIL_RENDER_FAILED").Wrap(err)
	}
	return ResetSubject, buf.String(), nil
}

// DescribeExpiry renders a TTL as a short human phrase ("1 hour", "30 minutes").
func DescribeExpiry(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short time"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
