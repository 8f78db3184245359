// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package email

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/samber/oops"
)

// ConsoleSender writes rendered messages to a stream instead of delivering
// them. Intended for local development only: the output contains live
// reset links.
type ConsoleSender struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewConsoleSender creates a ConsoleSender writing to w.
// If w is nil, writes to os.Stdout. If logger is nil, slog.Default is used.
func NewConsoleSender(w io.Writer, logger *slog.Logger) *ConsoleSender {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSender{w: w, logger: logger}
}

// SendPasswordReset writes the message to the configured stream.
func (c *ConsoleSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	subject, body, err := RenderReset(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.w, "To: %s\nSubject: %s\n\n%s\n", msg.To, subject, body); err != nil {
		recordDispatch(StatusFailed)
		return oops.Code("EMAIL_CONSOLE_WRITE_FAILED").Wrap(err)
	}

	c.logger.DebugContext(ctx, "password reset email written to console")
	recordDispatch(StatusSent)
	return nil
}
