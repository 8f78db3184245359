// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package email

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/recovery/pkg/errutil"
)

// Default AsyncSender settings.
const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 30 * time.Second
)

// ErrQueueFull is returned when the AsyncSender cannot accept more messages.
var ErrQueueFull = oops.Code("EMAIL_QUEUE_FULL").Errorf("email queue is full")

// ErrSenderClosed is returned when sending on a closed AsyncSender.
var ErrSenderClosed = oops.Code("EMAIL_SENDER_CLOSED").Errorf("email sender is closed")

// AsyncConfig configures an AsyncSender.
type AsyncConfig struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

type job struct {
	ctx context.Context
	msg ResetMessage
}

// AsyncSender hands messages to a wrapped Sender on a background worker so
// callers never wait on delivery. Failures are logged; there are no retries.
type AsyncSender struct {
	next    Sender
	queue   chan job
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSender starts a worker delivering through next.
// Call Close to drain the queue and stop the worker.
func NewAsyncSender(next Sender, cfg AsyncConfig) *AsyncSender {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &AsyncSender{
		next:    next,
		queue:   make(chan job, cfg.QueueSize),
		timeout: cfg.SendTimeout,
		logger:  cfg.Logger,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// SendPasswordReset enqueues msg without blocking.
// Returns ErrQueueFull if the queue is at capacity.
func (a *AsyncSender) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSenderClosed
	}

	// Keep request-scoped values (request and trace IDs) but not the
	// request's cancellation; the response is usually written before delivery.
	select {
	case a.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		queueDepth.Set(float64(len(a.queue)))
		return nil
	default:
		recordDispatch(StatusDropped)
		return ErrQueueFull
	}
}

// Close stops accepting messages, delivers what is queued, and waits for
// the worker to exit.
func (a *AsyncSender) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *AsyncSender) run() {
	defer a.wg.Done()
	for j := range a.queue {
		queueDepth.Set(float64(len(a.queue)))
		a.deliver(j)
	}
}

func (a *AsyncSender) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, a.timeout)
	defer cancel()

	if err := a.next.SendPasswordReset(ctx, j.msg); err != nil {
		errutil.LogErrorContext(ctx, a.logger, "queued password reset email failed", err)
	}
}
