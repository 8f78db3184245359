// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// window tracks attempts for one identifier.
type window struct {
	count int
	start time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. It is safe for
// concurrent use.
//
// It runs a background goroutine that evicts expired windows. Call Close()
// to stop the goroutine.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	length  time.Duration
	now     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// nil if no registry provided
	windowGauge prometheus.Gauge
}

// NewMemoryLimiter creates a MemoryLimiter and starts its cleanup goroutine.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return newMemoryLimiter(cfg, nil)
}

// NewMemoryLimiterWithRegistry creates a MemoryLimiter and registers a gauge
// of tracked windows with reg.
func NewMemoryLimiterWithRegistry(cfg Config, reg prometheus.Registerer) *MemoryLimiter {
	return newMemoryLimiter(cfg, reg)
}

func newMemoryLimiter(cfg Config, reg prometheus.Registerer) *MemoryLimiter {
	cfg = cfg.withDefaults()

	l := &MemoryLimiter{
		windows:  make(map[string]*window),
		limit:    cfg.Limit,
		length:   cfg.Window,
		now:      cfg.Now,
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		l.windowGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recovery_ratelimit_windows",
			Help: "Current number of open rate limit windows",
		})
		reg.MustRegister(l.windowGauge)
	}

	l.wg.Add(1)
	go l.cleanupLoop(cfg.CleanupInterval)

	return l
}

// Allow records an attempt for key if its window has room.
// The check and the increment happen under one lock, so concurrent callers
// can never push a window past its limit. The error is always nil.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > l.length {
		w = &window{start: now}
		l.windows[key] = w
		l.updateGauge()
	}

	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Remaining returns how many attempts key has left in its current window.
func (l *MemoryLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().Sub(w.start) > l.length {
		return l.limit
	}
	return l.limit - w.count
}

// WindowCount returns the number of tracked windows.
func (l *MemoryLimiter) WindowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Cleanup removes windows that have closed. It runs automatically on the
// cleanup interval and can be called directly.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.start) > l.length {
			delete(l.windows, key)
		}
	}

	l.updateGauge()
}

// updateGauge publishes the window count. Callers hold l.mu.
func (l *MemoryLimiter) updateGauge() {
	if l.windowGauge != nil {
		l.windowGauge.Set(float64(len(l.windows)))
	}
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. Safe to call
// more than once.
func (l *MemoryLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
