// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for reset metrics.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRateLimited  = "rate_limited"
	OutcomeInvalidEmail = "invalid_email"
	OutcomeSuccess      = "success"
	OutcomeInvalidToken = "invalid_token"
	OutcomeWeakPassword = "weak_password"
	OutcomeUnknownUser  = "user_not_found"
	OutcomeError        = "error"
	OutcomeIssued       = "issued"
	OutcomeDropped      = "dropped"
)

// ResetRequests counts password reset requests by outcome. Accepted
// requests are not split by account existence.
var ResetRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recovery_reset_requests_total",
		Help: "Total number of password reset requests by outcome",
	},
	[]string{"outcome"},
)

// ResetConfirms counts password reset confirmations by outcome.
var ResetConfirms = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recovery_reset_confirms_total",
		Help: "Total number of password reset confirmations by outcome",
	},
	[]string{"outcome"},
)

// ResetIssues counts background token issuance for known accounts by
// outcome.
var ResetIssues = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recovery_reset_issues_total",
		Help: "Total number of background reset token issuances by outcome",
	},
	[]string{"outcome"},
)

// ResetRequestDuration observes how long RequestReset takes end to end.
var ResetRequestDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "recovery_reset_request_duration_seconds",
		Help:    "Password reset request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ResetRequests)
	reg.MustRegister(ResetConfirms)
	reg.MustRegister(ResetIssues)
	reg.MustRegister(ResetRequestDuration)
}

func recordRequest(outcome string, started time.Time) {
	ResetRequests.WithLabelValues(outcome).Inc()
	ResetRequestDuration.Observe(time.Since(started).Seconds())
}

func recordIssue(outcome string) {
	ResetIssues.WithLabelValues(outcome).Inc()
}

func recordConfirm(outcome string) {
	ResetConfirms.WithLabelValues(outcome).Inc()
}
