// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package email

import "github.com/prometheus/client_golang/prometheus"

// Status labels for dispatch metrics.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Dispatches counts delivery attempts by status.
var Dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "recovery_email_dispatch_total",
		Help: "Total number of password reset email dispatches by status",
	},
	[]string{"status"},
)

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "recovery_email_queue_depth",
		Help: "Number of password reset emails waiting for delivery",
	},
)

// RegisterMetrics registers email package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Dispatches)
	reg.MustRegister(queueDepth)
}

func recordDispatch(status string) {
	Dispatches.WithLabelValues(status).Inc()
}
