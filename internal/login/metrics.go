// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package login

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeAdmitted labels a successful login.
const OutcomeAdmitted = "admitted"

// LoginAttempts counts finished handshakes by outcome: "admitted" or the
// lower-cased abort code.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "glowline_login_attempts_total",
		Help: "Total number of finished login handshakes",
	},
	[]string{"outcome"},
)

// VerificationDuration observes session server round trips.
// Use RegisterMetrics to register this with a Prometheus registry.
var VerificationDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "glowline_login_verification_seconds",
		Help:    "Session server verification latency in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// RegisterMetrics registers login metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(VerificationDuration)
}

func outcomeLabel(code string) string {
	if code == "" {
		return "unknown"
	}
	return strings.ToLower(code)
}

func recordOutcome(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

func recordVerification(d time.Duration) {
	VerificationDuration.Observe(d.Seconds())
}
