// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Connections counts accepted connections.
// Use RegisterMetrics to register this with a Prometheus registry.
var Connections = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "glowline_connections_total",
		Help: "Total number of accepted connections",
	},
)

// ThrottledLogins counts logins refused by the per-IP throttle.
// Use RegisterMetrics to register this with a Prometheus registry.
var ThrottledLogins = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "glowline_logins_throttled_total",
		Help: "Total number of logins refused by the connection throttle",
	},
)

// RegisterMetrics registers gateway metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Connections)
	reg.MustRegister(ThrottledLogins)
}
