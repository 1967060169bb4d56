// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package players

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OnlineGauge is the gauge the server passes to WithGauge.
// Use RegisterMetrics to register this with a Prometheus registry.
var OnlineGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "glowline_players_online",
		Help: "Number of players currently logged in",
	},
)

// RegisterMetrics registers player metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OnlineGauge)
}
