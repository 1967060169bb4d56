// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package prelogin

import (
	"context"
	"net"

	"github.com/google/uuid"
)

// FullMessage is shown when the server has no free slots.
const FullMessage = "The server is full!"

// Counter reports how many players are online. It is read from
// connection contexts, so implementations must be safe for concurrent use.
type Counter interface {
	Online() int
}

// CapacityGate denies logins once Max players are online. A Max of zero
// or less disables the limit.
type CapacityGate struct {
	Players Counter
	Max     int
}

// Check implements Gate.
func (g CapacityGate) Check(context.Context, string, net.Addr, uuid.UUID) Decision {
	if g.Max <= 0 || g.Players == nil {
		return Allow()
	}
	if g.Players.Online() >= g.Max {
		return Deny(FullMessage)
	}
	return Allow()
}
