// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package prelogin decides whether a verified account may join before
// its identity is assigned.
package prelogin

import (
	"context"
	"net"

	"github.com/google/uuid"
)

// DefaultDenyMessage is shown when a gate denies without its own message.
const DefaultDenyMessage = "You are not allowed to join this server"

// Decision is the outcome of a pre-login check.
type Decision struct {
	Allowed bool
	// Message is shown to the client on denial.
	Message string
}

// Allow admits the login.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny rejects the login with msg. An empty msg uses DefaultDenyMessage.
func Deny(msg string) Decision {
	if msg == "" {
		msg = DefaultDenyMessage
	}
	return Decision{Message: msg}
}

// Gate is a synchronous pre-login hook. Check runs on the connection's
// processing context and must not block for long.
type Gate interface {
	Check(ctx context.Context, name string, addr net.Addr, id uuid.UUID) Decision
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, name string, addr net.Addr, id uuid.UUID) Decision

// Check calls f.
func (f GateFunc) Check(ctx context.Context, name string, addr net.Addr, id uuid.UUID) Decision {
	return f(ctx, name, addr, id)
}

// AllowAll admits every login.
var AllowAll Gate = GateFunc(func(context.Context, string, net.Addr, uuid.UUID) Decision {
	return Allow()
})

type chain []Gate

// Chain runs gates in order and returns the first denial. Nil gates are
// skipped; an empty chain allows.
func Chain(gates ...Gate) Gate {
	c := make(chain, 0, len(gates))
	for _, g := range gates {
		if g != nil {
			c = append(c, g)
		}
	}
	return c
}

func (c chain) Check(ctx context.Context, name string, addr net.Addr, id uuid.UUID) Decision {
	for _, g := range c {
		if d := g.Check(ctx, name, addr, id); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// addrIP extracts the IP of addr, or nil when it has none.
func addrIP(addr net.Addr) net.IP {
	if addr == nil {
		return nil
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	return net.ParseIP(host)
}
