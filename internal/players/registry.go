// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package players tracks who is logged in.
package players

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/glowline/glowline/internal/profile"
	"github.com/glowline/glowline/internal/session"
)

// DuplicateLoginMessage is shown to a session replaced by a newer login
// of the same account.
const DuplicateLoginMessage = "You logged in from another location"

// CodeNoIdentity is returned when joining a session that was never admitted.
const CodeNoIdentity = "PLAYER_NO_IDENTITY"

// Player is a logged-in account.
type Player struct {
	Identity profile.PlayerIdentity
	Session  *session.Session
	JoinedAt time.Time
}

// Registry is the set of online players, keyed by account id. Join and
// Leave belong on the main executor; reads are safe from anywhere.
type Registry struct {
	mu      sync.RWMutex
	players map[uuid.UUID]*Player
	online  atomic.Int64

	gauge  prometheus.Gauge
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithGauge reports the online count to g.
func WithGauge(g prometheus.Gauge) Option {
	return func(r *Registry) {
		r.gauge = g
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		players: make(map[uuid.UUID]*Player),
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func copyPlayer(p *Player) *Player {
	props := make([]profile.Property, len(p.Identity.Properties))
	copy(props, p.Identity.Properties)
	cp := *p
	cp.Identity.Properties = props
	return &cp
}

// Join records the admitted sess. A previous login of the same account
// is kicked with DuplicateLoginMessage and replaced.
func (r *Registry) Join(sess *session.Session) (*Player, error) {
	identity := sess.Identity()
	if identity == nil {
		return nil, oops.Code(CodeNoIdentity).
			With("conn_id", sess.ID.String()).
			Errorf("session has no identity")
	}

	p := &Player{
		Identity: *identity,
		Session:  sess,
		JoinedAt: r.now(),
	}

	r.mu.Lock()
	previous := r.players[identity.ID]
	r.players[identity.ID] = p
	r.setOnlineLocked()
	r.mu.Unlock()

	if previous != nil && previous.Session != sess {
		r.logger.Info("replacing existing login",
			"event", "player_replaced",
			"player_id", identity.ID.String(),
			"username", identity.Name,
			"old_conn_id", previous.Session.ID.String(),
			"conn_id", sess.ID.String(),
		)
		previous.Session.Disconnect(DuplicateLoginMessage)
	}

	r.logger.Info("player joined",
		"event", "player_joined",
		"player_id", identity.ID.String(),
		"username", identity.Name,
		"conn_id", sess.ID.String(),
	)
	return copyPlayer(p), nil
}

// Leave removes sess if it is the current login of its account. It
// reports whether anything was removed; a session already replaced by a
// newer login leaves the newer one in place.
func (r *Registry) Leave(sess *session.Session) bool {
	identity := sess.Identity()
	if identity == nil {
		return false
	}

	r.mu.Lock()
	p, ok := r.players[identity.ID]
	if !ok || p.Session != sess {
		r.mu.Unlock()
		return false
	}
	delete(r.players, identity.ID)
	r.setOnlineLocked()
	r.mu.Unlock()

	r.logger.Info("player left",
		"event", "player_left",
		"player_id", identity.ID.String(),
		"username", identity.Name,
		"conn_id", sess.ID.String(),
	)
	return true
}

// Get returns a copy of the player with id.
func (r *Registry) Get(id uuid.UUID) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[id]
	if !ok {
		return nil, false
	}
	return copyPlayer(p), true
}

// Online returns the number of logged-in players.
func (r *Registry) Online() int {
	return int(r.online.Load())
}

// List returns copies of all players ordered by join time.
func (r *Registry) List() []*Player {
	r.mu.RLock()
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, copyPlayer(p))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *Registry) setOnlineLocked() {
	n := len(r.players)
	r.online.Store(int64(n))
	if r.gauge != nil {
		r.gauge.Set(float64(n))
	}
}
