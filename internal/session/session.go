// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package session tracks one client connection through login.
package session

import (
	"net"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/profile"
)

// Error codes raised by Session.
const (
	CodeEncryptionAlreadyEnabled = "ENCRYPTION_ALREADY_ENABLED"
	CodeIdentityAlreadyAssigned  = "IDENTITY_ALREADY_ASSIGNED"
	CodeSessionClosed            = "SESSION_CLOSED"
)

// Transport is the connection layer behind a Session.
type Transport interface {
	// EnableEncryption switches the connection to the cipher streams
	// derived from secret.
	EnableEncryption(secret []byte) error

	// Disconnect tells the client why it is being dropped, where the
	// protocol state allows it, and closes the connection.
	Disconnect(reason string)

	// Admit is called once the identity has been assigned.
	Admit(identity *profile.PlayerIdentity)
}

// Params are the values a Session is created with when the client
// starts logging in.
type Params struct {
	// ID defaults to a fresh ULID.
	ID          ulid.ULID
	Username    string
	ServerID    string
	VerifyToken []byte
	Address     net.Addr
	Transport   Transport
	Loop        executor.Executor
}

// Session is a connection in the middle of logging in. The connection
// layer owns it; the handshake borrows it for one attempt.
type Session struct {
	ID          ulid.ULID
	Username    string
	ServerID    string
	VerifyToken []byte
	Address     net.Addr

	// Loop is the connection's processing context.
	Loop executor.Executor

	transport Transport

	mu        sync.Mutex
	closed    bool
	started   bool
	encrypted bool
	identity  *profile.PlayerIdentity
}

// New creates an active session.
func New(p Params) *Session {
	token := make([]byte, len(p.VerifyToken))
	copy(token, p.VerifyToken)
	id := p.ID
	if id == (ulid.ULID{}) {
		id = ulid.Make()
	}
	return &Session{
		ID:          id,
		Username:    p.Username,
		ServerID:    p.ServerID,
		VerifyToken: token,
		Address:     p.Address,
		Loop:        p.Loop,
		transport:   p.Transport,
	}
}

// Active reports whether the underlying connection is still open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close marks the session inactive. Pending continuations that check
// Active will then do nothing.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// BeginHandshake claims the session's single handshake. It returns false
// if a handshake was already started or the session is closed.
func (s *Session) BeginHandshake() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return false
	}
	s.started = true
	return true
}

// EnableEncryption switches the transport to symmetric encryption. The
// transition is one-way; a second call is a programming error and is
// rejected without touching the transport.
func (s *Session) EnableEncryption(secret []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encrypted {
		return oops.Code(CodeEncryptionAlreadyEnabled).
			With("conn_id", s.ID.String()).
			Errorf("encryption already enabled")
	}
	if s.closed {
		return oops.Code(CodeSessionClosed).
			With("conn_id", s.ID.String()).
			Errorf("session closed")
	}
	if err := s.transport.EnableEncryption(secret); err != nil {
		return oops.With("conn_id", s.ID.String()).Wrap(err)
	}
	s.encrypted = true
	return nil
}

// Encrypted reports whether encryption has been enabled.
func (s *Session) Encrypted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encrypted
}

// Disconnect drops the client with reason and closes the session. It is a
// no-op on an already closed session.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.transport.Disconnect(reason)
}

// SetPlayer assigns the authenticated identity. Only one identity is ever
// assigned; the transport is then told to admit the player.
func (s *Session) SetPlayer(identity *profile.PlayerIdentity) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return oops.Code(CodeSessionClosed).
			With("conn_id", s.ID.String()).
			Errorf("session closed before admission")
	}
	if s.identity != nil {
		s.mu.Unlock()
		return oops.Code(CodeIdentityAlreadyAssigned).
			With("conn_id", s.ID.String()).
			Errorf("identity already assigned")
	}
	s.identity = identity
	s.mu.Unlock()

	s.transport.Admit(identity)
	return nil
}

// Identity returns the assigned identity, or nil before admission.
func (s *Session) Identity() *profile.PlayerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// IP returns the peer IP, or nil when the address carries none.
func (s *Session) IP() net.IP {
	switch addr := s.Address.(type) {
	case *net.TCPAddr:
		return addr.IP
	case *net.UDPAddr:
		return addr.IP
	case nil:
		return nil
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			host = addr.String()
		}
		return net.ParseIP(host)
	}
}
