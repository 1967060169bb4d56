// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package gateway accepts game connections and walks each one through
// the login phase.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/glowline/glowline/internal/audit"
	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/login"
	"github.com/glowline/glowline/internal/players"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/pkg/errutil"
)

// Defaults applied by NewServer.
const (
	DefaultLoginTimeout = 30 * time.Second
	DefaultLoginBurst   = 3

	writeTimeout = 5 * time.Second
	auditTimeout = 5 * time.Second

	acceptBackoffBase = 5 * time.Millisecond
	acceptBackoffCap  = time.Second
)

// Handshaker runs the encryption-response handshake for a session.
type Handshaker interface {
	Handle(ctx context.Context, sess *session.Session, resp login.EncryptionResponse) *login.Attempt
}

// Config holds the collaborators of a Server.
type Config struct {
	Addr       string
	Handshaker Handshaker
	Engine     *crypt.Engine

	// Main is the executor that owns the player registry.
	Main    executor.Executor
	Players *players.Registry

	// Audit defaults to audit.NopRecorder.
	Audit audit.Recorder

	// LoginRate is logins per second per IP. Zero disables throttling.
	LoginRate  float64
	LoginBurst int

	LoginTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the game listener.
type Server struct {
	addr         string
	handshaker   Handshaker
	engine       *crypt.Engine
	main         executor.Executor
	players      *players.Registry
	audit        audit.Recorder
	limiter      *ipLimiter
	loginTimeout time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	listener net.Listener

	wg sync.WaitGroup
}

// NewServer validates cfg. A nil Engine is accepted; every login then
// fails with an internal error.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Handshaker == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("handshaker is required")
	}
	if cfg.Main == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("main executor is required")
	}
	s := &Server{
		addr:         cfg.Addr,
		handshaker:   cfg.Handshaker,
		engine:       cfg.Engine,
		main:         cfg.Main,
		players:      cfg.Players,
		audit:        cfg.Audit,
		loginTimeout: cfg.LoginTimeout,
		logger:       cfg.Logger,
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = DefaultLoginBurst
	}
	s.limiter = newIPLimiter(cfg.LoginRate, burst)
	if s.audit == nil {
		s.audit = audit.NopRecorder{}
	}
	if s.loginTimeout <= 0 {
		s.loginTimeout = DefaultLoginTimeout
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled or the
// listener is closed. It waits for open connections to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("game server started", "event", "server_started", "addr", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil {
			s.logger.Debug("error closing listener", "error", err)
		}
	})
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := s.accept(ctx, listener)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("game server stopped", "event", "server_stopped")
				return nil
			}
			return oops.Code("ACCEPT_FAILED").Wrap(err)
		}
		Connections.Inc()

		c := newConn(s, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(ctx)
		}()
	}
}

// accept retries temporary accept failures with capped exponential
// backoff.
func (s *Server) accept(ctx context.Context, listener net.Listener) (net.Conn, error) {
	backoff := retry.WithCappedDuration(acceptBackoffCap, retry.NewExponential(acceptBackoffBase))

	var conn net.Conn
	err := retry.Do(ctx, backoff, func(context.Context) error {
		c, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("accept failed", "event", "accept_failed", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Serve
	}
	return conn, nil
}

// allowLogin applies the per-IP login throttle.
func (s *Server) allowLogin(addr net.Addr) bool {
	if s.limiter.Allow(hostOf(addr)) {
		return true
	}
	ThrottledLogins.Inc()
	return false
}

// record stores an admitted login without blocking the caller.
func (s *Server) record(l audit.Login) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := s.audit.Record(ctx, l); err != nil {
			errutil.Log(ctx, s.logger, slog.LevelWarn, "failed to record login", err,
				"event", "audit_record_failed",
				"conn_id", l.ID.String(),
				"username", l.Name,
			)
		}
	}()
}

// leave removes sess from the registry on the main executor.
func (s *Server) leave(sess *session.Session) {
	if s.players == nil || sess.Identity() == nil {
		return
	}
	if err := s.main.Submit(func() { s.players.Leave(sess) }); err != nil {
		s.logger.Debug("player leave dropped",
			"event", "player_leave_dropped",
			"conn_id", sess.ID.String(),
			"error", err,
		)
	}
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
