// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package login

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/prelogin"
	"github.com/glowline/glowline/internal/profile"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/internal/sessionserver"
	"github.com/glowline/glowline/pkg/errutil"
)

// Verifier asks the session server whether a player joined. The callback
// must be submitted to exec exactly once.
type Verifier interface {
	Verify(ctx context.Context, req sessionserver.Request, exec executor.Executor, cb sessionserver.Callback)
}

// AdmitFunc runs on the main executor right after the identity has been
// assigned. An error aborts the login.
type AdmitFunc func(sess *session.Session) error

// EncryptionResponse is the client's answer to the encryption request,
// both fields still RSA encrypted.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Engine   *crypt.Engine
	Verifier Verifier

	// Gate defaults to prelogin.AllowAll.
	Gate prelogin.Gate

	// Main is the executor that owns shared server state.
	Main executor.Executor

	OnAdmit AdmitFunc
	Logger  *slog.Logger
}

// Orchestrator drives encryption-response handshakes.
type Orchestrator struct {
	engine   *crypt.Engine
	verifier Verifier
	gate     prelogin.Gate
	main     executor.Executor
	onAdmit  AdmitFunc
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewOrchestrator validates cfg. A nil Engine is accepted; every
// handshake then fails with CRYPTO_INIT_FAILED.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Verifier == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("verifier is required")
	}
	if cfg.Main == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("main executor is required")
	}
	o := &Orchestrator{
		engine:   cfg.Engine,
		verifier: cfg.Verifier,
		gate:     cfg.Gate,
		main:     cfg.Main,
		onAdmit:  cfg.OnAdmit,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("github.com/glowline/glowline/internal/login"),
	}
	if o.gate == nil {
		o.gate = prelogin.AllowAll
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o, nil
}

type handshake struct {
	o       *Orchestrator
	ctx     context.Context
	sess    *session.Session
	attempt *Attempt
	span    trace.Span
}

// Handle starts the handshake for resp. It must be called on sess.Loop.
// The steps up to the verification request run before Handle returns;
// the returned Attempt reports the rest.
func (o *Orchestrator) Handle(ctx context.Context, sess *session.Session, resp EncryptionResponse) *Attempt {
	ctx, span := o.tracer.Start(ctx, "login.handshake",
		trace.WithAttributes(
			attribute.String("glowline.conn_id", sess.ID.String()),
			attribute.String("glowline.username", sess.Username),
		),
	)
	h := &handshake{o: o, ctx: ctx, sess: sess, attempt: newAttempt(), span: span}
	h.start(resp)
	return h.attempt
}

func (h *handshake) start(resp EncryptionResponse) {
	if !h.sess.BeginHandshake() {
		if !h.sess.Active() {
			h.fail(h.closed())
			return
		}
		h.fail(oops.Code(CodeHandshakeStarted).
			With("conn_id", h.sess.ID.String()).
			Errorf("handshake already started for this connection"))
		return
	}

	engine := h.o.engine
	if err := engine.Ready(); err != nil {
		h.fail(err)
		return
	}

	secret, err := engine.DecryptSharedSecret(resp.SharedSecret)
	if err != nil {
		h.fail(err)
		return
	}
	h.attempt.advance(StateSecretDecrypted)

	token, err := engine.DecryptVerifyToken(resp.VerifyToken)
	if err != nil {
		h.fail(err)
		return
	}
	if !crypt.ConstantTimeEquals(token, h.sess.VerifyToken) {
		h.fail(oops.Code(CodeTokenMismatch).
			With("conn_id", h.sess.ID.String()).
			Errorf("verify token does not match"))
		return
	}
	h.attempt.advance(StateTokenVerified)

	if err := h.sess.EnableEncryption(secret); err != nil {
		h.fail(err)
		return
	}
	h.attempt.advance(StateEncryptionEnabled)

	hash, err := engine.SessionHash(h.sess.ServerID, secret, engine.PublicKey())
	if err != nil {
		h.fail(err)
		return
	}

	h.attempt.advance(StateAwaitingVerification)
	h.o.logger.Debug("verifying session",
		"event", "login_verify",
		"conn_id", h.sess.ID.String(),
		"username", h.sess.Username,
	)
	started := time.Now()
	h.o.verifier.Verify(h.ctx, sessionserver.Request{
		Username:   h.sess.Username,
		ServerHash: hash,
		IP:         h.sess.IP(),
	}, h.sess.Loop, func(body []byte, err error) {
		recordVerification(time.Since(started))
		h.resume(body, err)
	})
}

// resume runs on the connection's processing context once the session
// server answered.
func (h *handshake) resume(body []byte, err error) {
	if !h.sess.Active() {
		h.fail(h.closed())
		return
	}
	if err != nil {
		h.fail(err)
		return
	}

	p, err := sessionserver.Parse(body)
	if err != nil {
		h.fail(oops.With("username", h.sess.Username).Wrap(err))
		return
	}
	h.attempt.advance(StateResponseParsed)

	if d := h.o.gate.Check(h.ctx, p.Name, h.sess.Address, p.ID); !d.Allowed {
		h.fail(oops.Code(CodePolicyDenied).
			With("username", p.Name).
			With("player_id", p.ID.String()).
			With("message", d.Message).
			Errorf("pre-login check denied login"))
		return
	}

	identity := profile.NewPlayerIdentity(p)
	if err := h.o.main.Submit(func() { h.admit(identity) }); err != nil {
		h.fail(oops.Code(CodeSchedulingFailed).
			With("conn_id", h.sess.ID.String()).
			Wrap(err))
	}
}

// admit runs on the main executor.
func (h *handshake) admit(identity *profile.PlayerIdentity) {
	if !h.sess.Active() {
		h.fail(h.closed())
		return
	}
	if err := h.sess.SetPlayer(identity); err != nil {
		h.fail(err)
		return
	}
	if h.o.onAdmit != nil {
		if err := h.o.onAdmit(h.sess); err != nil {
			h.fail(oops.Code(CodeAdmissionFailed).
				With("conn_id", h.sess.ID.String()).
				Wrap(err))
			return
		}
	}
	if !h.attempt.admit(identity) {
		return
	}

	h.o.logger.Info("player logged in",
		"event", "login_admitted",
		"conn_id", h.sess.ID.String(),
		"username", identity.Name,
		"player_id", identity.ID.String(),
	)
	h.span.SetAttributes(attribute.String("glowline.player_id", identity.ID.String()))
	h.span.SetStatus(codes.Ok, "")
	h.span.End()
	recordOutcome(OutcomeAdmitted)
}

func (h *handshake) closed() error {
	return oops.Code(CodeConnectionClosed).
		With("conn_id", h.sess.ID.String()).
		Errorf("connection closed during login")
}

// fail aborts the attempt once and disconnects the client.
func (h *handshake) fail(err error) {
	prev := h.attempt.State()
	if !h.attempt.abortWith(err) {
		return
	}

	code := errutil.Code(err)
	out := classify(err)
	errutil.Log(h.ctx, h.o.logger, out.level, "login aborted", err,
		"event", "login_aborted",
		"conn_id", h.sess.ID.String(),
		"username", h.sess.Username,
		"state", prev.String(),
	)

	h.span.RecordError(err)
	h.span.SetStatus(codes.Error, code)
	h.span.End()
	recordOutcome(outcomeLabel(code))

	h.sess.Disconnect(out.message)
}
