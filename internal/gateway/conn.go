// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/glowline/glowline/internal/audit"
	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/login"
	"github.com/glowline/glowline/internal/profile"
	"github.com/glowline/glowline/internal/protocol"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/pkg/errutil"
)

// Messages shown to clients dropped by the gateway itself.
const (
	TimeoutMessage          = "Took too long to log in"
	UnexpectedPacketMessage = "Unexpected packet during login"
)

const (
	verifyTokenSize = 4
	serverIDSize    = 8
)

type stage int

const (
	stageHandshake stage = iota
	stageLoginStart
	stageEncryption
	stageVerifying
	stageAdmitted
)

var stageNames = [...]string{"handshake", "login_start", "encryption", "verifying", "admitted"}

func (s stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// conn is one client connection. It implements session.Transport.
//
// Fields below loop are only touched by tasks running on loop.
type conn struct {
	srv    *Server
	raw    net.Conn
	sc     *session.Conn
	id     ulid.ULID
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loop   *executor.Serial

	stage stage
	timer *time.Timer

	sess      atomic.Pointer[session.Session]
	closeOnce sync.Once
}

func newConn(srv *Server, raw net.Conn) *conn {
	id := ulid.Make()
	logger := srv.logger.With("conn_id", id.String())
	return &conn{
		srv:    srv,
		raw:    raw,
		sc:     session.NewConn(raw),
		id:     id,
		logger: logger,
		loop:   executor.NewSerial("conn-"+id.String(), logger),
	}
}

// serve runs the connection until it closes.
func (c *conn) serve(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	defer c.teardown()

	stop := context.AfterFunc(c.ctx, c.closeConn)
	defer stop()

	c.logger.Debug("connection opened", "event", "connection_opened", "remote_addr", c.raw.RemoteAddr().String())

	c.loop.Start(c.ctx)
	c.timer = time.AfterFunc(c.srv.loginTimeout, c.expire)
	c.readLoop()
}

// readLoop reads frames and handles each on loop. The next read starts
// only after the previous frame was handled, so a frame that turns on
// encryption is never read ahead of the switch.
func (c *conn) readLoop() {
	r := &frameReader{r: c.sc}
	for {
		f, err := protocol.ReadFrame(r)
		if err != nil {
			c.readFailed(err)
			return
		}

		handled := make(chan struct{})
		if err := c.loop.Submit(func() {
			defer close(handled)
			c.handle(f)
		}); err != nil {
			return
		}
		select {
		case <-handled:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *conn) readFailed(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || c.ctx.Err() != nil {
		return
	}
	if errutil.Code(err) == protocol.CodeMalformed {
		errutil.Log(c.ctx, c.logger, slog.LevelWarn, "malformed frame", err, "event", "frame_malformed")
		c.submitKick(UnexpectedPacketMessage)
		return
	}
	c.logger.Debug("read failed", "event", "connection_read_failed", "error", err)
}

func (c *conn) handle(f protocol.Frame) {
	var err error
	switch c.stage {
	case stageHandshake:
		err = c.handleHandshake(f)
	case stageLoginStart:
		err = c.handleLoginStart(f)
	case stageEncryption, stageVerifying:
		err = c.handleEncryptionResponse(f)
	case stageAdmitted:
		// play traffic is not served here
	}
	if err != nil {
		errutil.Log(c.ctx, c.logger, slog.LevelWarn, "rejected packet", err,
			"event", "packet_rejected",
			"stage", c.stage.String(),
		)
		c.kick(UnexpectedPacketMessage)
	}
}

func (c *conn) handleHandshake(f protocol.Frame) error {
	var hs protocol.Handshake
	if err := protocol.Expect(f, protocol.IDHandshake, &hs); err != nil {
		return err
	}
	if hs.NextState != protocol.NextStateLogin {
		c.logger.Debug("unsupported next state", "event", "handshake_unsupported", "next_state", hs.NextState)
		c.kick("")
		return nil
	}
	if !c.srv.allowLogin(c.raw.RemoteAddr()) {
		c.logger.Info("login throttled", "event", "login_throttled", "remote_addr", c.raw.RemoteAddr().String())
		c.kick(ThrottleMessage)
		return nil
	}
	c.stage = stageLoginStart
	return nil
}

func (c *conn) handleLoginStart(f protocol.Frame) error {
	var ls protocol.LoginStart
	if err := protocol.Expect(f, protocol.IDLoginStart, &ls); err != nil {
		return err
	}

	engine := c.srv.engine
	if err := engine.Ready(); err != nil {
		errutil.Log(c.ctx, c.logger, slog.LevelError, "cannot start login", err,
			"event", "login_unavailable",
			"username", ls.Name,
		)
		c.kick(login.MessageInternal)
		return nil
	}

	token, serverID, err := newChallenge()
	if err != nil {
		errutil.Log(c.ctx, c.logger, slog.LevelError, "cannot start login", err,
			"event", "login_unavailable",
			"username", ls.Name,
		)
		c.kick(login.MessageInternal)
		return nil
	}

	sess := session.New(session.Params{
		ID:          c.id,
		Username:    ls.Name,
		ServerID:    serverID,
		VerifyToken: token,
		Address:     c.raw.RemoteAddr(),
		Transport:   c,
		Loop:        c.loop,
	})
	c.sess.Store(sess)

	c.logger.Debug("login started", "event", "login_started", "username", ls.Name)
	if err := c.write(protocol.EncryptionRequest{
		ServerID:    serverID,
		PublicKey:   engine.PublicKey(),
		VerifyToken: token,
	}); err != nil {
		c.logger.Debug("write failed", "event", "connection_write_failed", "error", err)
		c.kick("")
		return nil
	}
	c.stage = stageEncryption
	return nil
}

// handleEncryptionResponse hands the response to the handshaker. A
// second response reaches the handshaker too, which rejects it.
func (c *conn) handleEncryptionResponse(f protocol.Frame) error {
	var er protocol.EncryptionResponse
	if err := protocol.Expect(f, protocol.IDEncryptionResponse, &er); err != nil {
		return err
	}
	c.stage = stageVerifying
	c.srv.handshaker.Handle(c.ctx, c.sess.Load(), login.EncryptionResponse{
		SharedSecret: er.SharedSecret,
		VerifyToken:  er.VerifyToken,
	})
	return nil
}

// expire runs on the timer goroutine.
func (c *conn) expire() {
	_ = c.loop.Submit(func() {
		if c.stage == stageAdmitted {
			return
		}
		c.logger.Info("login timed out", "event", "login_timeout")
		c.kick(TimeoutMessage)
	})
}

// EnableEncryption implements session.Transport.
func (c *conn) EnableEncryption(secret []byte) error {
	return c.sc.EnableEncryption(secret)
}

// Disconnect implements session.Transport. It may run on any executor.
func (c *conn) Disconnect(reason string) {
	c.closeOnce.Do(func() {
		if reason != "" {
			if err := c.write(protocol.Disconnect{Reason: reason}); err != nil {
				c.logger.Debug("disconnect write failed", "event", "connection_write_failed", "error", err)
			}
		}
		c.closeConn()
	})
}

// Admit implements session.Transport. It runs on the main executor and
// hands the rest of the admission to loop.
func (c *conn) Admit(identity *profile.PlayerIdentity) {
	if err := c.loop.Submit(func() { c.admitted(identity) }); err != nil {
		c.logger.Debug("admission dropped", "event", "admission_dropped", "error", err)
	}
}

func (c *conn) admitted(identity *profile.PlayerIdentity) {
	c.stage = stageAdmitted
	c.timer.Stop()

	if err := c.write(protocol.LoginSuccess{
		UUID:     identity.ID.String(),
		Username: identity.Name,
	}); err != nil {
		c.logger.Debug("write failed", "event", "connection_write_failed", "error", err)
		c.kick("")
		return
	}
	c.srv.record(audit.Login{
		ID:         c.id,
		PlayerID:   identity.ID,
		Name:       identity.Name,
		Address:    hostOf(c.raw.RemoteAddr()),
		Properties: len(identity.Properties),
		CreatedAt:  time.Now().UTC(),
	})
}

// kick drops the client, through the session once there is one so that
// pending continuations see it inactive.
func (c *conn) kick(reason string) {
	if sess := c.sess.Load(); sess != nil {
		sess.Disconnect(reason)
		c.closeConn()
		return
	}
	c.Disconnect(reason)
}

// submitKick kicks from outside loop and waits for the kick to run.
func (c *conn) submitKick(reason string) {
	done := make(chan struct{})
	if err := c.loop.Submit(func() {
		defer close(done)
		c.kick(reason)
	}); err != nil {
		c.closeConn()
		return
	}
	select {
	case <-done:
	case <-c.ctx.Done():
	}
}

func (c *conn) write(p protocol.Clientbound) error {
	if err := c.raw.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return oops.Wrap(err)
	}
	return protocol.Write(c.sc, p)
}

func (c *conn) closeConn() {
	if err := c.raw.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("close failed", "event", "connection_close_failed", "error", err)
	}
}

func (c *conn) teardown() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.cancel()
	c.closeConn()

	c.loop.Stop()
	<-c.loop.Done()

	if sess := c.sess.Load(); sess != nil {
		sess.Close()
		c.srv.leave(sess)
	}
	c.logger.Debug("connection closed", "event", "connection_closed")
}

func newChallenge() (token []byte, serverID string, err error) {
	buf := make([]byte, verifyTokenSize+serverIDSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", oops.Code(crypt.CodeCryptoInit).Wrap(err)
	}
	return buf[:verifyTokenSize], hex.EncodeToString(buf[verifyTokenSize:]), nil
}

// frameReader reads straight from the connection without buffering
// ahead, so no ciphertext is consumed before decryption is on.
type frameReader struct {
	r io.Reader
	b [1]byte
}

func (f *frameReader) Read(p []byte) (int, error) {
	return f.r.Read(p) //nolint:wrapcheck // io.Reader contract
}

func (f *frameReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(f.r, f.b[:]); err != nil {
		return 0, err //nolint:wrapcheck // io.ByteReader contract
	}
	return f.b[0], nil
}
