// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package login

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/profile"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/internal/sessionserver"
)

const aliceBody = `{
	"id": "4566e69fc90748ee8d71d7ba5aa00d20",
	"name": "Alice",
	"properties": [
		{"name": "textures", "value": "eyJ0aW1lc3RhbXAiOjF9", "signature": "c2ln"}
	]
}`

var testKeys = sync.OnceValue(func() *crypt.KeyPair {
	keys, err := crypt.GenerateKeyPair(1024)
	if err != nil {
		panic(err)
	}
	return keys
})

// inline runs tasks on the submitting goroutine.
var inline = executor.Func(func(task func()) error {
	task()
	return nil
})

// manualExecutor queues tasks until the test runs them.
type manualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *manualExecutor) Submit(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return nil
}

func (e *manualExecutor) RunAll() int {
	e.mu.Lock()
	tasks := e.tasks
	e.tasks = nil
	e.mu.Unlock()
	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

type fakeTransport struct {
	mu       sync.Mutex
	encErr   error
	secrets  [][]byte
	reasons  []string
	admitted []*profile.PlayerIdentity
}

func (t *fakeTransport) EnableEncryption(secret []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.encErr != nil {
		return t.encErr
	}
	t.secrets = append(t.secrets, append([]byte(nil), secret...))
	return nil
}

func (t *fakeTransport) Disconnect(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reasons = append(t.reasons, reason)
}

func (t *fakeTransport) Admit(identity *profile.PlayerIdentity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admitted = append(t.admitted, identity)
}

func (t *fakeTransport) Secrets() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.secrets...)
}

func (t *fakeTransport) Reasons() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.reasons...)
}

func (t *fakeTransport) Admitted() []*profile.PlayerIdentity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*profile.PlayerIdentity(nil), t.admitted...)
}

// fakeVerifier answers with a fixed body or error. With hold set the
// answers wait for Release.
type fakeVerifier struct {
	mu       sync.Mutex
	body     []byte
	err      error
	hold     bool
	requests []sessionserver.Request
	pending  []func()
}

func (v *fakeVerifier) Verify(_ context.Context, req sessionserver.Request, exec executor.Executor, cb sessionserver.Callback) {
	v.mu.Lock()
	v.requests = append(v.requests, req)
	body, err := v.body, v.err
	deliver := func() {
		_ = exec.Submit(func() { cb(body, err) })
	}
	if v.hold {
		v.pending = append(v.pending, deliver)
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	deliver()
}

func (v *fakeVerifier) Release() {
	v.mu.Lock()
	pending := v.pending
	v.pending = nil
	v.mu.Unlock()
	for _, deliver := range pending {
		deliver()
	}
}

func (v *fakeVerifier) Requests() []sessionserver.Request {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]sessionserver.Request(nil), v.requests...)
}

type fixture struct {
	keys      *crypt.KeyPair
	engine    *crypt.Engine
	transport *fakeTransport
	verifier  *fakeVerifier
	sess      *session.Session
	secret    []byte
	token     []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keys := testKeys()
	f := &fixture{
		keys:      keys,
		engine:    crypt.NewEngine(keys),
		transport: &fakeTransport{},
		verifier:  &fakeVerifier{body: []byte(aliceBody)},
		secret:    []byte("0123456789abcdef"),
		token:     []byte{0xde, 0xad, 0xbe, 0xef},
	}
	f.sess = session.New(session.Params{
		Username:    "Alice",
		ServerID:    "6c2f0e4a1b",
		VerifyToken: f.token,
		Address:     &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 50123},
		Transport:   f.transport,
		Loop:        inline,
	})
	return f
}

func (f *fixture) encrypt(t *testing.T, plain []byte) []byte {
	t.Helper()
	out, err := rsa.EncryptPKCS1v15(rand.Reader, &f.keys.Private.PublicKey, plain)
	require.NoError(t, err)
	return out
}

func (f *fixture) response(t *testing.T, secret, token []byte) EncryptionResponse {
	t.Helper()
	return EncryptionResponse{
		SharedSecret: f.encrypt(t, secret),
		VerifyToken:  f.encrypt(t, token),
	}
}

func (f *fixture) validResponse(t *testing.T) EncryptionResponse {
	t.Helper()
	return f.response(t, f.secret, f.token)
}

func (f *fixture) orchestrator(t *testing.T, configure func(*Config)) *Orchestrator {
	t.Helper()
	cfg := Config{
		Engine:   f.engine,
		Verifier: f.verifier,
		Main:     inline,
	}
	if configure != nil {
		configure(&cfg)
	}
	o, err := NewOrchestrator(cfg)
	require.NoError(t, err)
	return o
}
