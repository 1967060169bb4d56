// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/gateway"
	"github.com/glowline/glowline/internal/login"
	"github.com/glowline/glowline/internal/players"
	"github.com/glowline/glowline/internal/protocol"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/internal/sessionserver"
)

const aliceProfile = `{"id":"4566e69fc90748ee8d71d7ba5aa00d20","name":"Alice","properties":[{"name":"textures","value":"dGV4","signature":"c2ln"}]}`

// sessionService fakes the hasJoined endpoint.
type sessionService struct {
	mu      sync.Mutex
	status  int
	body    string
	queries []map[string]string
}

func (s *sessionService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := map[string]string{}
	for k := range r.URL.Query() {
		q[k] = r.URL.Query().Get(k)
	}
	s.queries = append(s.queries, q)
	w.WriteHeader(s.status)
	_, _ = io.WriteString(w, s.body)
}

func (s *sessionService) Queries() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.queries...)
}

type byteReader struct {
	r io.Reader
	b [1]byte
}

func (b *byteReader) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.b[:]); err != nil {
		return 0, err
	}
	return b.b[0], nil
}

// player is the client side of a login.
type player struct {
	conn net.Conn
	sc   *session.Conn
	r    *byteReader
}

func dialPlayer(addr string) *player {
	conn, err := net.Dial("tcp", addr)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = conn.Close() })
	Expect(conn.SetDeadline(time.Now().Add(10 * time.Second))).To(Succeed())
	sc := session.NewConn(conn)
	return &player{conn: conn, sc: sc, r: &byteReader{r: sc}}
}

func appendString(b []byte, s string) []byte {
	b = protocol.AppendVarInt(b, int32(len(s))) //nolint:gosec // test input
	return append(b, s...)
}

func readField(r *bytes.Reader) []byte {
	n, err := protocol.ReadVarInt(r)
	Expect(err).NotTo(HaveOccurred())
	buf := make([]byte, n)
	_, err = io.ReadFull(r, buf)
	Expect(err).NotTo(HaveOccurred())
	return buf
}

func (p *player) send(id int32, payload []byte) {
	Expect(protocol.WriteFrame(p.sc, id, payload)).To(Succeed())
}

func (p *player) read() protocol.Frame {
	f, err := protocol.ReadFrame(p.r)
	Expect(err).NotTo(HaveOccurred())
	return f
}

// login walks the handshake up to the point where both sides encrypt and
// returns the server id and secret the client used.
func (p *player) login(name string) (serverID string, secret, publicKey []byte) {
	hs := protocol.AppendVarInt(nil, 767)
	hs = appendString(hs, "localhost")
	hs = append(hs, 0x63, 0xdd)
	hs = protocol.AppendVarInt(hs, protocol.NextStateLogin)
	p.send(protocol.IDHandshake, hs)
	p.send(protocol.IDLoginStart, appendString(nil, name))

	f := p.read()
	Expect(f.ID).To(Equal(protocol.IDEncryptionRequest))
	r := bytes.NewReader(f.Payload)
	serverID = string(readField(r))
	publicKey = readField(r)
	token := readField(r)

	parsed, err := x509.ParsePKIXPublicKey(publicKey)
	Expect(err).NotTo(HaveOccurred())
	pub, ok := parsed.(*rsa.PublicKey)
	Expect(ok).To(BeTrue())

	secret = make([]byte, crypt.SharedSecretSize)
	_, err = rand.Read(secret)
	Expect(err).NotTo(HaveOccurred())
	encSecret, err := rsa.EncryptPKCS1v15(rand.Reader, pub, secret)
	Expect(err).NotTo(HaveOccurred())
	encToken, err := rsa.EncryptPKCS1v15(rand.Reader, pub, token)
	Expect(err).NotTo(HaveOccurred())

	payload := protocol.AppendVarInt(nil, int32(len(encSecret))) //nolint:gosec // test input
	payload = append(payload, encSecret...)
	payload = protocol.AppendVarInt(payload, int32(len(encToken))) //nolint:gosec // test input
	payload = append(payload, encToken...)
	p.send(protocol.IDEncryptionResponse, payload)

	Expect(p.sc.EnableEncryption(secret)).To(Succeed())
	return serverID, secret, publicKey
}

var _ = Describe("Online-mode login", func() {
	var (
		service  *sessionService
		registry *players.Registry
		addr     string
		keys     *crypt.KeyPair
	)

	BeforeEach(func() {
		env.truncate()

		var err error
		keys, err = crypt.GenerateKeyPair(1024)
		Expect(err).NotTo(HaveOccurred())

		service = &sessionService{status: http.StatusOK, body: aliceProfile}
		hasJoined := httptest.NewServer(service)
		DeferCleanup(hasJoined.Close)

		ctx, cancel := context.WithCancel(context.Background())
		mainExec := executor.NewSerial("main", nil)
		mainExec.Start(ctx)

		registry = players.NewRegistry()
		verifier, err := sessionserver.NewClient(sessionserver.Config{
			BaseURL:      hasJoined.URL + "/session/minecraft/hasJoined",
			PreventProxy: true,
		})
		Expect(err).NotTo(HaveOccurred())

		engine := crypt.NewEngine(keys)
		orch, err := login.NewOrchestrator(login.Config{
			Engine:   engine,
			Verifier: verifier,
			Main:     mainExec,
			OnAdmit: func(sess *session.Session) error {
				_, err := registry.Join(sess)
				return err
			},
		})
		Expect(err).NotTo(HaveOccurred())

		srv, err := gateway.NewServer(gateway.Config{
			Handshaker: orch,
			Engine:     engine,
			Main:       mainExec,
			Players:    registry,
			Audit:      env.recorder,
		})
		Expect(err).NotTo(HaveOccurred())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr = listener.Addr().String()

		served := make(chan error, 1)
		go func() { served <- srv.Serve(ctx, listener) }()

		DeferCleanup(func() {
			cancel()
			Eventually(served).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
			mainExec.Stop()
			<-mainExec.Done()
		})
	})

	It("admits a verified player and records the login", func() {
		p := dialPlayer(addr)
		serverID, secret, publicKey := p.login("Alice")

		f := p.read()
		Expect(f.ID).To(Equal(protocol.IDLoginSuccess))
		r := bytes.NewReader(f.Payload)
		Expect(string(readField(r))).To(Equal("4566e69f-c907-48ee-8d71-d7ba5aa00d20"))
		Expect(string(readField(r))).To(Equal("Alice"))

		wantHash, err := crypt.NewEngine(keys).SessionHash(serverID, secret, publicKey)
		Expect(err).NotTo(HaveOccurred())
		queries := service.Queries()
		Expect(queries).To(HaveLen(1))
		Expect(queries[0]).To(HaveKeyWithValue("username", "Alice"))
		Expect(queries[0]).To(HaveKeyWithValue("serverId", wantHash))
		Expect(queries[0]).To(HaveKeyWithValue("ip", "127.0.0.1"))

		Eventually(registry.Online).Should(Equal(1))

		playerID := uuid.MustParse("4566e69f-c907-48ee-8d71-d7ba5aa00d20")
		Eventually(func() int {
			logins, err := env.recorder.Recent(env.ctx, playerID, 10)
			Expect(err).NotTo(HaveOccurred())
			return len(logins)
		}).WithTimeout(5 * time.Second).Should(Equal(1))

		logins, err := env.recorder.Recent(env.ctx, playerID, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(logins[0].Name).To(Equal("Alice"))
		Expect(logins[0].Address).To(Equal("127.0.0.1"))
		Expect(logins[0].Properties).To(Equal(1))

		Expect(p.conn.Close()).To(Succeed())
		Eventually(registry.Online).Should(Equal(0))
	})

	It("disconnects a player the session server does not know", func() {
		service.mu.Lock()
		service.status = http.StatusNoContent
		service.body = ""
		service.mu.Unlock()

		p := dialPlayer(addr)
		p.login("Mallory")

		f := p.read()
		Expect(f.ID).To(Equal(protocol.IDDisconnect))
		reason := string(readField(bytes.NewReader(f.Payload)))
		Expect(reason).To(Equal(protocol.ReasonJSON(login.MessageVerifyFailed)))

		Consistently(registry.Online, 200*time.Millisecond).Should(Equal(0))
	})

	It("disconnects when the session server is failing", func() {
		service.mu.Lock()
		service.status = http.StatusInternalServerError
		service.mu.Unlock()

		p := dialPlayer(addr)
		p.login("Alice")

		f := p.read()
		Expect(f.ID).To(Equal(protocol.IDDisconnect))
		reason := string(readField(bytes.NewReader(f.Payload)))
		Expect(reason).To(Equal(protocol.ReasonJSON(login.MessageServiceUnavailable)))
	})
})
