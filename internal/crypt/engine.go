// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package crypt

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	// Registers SHA-512, the session hash digest.
	_ "crypto/sha512"
	"math/big"

	"github.com/samber/oops"
)

// SharedSecretSize is the AES-128 key length clients send.
const SharedSecretSize = 16

// Engine performs the handshake's asymmetric operations against one key pair.
type Engine struct {
	keys   *KeyPair
	digest crypto.Hash
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDigest overrides the session hash digest. Only tests and
// compatibility shims should need this.
func WithDigest(h crypto.Hash) EngineOption {
	return func(e *Engine) {
		e.digest = h
	}
}

// NewEngine creates an Engine over keys. A nil or incomplete key pair is
// accepted here and reported by Ready so that every login attempt fails
// the same way.
func NewEngine(keys *KeyPair, opts ...EngineOption) *Engine {
	e := &Engine{
		keys:   keys,
		digest: crypto.SHA512,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ready reports whether the engine can serve a handshake.
func (e *Engine) Ready() error {
	if e == nil || e.keys == nil || e.keys.Private == nil || len(e.keys.public) == 0 {
		return oops.Code(CodeCryptoInit).Errorf("server key pair is not loaded")
	}
	return nil
}

// PublicKey returns the DER encoded public key, or nil when not ready.
func (e *Engine) PublicKey() []byte {
	if e.Ready() != nil {
		return nil
	}
	return e.keys.PublicDER()
}

// DecryptSharedSecret decrypts the client's shared secret. The result must
// be exactly SharedSecretSize bytes.
func (e *Engine) DecryptSharedSecret(ciphertext []byte) ([]byte, error) {
	secret, err := e.decrypt(PartSharedSecret, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(secret) != SharedSecretSize {
		return nil, oops.Code(CodeDecryption).
			With("part", PartSharedSecret).
			With("length", len(secret)).
			Errorf("shared secret has wrong length")
	}
	return secret, nil
}

// DecryptVerifyToken decrypts the verify token echoed by the client.
func (e *Engine) DecryptVerifyToken(ciphertext []byte) ([]byte, error) {
	return e.decrypt(PartVerifyToken, ciphertext)
}

func (e *Engine) decrypt(part string, ciphertext []byte) ([]byte, error) {
	if err := e.Ready(); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 {
		return nil, oops.Code(CodeDecryption).
			With("part", part).
			Errorf("empty ciphertext")
	}
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, e.keys.Private, ciphertext)
	if err != nil {
		return nil, oops.Code(CodeDecryption).
			With("part", part).
			With("ciphertext_length", len(ciphertext)).
			Wrap(err)
	}
	return plain, nil
}

// SessionHash derives the server id hash the session server expects:
// digest(sessionID || secret || publicKey) rendered by SignedHex.
func (e *Engine) SessionHash(sessionID string, secret, publicKey []byte) (string, error) {
	if !e.digest.Available() {
		return "", oops.Code(CodeHashDerivation).
			With("digest", e.digest.String()).
			Errorf("digest algorithm unavailable")
	}
	h := e.digest.New()
	h.Write([]byte(sessionID))
	h.Write(secret)
	h.Write(publicKey)
	return SignedHex(h.Sum(nil)), nil
}

// SignedHex renders digest as a two's complement big-endian integer in
// lowercase hex without zero padding, prefixed with '-' when negative.
func SignedHex(digest []byte) string {
	n := new(big.Int).SetBytes(digest)
	if len(digest) > 0 && digest[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(digest))*8))
	}
	return n.Text(16)
}

// ConstantTimeEquals reports whether a and b hold the same bytes. Every
// byte of the longer operand is visited regardless of where the inputs
// first differ, and a length mismatch is folded in only at the end.
func ConstantTimeEquals(a, b []byte) bool {
	n := max(len(a), len(b))
	var diff byte
	for i := range n {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		diff |= x ^ y
	}
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b))) //nolint:gosec // token lengths are tiny
	return subtle.ConstantTimeByteEq(diff, 0)&sameLen == 1
}
