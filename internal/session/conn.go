// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package session

import (
	"crypto/cipher"
	"net"
	"sync"

	"github.com/samber/oops"

	"github.com/glowline/glowline/internal/crypt"
)

// Conn is a net.Conn whose traffic can be switched, once, to AES/CFB8.
//
// Reads decrypt in place after the underlying read returns, so a reader
// blocked across the switch still sees plaintext. Writes are serialized
// because the encrypting stream is stateful.
type Conn struct {
	net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	stateMu sync.Mutex
	enc     cipher.Stream
	dec     cipher.Stream
}

// NewConn wraps c. Traffic is plaintext until EnableEncryption.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// EnableEncryption installs the cipher streams for secret.
func (c *Conn) EnableEncryption(secret []byte) error {
	enc, dec, err := crypt.StreamPair(secret)
	if err != nil {
		return err
	}

	// Hold both direction locks so no read or write straddles the switch.
	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.enc != nil {
		return oops.Code(CodeEncryptionAlreadyEnabled).Errorf("connection already encrypted")
	}
	c.enc, c.dec = enc, dec
	return nil
}

// Encrypted reports whether the cipher streams are installed.
func (c *Conn) Encrypted() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.enc != nil
}

func (c *Conn) streams() (enc, dec cipher.Stream) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.enc, c.dec
}

// Read reads from the connection, decrypting when encryption is on.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.readMu.Lock()
		if _, dec := c.streams(); dec != nil {
			dec.XORKeyStream(p[:n], p[:n])
		}
		c.readMu.Unlock()
	}
	return n, err //nolint:wrapcheck // io.Reader contract
}

// Write writes p, encrypting when encryption is on. p is not modified.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	enc, _ := c.streams()
	if enc == nil {
		return c.Conn.Write(p) //nolint:wrapcheck // io.Writer contract
	}
	buf := make([]byte, len(p))
	enc.XORKeyStream(buf, p)
	return c.Conn.Write(buf) //nolint:wrapcheck // io.Writer contract
}
