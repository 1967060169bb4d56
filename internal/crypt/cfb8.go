// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package crypt

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/samber/oops"
)

// cfb8 is cipher feedback mode with an 8-bit segment: each byte is XORed
// with the first byte of E(register), then shifted into the register.
type cfb8 struct {
	block    cipher.Block
	register []byte
	out      []byte
	decrypt  bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	size := block.BlockSize()
	if len(iv) != size {
		panic("crypt: IV length must equal block size")
	}
	register := make([]byte, size)
	copy(register, iv)
	return &cfb8{
		block:    block,
		register: register,
		out:      make([]byte, size),
		decrypt:  decrypt,
	}
}

// NewCFB8Encrypter returns a CFB8 encrypting stream over block.
func NewCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

// NewCFB8Decrypter returns a CFB8 decrypting stream over block.
func NewCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

func (c *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("crypt: output smaller than input")
	}
	last := len(c.register) - 1
	for i, in := range src {
		c.block.Encrypt(c.out, c.register)
		res := in ^ c.out[0]
		copy(c.register, c.register[1:])
		if c.decrypt {
			c.register[last] = in
		} else {
			c.register[last] = res
		}
		dst[i] = res
	}
}

// StreamPair returns the encrypting and decrypting AES/CFB8 streams for
// a shared secret, which doubles as the IV.
func StreamPair(secret []byte) (enc, dec cipher.Stream, err error) {
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, oops.Code(CodeCryptoInit).With("key_length", len(secret)).Wrap(err)
	}
	return NewCFB8Encrypter(block, secret), NewCFB8Decrypter(block, secret), nil
}
