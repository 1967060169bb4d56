// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// DefaultKeyBits is the RSA modulus size the vanilla client expects.
const DefaultKeyBits = 1024

const privateKeyPEMType = "PRIVATE KEY"

// KeyPair is the server's RSA key with its public half pre-encoded.
type KeyPair struct {
	Private *rsa.PrivateKey
	public  []byte
}

// NewKeyPair wraps priv and encodes its public key as PKIX DER.
func NewKeyPair(priv *rsa.PrivateKey) (*KeyPair, error) {
	if priv == nil {
		return nil, oops.Code(CodeCryptoInit).Errorf("private key is required")
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, oops.Code(CodeCryptoInit).With("operation", "marshal public key").Wrap(err)
	}
	return &KeyPair{Private: priv, public: der}, nil
}

// GenerateKeyPair creates a fresh RSA key pair of the given size.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, oops.Code(CodeCryptoInit).With("bits", bits).Wrap(err)
	}
	return NewKeyPair(priv)
}

// PublicDER returns the PKIX DER encoding of the public key.
func (k *KeyPair) PublicDER() []byte {
	out := make([]byte, len(k.public))
	copy(out, k.public)
	return out
}

// Save writes the private key to path as a PKCS#8 PEM file readable only
// by the owner, creating the parent directory if needed.
func (k *KeyPair) Save(path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return oops.Code(CodeKeyLoad).With("operation", "marshal private key").Wrap(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return oops.Code(CodeKeyLoad).With("path", path).With("operation", "create key directory").Wrap(err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code(CodeKeyLoad).With("path", path).With("operation", "create key file").Wrap(err)
	}
	if err := pem.Encode(f, &pem.Block{Type: privateKeyPEMType, Bytes: der}); err != nil {
		_ = f.Close()
		return oops.Code(CodeKeyLoad).With("path", path).With("operation", "encode key").Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code(CodeKeyLoad).With("path", path).With("operation", "close key file").Wrap(err)
	}
	return nil
}

// LoadKeyPair reads a PKCS#8 (or legacy PKCS#1) RSA private key from path.
func LoadKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code(CodeKeyLoad).With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, oops.Code(CodeKeyLoad).With("path", path).Errorf("no PEM block found")
	}

	var priv *rsa.PrivateKey
	switch block.Type {
	case privateKeyPEMType:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, oops.Code(CodeKeyLoad).With("path", path).Wrap(err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, oops.Code(CodeKeyLoad).With("path", path).Errorf("key is %T, not RSA", parsed)
		}
		priv = rsaKey
	case "RSA PRIVATE KEY":
		priv, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, oops.Code(CodeKeyLoad).With("path", path).Wrap(err)
		}
	default:
		return nil, oops.Code(CodeKeyLoad).With("path", path).Errorf("unsupported PEM block %q", block.Type)
	}
	return NewKeyPair(priv)
}

// LoadOrGenerateKeyPair loads the key at path, generating and saving a new
// one when the file does not exist. generated reports which happened.
func LoadOrGenerateKeyPair(path string, bits int) (keys *KeyPair, generated bool, err error) {
	keys, err = LoadKeyPair(path)
	if err == nil {
		return keys, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	keys, err = GenerateKeyPair(bits)
	if err != nil {
		return nil, false, err
	}
	if err := keys.Save(path); err != nil {
		return nil, false, err
	}
	return keys, true, nil
}
