// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package crypt holds the cryptographic primitives of the login handshake.
//
// # Engine
//
// Engine decrypts the client's RSA-encrypted shared secret and verify
// token with the server key pair, compares verify tokens in constant
// time, and derives the session hash sent to the session server.
//
// # Stream cipher
//
// After the verify token checks out, both directions of the connection
// are wrapped in AES/CFB8 streams keyed (and IV'd) by the shared secret.
// NewCFB8Encrypter and NewCFB8Decrypter provide the cipher.Stream
// implementations.
//
// # Keys
//
// KeyPair wraps the server RSA key and caches its PKIX DER public key,
// which is both what the client receives and what the session hash covers.
package crypt
