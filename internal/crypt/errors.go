// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package crypt

// Error codes raised by this package.
const (
	CodeCryptoInit     = "CRYPTO_INIT_FAILED"
	CodeDecryption     = "DECRYPTION_FAILED"
	CodeHashDerivation = "HASH_DERIVATION_FAILED"
	CodeKeyLoad        = "KEY_LOAD_FAILED"
)

// Parts of the encryption response, used as the "part" context value of
// decryption failures.
const (
	PartSharedSecret = "shared_secret"
	PartVerifyToken  = "verify_token"
)
