// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package login runs the encryption-response step of the login
// handshake: decrypting the client's shared secret and verify token,
// switching the connection to encryption, verifying the account with the
// session server, consulting the pre-login gate and finally assigning the
// player identity on the main executor.
//
// Everything up to the verification call runs synchronously on the
// connection's processing context. The verification result is handled
// back on that context, and the identity is assigned by a task on the
// main executor. Any failure aborts the attempt and disconnects the
// client with a message that reveals nothing internal.
package login
