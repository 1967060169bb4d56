// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package sessionserver talks to the remote session server that vouches
// for a player's account.
//
// Client.Verify issues the hasJoined request without blocking the caller
// and hands the outcome to a Callback on the caller's executor. Parse
// turns a successful response body into a profile.Profile.
package sessionserver
