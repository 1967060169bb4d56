// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package login

// State is a step of the handshake.
type State int

// Handshake states, in order. Aborted can follow any state.
const (
	StateStart State = iota
	StateSecretDecrypted
	StateTokenVerified
	StateEncryptionEnabled
	StateAwaitingVerification
	StateResponseParsed
	StateAdmitted
	StateAborted
)

var stateNames = [...]string{
	StateStart:                "start",
	StateSecretDecrypted:      "secret_decrypted",
	StateTokenVerified:        "token_verified",
	StateEncryptionEnabled:    "encryption_enabled",
	StateAwaitingVerification: "awaiting_verification",
	StateResponseParsed:       "response_parsed",
	StateAdmitted:             "admitted",
	StateAborted:              "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateAdmitted || s == StateAborted
}
