// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package login

import (
	"log/slog"

	"github.com/samber/oops"

	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/profile"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/internal/sessionserver"
	"github.com/glowline/glowline/pkg/errutil"
)

// Error codes for failed handshakes.
const (
	CodeCryptoInit        = crypt.CodeCryptoInit
	CodeDecryption        = crypt.CodeDecryption
	CodeTokenMismatch     = "TOKEN_MISMATCH"
	CodeHashDerivation    = crypt.CodeHashDerivation
	CodeTransport         = sessionserver.CodeTransport
	CodeMalformedResponse = sessionserver.CodeMalformed
	CodeIdentityParse     = profile.CodeInvalidID
	CodePolicyDenied      = "POLICY_DENIED"
	CodeHandshakeStarted  = "HANDSHAKE_ALREADY_STARTED"
	CodeEncryptionEnabled = session.CodeEncryptionAlreadyEnabled
	CodeConnectionClosed  = "CONNECTION_CLOSED"
	CodeSchedulingFailed  = "ADMISSION_SCHEDULING_FAILED"
	CodeAdmissionFailed   = "ADMISSION_FAILED"
	CodeEncryptionFailed  = "ENCRYPTION_FAILED"
)

// Messages shown to a client whose login is aborted. Internal details
// never reach the client.
const (
	MessageInternal           = "Internal error during login"
	MessageInvalidSecret      = "Invalid shared secret"
	MessageInvalidToken       = "Invalid verify token"
	MessageServiceUnavailable = "Authentication servers are unavailable, try again later"
	MessageVerifyFailed       = "Failed to verify username!"
	MessageInvalidProfileID   = "Received an invalid profile id"
)

type outcome struct {
	level   slog.Level
	message string
}

// classify maps an abort error to its log level and kick message. An
// empty message closes the connection without telling the client why.
func classify(err error) outcome {
	switch errutil.Code(err) {
	case CodeDecryption:
		if part, _ := contextValue(err, "part").(string); part == crypt.PartVerifyToken {
			return outcome{slog.LevelWarn, MessageInvalidToken}
		}
		return outcome{slog.LevelWarn, MessageInvalidSecret}
	case CodeTokenMismatch:
		return outcome{slog.LevelWarn, MessageInvalidToken}
	case CodeTransport:
		return outcome{slog.LevelError, MessageServiceUnavailable}
	case CodeMalformedResponse:
		return outcome{slog.LevelWarn, MessageVerifyFailed}
	case CodeIdentityParse:
		return outcome{slog.LevelError, MessageInvalidProfileID}
	case CodePolicyDenied:
		msg, _ := contextValue(err, "message").(string)
		return outcome{slog.LevelInfo, msg}
	case CodeEncryptionEnabled:
		return outcome{slog.LevelError, ""}
	case CodeConnectionClosed, session.CodeSessionClosed:
		return outcome{slog.LevelDebug, ""}
	default:
		return outcome{slog.LevelError, MessageInternal}
	}
}

func contextValue(err error, key string) any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Context()[key]
}
