// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package audit keeps a history of successful logins.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Error codes raised by recorders.
const (
	CodeDuplicate     = "AUDIT_DUPLICATE"
	CodeSchemaMissing = "AUDIT_SCHEMA_MISSING"
	CodeWriteFailed   = "AUDIT_WRITE_FAILED"
	CodeReadFailed    = "AUDIT_READ_FAILED"
)

// Login is one admitted login.
type Login struct {
	ID         ulid.ULID
	PlayerID   uuid.UUID
	Name       string
	Address    string
	Properties int
	CreatedAt  time.Time
}

// Recorder stores logins.
type Recorder interface {
	Record(ctx context.Context, l Login) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Login) error { return nil }
