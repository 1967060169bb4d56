// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package profile defines verified player identities.
package profile

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// CodeInvalidID is returned when a flat profile id cannot be parsed.
const CodeInvalidID = "IDENTITY_PARSE_FAILED"

// Property is a named profile attribute, such as skin textures. The
// signature is carried as received and never checked here.
type Property struct {
	Name      string
	Value     string
	Signature string
}

// Signed reports whether the property came with a signature.
func (p Property) Signed() bool {
	return p.Signature != ""
}

// Profile is what the session server vouches for: a name, a unique id,
// and the ordered properties attached to the account.
type Profile struct {
	Name       string
	ID         uuid.UUID
	Properties []Property
}

// PlayerIdentity is the authenticated identity assigned to a session once
// the handshake is complete.
type PlayerIdentity struct {
	Name          string
	ID            uuid.UUID
	Properties    []Property
	Authenticated bool
}

// NewPlayerIdentity builds an authenticated identity from a verified
// profile. The property slice is copied.
func NewPlayerIdentity(p *Profile) *PlayerIdentity {
	props := make([]Property, len(p.Properties))
	copy(props, p.Properties)
	return &PlayerIdentity{
		Name:          p.Name,
		ID:            p.ID,
		Properties:    props,
		Authenticated: true,
	}
}

// ParseFlatUUID parses the 32 hex digit, dash-free form used by the
// session server.
func ParseFlatUUID(s string) (uuid.UUID, error) {
	if len(s) != 32 {
		return uuid.Nil, oops.Code(CodeInvalidID).
			With("raw_id", s).
			Errorf("profile id must be 32 hex characters, got %d", len(s))
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, oops.Code(CodeInvalidID).
			With("raw_id", s).
			Wrap(err)
	}
	return id, nil
}

// FlatString renders id without dashes, the inverse of ParseFlatUUID.
func FlatString(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
