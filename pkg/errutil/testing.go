// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOops(tb testing.TB, err error) oops.OopsError {
	tb.Helper()
	require.Error(tb, err)
	oopsErr, ok := oops.AsOops(err)
	require.Truef(tb, ok, "want an oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode fails tb unless err carries code.
func AssertErrorCode(tb testing.TB, err error, code string) {
	tb.Helper()
	mustOops(tb, err)
	assert.Equal(tb, code, Code(err), "error: %v", err)
}

// AssertErrorContext fails tb unless err has key set to value in its
// context.
func AssertErrorContext(tb testing.TB, err error, key string, value any) {
	tb.Helper()
	fields := mustOops(tb, err).Context()
	if assert.Contains(tb, fields, key) {
		assert.Equal(tb, value, fields[key])
	}
}

// AssertErrorHint fails tb unless the hint shown to operators mentions
// substr.
func AssertErrorHint(tb testing.TB, err error, substr string) {
	tb.Helper()
	assert.Contains(tb, mustOops(tb, err).Hint(), substr)
}
