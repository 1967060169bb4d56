// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowline/glowline/pkg/errutil"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLog_OopsErrorAtWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("DECRYPTION_FAILED").
		With("part", "verify_token").
		Errorf("bad ciphertext")

	errutil.Log(context.Background(), logger, slog.LevelWarn, "login aborted", err, "conn_id", "abc")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "login aborted", entry["msg"])
	assert.Equal(t, "DECRYPTION_FAILED", entry["code"])
	assert.Equal(t, "abc", entry["conn_id"])
	ctx, ok := entry["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "verify_token", ctx["part"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "ERROR", entry["level"])
	assert.Contains(t, entry["error"], "standard error")
	assert.NotContains(t, entry, "code")
}

func TestLog_NilErrorIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.Log(context.Background(), logger, slog.LevelError, "nothing", nil)

	assert.Zero(t, buf.Len())
}

func TestCode(t *testing.T) {
	assert.Equal(t, "TOKEN_MISMATCH", errutil.Code(oops.Code("TOKEN_MISMATCH").Errorf("x")))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(oops.Errorf("no code")))
}
