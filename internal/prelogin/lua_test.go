// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package prelogin

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowline/glowline/pkg/errutil"
)

const sampleScript = `
function prelogin(name, address, uuid)
  if name == "Herobrine" then
    return false, "Nice try"
  end
  if string.sub(address, 1, 8) == "10.0.0." then
    return false
  end
  if uuid == "069a79f4-44e9-4726-a5be-fca90e38aaf5" and name ~= "Notch" then
    return false, "Wrong name for that account"
  end
  return true
end
`

func TestLuaGate_Check(t *testing.T) {
	g, err := NewLuaGate("policy.lua", sampleScript)
	require.NoError(t, err)

	tests := []struct {
		name string
		user string
		want Decision
	}{
		{"allowed", "Notch", Allow()},
		{"denied with message", "Herobrine", Deny("Nice try")},
		{"uuid visible", "Alice", Deny("Wrong name for that account")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Check(context.Background(), tt.user, testAddr, testID))
		})
	}
}

func TestLuaGate_ScriptErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"runtime error", `function prelogin() error("boom") end`},
		{"non boolean", `function prelogin() return "yes" end`},
		{"no result", `function prelogin() end`},
		{"sandboxed io", `function prelogin() return io.open("/etc/passwd") ~= nil end`},
		{"sandboxed os", `function prelogin() os.exit(1) end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			g, err := NewLuaGate("policy.lua", tt.script, WithScriptLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
			require.NoError(t, err)

			d := g.Check(context.Background(), "Alice", testAddr, testID)
			assert.Equal(t, Deny(ScriptErrorMessage), d)
			assert.Contains(t, buf.String(), "policy_script_failed")
		})
	}
}

func TestLuaGate_Timeout(t *testing.T) {
	g, err := NewLuaGate("spin.lua", `function prelogin() while true do end end`,
		WithScriptTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	d := g.Check(context.Background(), "Alice", testAddr, testID)
	assert.Equal(t, Deny(ScriptErrorMessage), d)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewLuaGate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"syntax", `function prelogin(`},
		{"missing entry", `function other() return true end`},
		{"top level error", `error("nope")`},
		{"loadstring blocked", `loadstring("x = 1")()`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLuaGate("policy.lua", tt.script)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "POLICY_SCRIPT_INVALID")
		})
	}
}

func TestLoadLuaGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.lua")
	require.NoError(t, os.WriteFile(path, []byte(sampleScript), 0o600))

	g, err := LoadLuaGate(path)
	require.NoError(t, err)
	assert.False(t, g.Check(context.Background(), "Herobrine", testAddr, testID).Allowed)

	_, err = LoadLuaGate(filepath.Join(t.TempDir(), "missing.lua"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "POLICY_LOAD_FAILED")
}
