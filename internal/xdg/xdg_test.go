// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowline/glowline/pkg/errutil"
)

func TestDirs(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		fn   func() (string, error)
		want string
	}{
		{"config from env", map[string]string{"XDG_CONFIG_HOME": "/custom/config"}, ConfigDir, "/custom/config/glowline"},
		{"config default", map[string]string{"XDG_CONFIG_HOME": "", "HOME": "/home/testuser"}, ConfigDir, "/home/testuser/.config/glowline"},
		{"data from env", map[string]string{"XDG_DATA_HOME": "/custom/data"}, DataDir, "/custom/data/glowline"},
		{"data default", map[string]string{"XDG_DATA_HOME": "", "HOME": "/home/testuser"}, DataDir, "/home/testuser/.local/share/glowline"},
		{"config file", map[string]string{"XDG_CONFIG_HOME": "/c"}, ConfigFile, "/c/glowline/glowline.yaml"},
		{"key file", map[string]string{"XDG_DATA_HOME": "/d"}, KeyFile, "/d/glowline/server-key.pem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirs_NoHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")

	_, err := KeyFile()
	errutil.AssertErrorCode(t, err, "XDG_HOME_UNKNOWN")
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	// Idempotent.
	require.NoError(t, EnsureDir(path))
}

func TestEnsureDir_Failure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	err := EnsureDir(filepath.Join(file, "sub"))
	errutil.AssertErrorCode(t, err, "XDG_MKDIR_FAILED")
}
