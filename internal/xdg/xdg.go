// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package xdg provides XDG Base Directory paths for glowline.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "glowline"

// File names inside the glowline directories.
const (
	configFileName = "glowline.yaml"
	keyFileName    = "server-key.pem"
)

// ConfigDir returns $XDG_CONFIG_HOME/glowline, falling back to
// ~/.config/glowline.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/glowline, falling back to
// ~/.local/share/glowline.
func DataDir() (string, error) {
	return dir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ConfigFile is the default config file path.
func ConfigFile() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, configFileName), nil
}

// KeyFile is the default location of the server's RSA key pair.
func KeyFile() (string, error) {
	d, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, keyFileName), nil
}

func dir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("XDG_HOME_UNKNOWN").With("env", env).Wrap(err)
	}
	return filepath.Join(home, fallback, appName), nil
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
