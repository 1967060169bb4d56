// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package config loads server settings from defaults, a YAML file, the
// environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/glowline/glowline/internal/logging"
	"github.com/glowline/glowline/internal/sessionserver"
	"github.com/glowline/glowline/internal/xdg"
)

// EnvPrefix selects the environment variables read by Load, as in
// GLOWLINE_LISTEN_ADDR.
const EnvPrefix = "GLOWLINE_"

// Error codes.
const (
	CodeInvalid    = "CONFIG_INVALID"
	CodeLoadFailed = "CONFIG_LOAD_FAILED"
)

// MinKeyBits is the smallest RSA key the server generates.
const MinKeyBits = 1024

// Config is the server configuration.
type Config struct {
	ListenAddr  string `koanf:"listen_addr" json:"listen_addr" jsonschema:"description=Game listener address"`
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Metrics and health address; empty disables"`

	LogFormat string `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel  string `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`

	KeyFile string `koanf:"key_file" json:"key_file,omitempty" jsonschema:"description=PEM file holding the RSA key pair; generated when missing"`
	KeyBits int    `koanf:"key_bits" json:"key_bits,omitempty" jsonschema:"minimum=1024"`

	SessionServerURL    string        `koanf:"session_server_url" json:"session_server_url,omitempty" jsonschema:"format=uri"`
	VerificationTimeout time.Duration `koanf:"verification_timeout" json:"verification_timeout,omitempty"`
	PreventProxy        bool          `koanf:"prevent_proxy" json:"prevent_proxy,omitempty" jsonschema:"description=Send the client IP to the session server"`

	// MaxPlayers of zero means no limit.
	MaxPlayers   int           `koanf:"max_players" json:"max_players,omitempty" jsonschema:"minimum=0"`
	LoginRate    float64       `koanf:"login_rate" json:"login_rate,omitempty" jsonschema:"minimum=0,description=Logins per second per IP; 0 disables"`
	LoginBurst   int           `koanf:"login_burst" json:"login_burst,omitempty" jsonschema:"minimum=1"`
	LoginTimeout time.Duration `koanf:"login_timeout" json:"login_timeout,omitempty"`

	PolicyFile          string        `koanf:"policy_file" json:"policy_file,omitempty" jsonschema:"description=YAML pre-login rules"`
	PolicyScript        string        `koanf:"policy_script" json:"policy_script,omitempty" jsonschema:"description=Lua pre-login script"`
	PolicyScriptTimeout time.Duration `koanf:"policy_script_timeout" json:"policy_script_timeout,omitempty"`

	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=PostgreSQL URL for the login audit; empty disables"`
}

// Default returns the built-in settings.
func Default() Config {
	keyFile, err := xdg.KeyFile()
	if err != nil {
		keyFile = ""
	}
	return Config{
		ListenAddr:          ":25565",
		MetricsAddr:         "127.0.0.1:9100",
		LogFormat:           logging.FormatJSON,
		LogLevel:            "info",
		KeyFile:             keyFile,
		KeyBits:             MinKeyBits,
		SessionServerURL:    sessionserver.DefaultBaseURL,
		VerificationTimeout: sessionserver.DefaultTimeout,
		MaxPlayers:          20,
		LoginRate:           1,
		LoginBurst:          3,
		LoginTimeout:        30 * time.Second,
		PolicyScriptTimeout: 250 * time.Millisecond,
	}
}

// RegisterFlags adds flags for the commonly overridden keys. Flag names
// are the keys with dashes.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("listen-addr", d.ListenAddr, "game listen address")
	flags.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-format", d.LogFormat, "log format (json or text)")
	flags.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	flags.String("key-file", d.KeyFile, "RSA key pair file")
	flags.Int("max-players", d.MaxPlayers, "maximum players online (0 = unlimited)")
	flags.String("policy-file", d.PolicyFile, "YAML pre-login rules file")
	flags.String("policy-script", d.PolicyScript, "Lua pre-login script")
	flags.String("database-url", d.DatabaseURL, "PostgreSQL URL for the login audit")
}

// Load reads the configuration. path may be empty, in which case the
// default config file is used if it exists. flags may be nil; only flags
// set on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code(CodeLoadFailed).With("path", path).Wrap(err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code(CodeLoadFailed).With("source", "env").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
			return nil, oops.Code(CodeLoadFailed).With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// flagKey maps changed flags to config keys and skips the rest, so flag
// defaults never shadow the file or the environment.
func flagKey(flags *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if !f.Changed || f.Name == "config" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	}
}

func invalid(key string, value any, format string, args ...any) error {
	return oops.Code(CodeInvalid).
		With("key", key).
		With("value", value).
		Errorf(format, args...)
}

// Validate checks every setting and reports the first problem.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return invalid("listen_addr", c.ListenAddr, "listen_addr must be host:port")
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return invalid("metrics_addr", c.MetricsAddr, "metrics_addr must be host:port or empty")
		}
	}
	if err := logging.ValidateFormat(c.LogFormat); err != nil {
		return oops.Code(CodeInvalid).With("key", "log_format").Wrap(err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code(CodeInvalid).With("key", "log_level").Wrap(err)
	}
	if c.KeyFile == "" {
		return invalid("key_file", c.KeyFile, "key_file is required")
	}
	if c.KeyBits < MinKeyBits {
		return invalid("key_bits", c.KeyBits, "key_bits must be at least %d", MinKeyBits)
	}
	u, err := url.Parse(c.SessionServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("session_server_url", c.SessionServerURL, "session_server_url must be an http(s) URL")
	}
	if c.VerificationTimeout <= 0 {
		return invalid("verification_timeout", c.VerificationTimeout, "verification_timeout must be positive")
	}
	if c.MaxPlayers < 0 {
		return invalid("max_players", c.MaxPlayers, "max_players must not be negative")
	}
	if c.LoginRate < 0 {
		return invalid("login_rate", c.LoginRate, "login_rate must not be negative")
	}
	if c.LoginBurst < 1 {
		return invalid("login_burst", c.LoginBurst, "login_burst must be at least 1")
	}
	if c.LoginTimeout <= 0 {
		return invalid("login_timeout", c.LoginTimeout, "login_timeout must be positive")
	}
	if c.PolicyScriptTimeout <= 0 {
		return invalid("policy_script_timeout", c.PolicyScriptTimeout, "policy_script_timeout must be positive")
	}
	for _, f := range []struct{ key, path string }{
		{"policy_file", c.PolicyFile},
		{"policy_script", c.PolicyScript},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			return oops.Code(CodeInvalid).With("key", f.key).With("value", f.path).Wrap(err)
		}
	}
	return nil
}
