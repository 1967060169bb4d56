// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/glowline/glowline/internal/audit"
	"github.com/glowline/glowline/internal/config"
	"github.com/glowline/glowline/internal/crypt"
	"github.com/glowline/glowline/internal/executor"
	"github.com/glowline/glowline/internal/gateway"
	"github.com/glowline/glowline/internal/logging"
	"github.com/glowline/glowline/internal/login"
	"github.com/glowline/glowline/internal/observability"
	"github.com/glowline/glowline/internal/players"
	"github.com/glowline/glowline/internal/prelogin"
	"github.com/glowline/glowline/internal/session"
	"github.com/glowline/glowline/internal/sessionserver"
	"github.com/glowline/glowline/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

var errNotListening = errors.New("game listener not bound")

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the login server",
		Long: `Listen for game connections and log players in. The RSA key pair is
generated on first start when the key file does not exist.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServe runs the server until ctx is cancelled. Logs go to logOut.
func runServe(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	logger, err := logging.Setup(logging.Options{
		Service: "glowline",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  logOut,
	})
	if err != nil {
		return oops.Code("LOGGING_SETUP_FAILED").Wrap(err)
	}
	slog.SetDefault(logger)

	logger.Info("starting glowline",
		"event", "server_starting",
		"listen_addr", cfg.ListenAddr,
		"version", version,
	)

	// A missing key pair is not fatal: logins fail with an internal error
	// and readiness stays false.
	keys, generated, err := crypt.LoadOrGenerateKeyPair(cfg.KeyFile, cfg.KeyBits)
	if err != nil {
		errutil.LogError(logger, "server key pair unavailable", err)
	} else if generated {
		logger.Info("generated server key pair", "event", "key_generated", "path", cfg.KeyFile, "bits", cfg.KeyBits)
	}
	engine := crypt.NewEngine(keys)

	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mainExec := executor.NewSerial("main", logger)
	mainExec.Start(ctx)
	defer func() {
		mainExec.Stop()
		<-mainExec.Done()
	}()

	registry := players.NewRegistry(
		players.WithGauge(players.OnlineGauge),
		players.WithLogger(logger),
	)

	gate, err := buildGate(ctx, cfg, registry, logger, &wg)
	if err != nil {
		return err
	}

	verifier, err := sessionserver.NewClientWithLogger(sessionserver.Config{
		BaseURL:      cfg.SessionServerURL,
		Timeout:      cfg.VerificationTimeout,
		PreventProxy: cfg.PreventProxy,
	}, logger)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "session_server_url").Wrap(err)
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.DatabaseURL != "" {
		pool, err := audit.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err //nolint:wrapcheck // carries DB_CONNECT_FAILED
		}
		defer pool.Close()
		recorder = audit.NewPostgresRecorder(pool)
		logger.Info("login audit enabled", "event", "audit_enabled")
	}

	orch, err := login.NewOrchestrator(login.Config{
		Engine:   engine,
		Verifier: verifier,
		Gate:     gate,
		Main:     mainExec,
		OnAdmit: func(sess *session.Session) error {
			_, err := registry.Join(sess)
			return err //nolint:wrapcheck // wrapped by the orchestrator
		},
		Logger: logger,
	})
	if err != nil {
		return err //nolint:wrapcheck // carries CONFIG_INVALID
	}

	srv, err := gateway.NewServer(gateway.Config{
		Addr:         cfg.ListenAddr,
		Handshaker:   orch,
		Engine:       engine,
		Main:         mainExec,
		Players:      registry,
		Audit:        recorder,
		LoginRate:    cfg.LoginRate,
		LoginBurst:   cfg.LoginBurst,
		LoginTimeout: cfg.LoginTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err //nolint:wrapcheck // carries CONFIG_INVALID
	}

	if cfg.MetricsAddr != "" {
		obs := observability.NewServer(cfg.MetricsAddr,
			observability.WithCheck("key_pair", engine.Ready),
			observability.WithCheck("listener", func() error {
				if srv.Addr() == "" {
					return errNotListening
				}
				return nil
			}),
			observability.WithLogger(logger),
			observability.WithMetrics(login.RegisterMetrics, gateway.RegisterMetrics, players.RegisterMetrics),
		)
		if _, err := obs.Start(); err != nil {
			return err //nolint:wrapcheck // carries LISTEN_FAILED
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	err = srv.Run(ctx)
	logger.Info("shutdown complete", "event", "shutdown_complete")
	return err //nolint:wrapcheck // carries LISTEN_FAILED or ACCEPT_FAILED
}

// buildGate composes the configured pre-login gates: capacity first, then
// the rules file, then the script.
func buildGate(ctx context.Context, cfg *config.Config, online prelogin.Counter, logger *slog.Logger, wg *sync.WaitGroup) (prelogin.Gate, error) {
	gates := []prelogin.Gate{
		prelogin.CapacityGate{Players: online, Max: cfg.MaxPlayers},
	}

	if cfg.PolicyFile != "" {
		rules, err := prelogin.LoadRuleGate(cfg.PolicyFile, logger)
		if err != nil {
			return nil, err //nolint:wrapcheck // carries POLICY_* codes
		}
		wg.Go(func() {
			if err := rules.Watch(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				errutil.LogError(logger, "policy watcher stopped", err)
			}
		})
		gates = append(gates, rules)
	}

	if cfg.PolicyScript != "" {
		script, err := prelogin.LoadLuaGate(cfg.PolicyScript,
			prelogin.WithScriptTimeout(cfg.PolicyScriptTimeout),
			prelogin.WithScriptLogger(logger),
		)
		if err != nil {
			return nil, err //nolint:wrapcheck // carries POLICY_* codes
		}
		gates = append(gates, script)
	}

	return prelogin.Chain(gates...), nil
}
