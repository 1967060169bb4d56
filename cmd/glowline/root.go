// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/glowline/glowline/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the glowline CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glowline",
		Short: "glowline - an online-mode login server",
		Long: `glowline accepts game connections and authenticates players against
the session server: RSA key exchange, AES/CFB8 encryption, hasJoined
verification and pre-login policy checks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig resolves the configuration for cmd, letting flags that were
// set on the command line win.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags()) //nolint:wrapcheck // config errors carry codes
}
