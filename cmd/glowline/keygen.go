// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/glowline/glowline/internal/config"
	"github.com/glowline/glowline/internal/crypt"
)

type keygenOptions struct {
	out   string
	bits  int
	force bool
}

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	opts := &keygenOptions{}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the server RSA key pair",
		Long: `Generate the RSA key pair used for the login key exchange and write it
to the configured key file. An existing key is kept unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.out == "" || !cmd.Flags().Changed("bits") {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				if opts.out == "" {
					opts.out = cfg.KeyFile
				}
				if !cmd.Flags().Changed("bits") {
					opts.bits = cfg.KeyBits
				}
			}
			return runKeygen(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.out, "out", "", "key file to write (default: key_file from config)")
	cmd.Flags().IntVar(&opts.bits, "bits", config.MinKeyBits, "RSA key size")
	cmd.Flags().BoolVar(&opts.force, "force", false, "replace an existing key")

	return cmd
}

func runKeygen(cmd *cobra.Command, opts *keygenOptions) error {
	if opts.bits < config.MinKeyBits {
		return oops.Code("CONFIG_INVALID").With("bits", opts.bits).Errorf("key size must be at least %d bits", config.MinKeyBits)
	}
	if fileExists(opts.out) && !opts.force {
		return oops.Code("KEY_EXISTS").
			With("path", opts.out).
			Hint("pass --force to replace it").
			Errorf("key file already exists")
	}

	keys, err := crypt.GenerateKeyPair(opts.bits)
	if err != nil {
		return err //nolint:wrapcheck // carries CRYPTO_INIT_FAILED
	}
	if err := keys.Save(opts.out); err != nil {
		return err //nolint:wrapcheck // carries KEY_LOAD_FAILED
	}

	sum := sha256.Sum256(keys.PublicDER())
	cmd.Printf("Wrote %d-bit key to %s\n", opts.bits, opts.out)
	cmd.Printf("Public key SHA-256: %s\n", hex.EncodeToString(sum[:]))
	return nil
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
