// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Command gen-schema writes the JSON Schema files under schemas/.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/glowline/glowline/internal/config"
	"github.com/glowline/glowline/internal/sessionserver"
)

type schemaFile struct {
	name     string
	generate func() ([]byte, error)
}

var schemaFiles = []schemaFile{
	{"config.schema.json", config.GenerateSchema},
	{"hasjoined.schema.json", sessionserver.GenerateSchema},
}

func main() {
	paths, err := generate("schemas")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
	for _, p := range paths {
		fmt.Printf("Generated %s\n", p)
	}
}

// generate writes every schema into dir and returns the written paths.
func generate(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, oops.Code("SCHEMA_WRITE_FAILED").With("path", dir).Wrap(err)
	}
	paths := make([]string, 0, len(schemaFiles))
	for _, f := range schemaFiles {
		data, err := f.generate()
		if err != nil {
			return nil, oops.With("schema", f.name).Wrap(err)
		}
		out := filepath.Join(dir, f.name)
		if err := os.WriteFile(out, append(data, '\n'), 0o600); err != nil {
			return nil, oops.Code("SCHEMA_WRITE_FAILED").With("path", out).Wrap(err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
