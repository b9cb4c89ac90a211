// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Command gen-schema writes the nfive.lock JSON Schema. With -check it
// only verifies that the committed schema is current.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nfive/server/internal/lockfile"
)

func main() {
	out := flag.String("out", filepath.Join("schemas", lockfile.FileName+".schema.json"), "schema output path")
	check := flag.Bool("check", false, "fail if the schema at -out is stale instead of writing it")
	flag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(out string, check bool) error {
	schema, err := lockfile.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}

	if check {
		current, err := os.ReadFile(out) //nolint:gosec // path comes from the command line
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s does not exist", out)
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", out, err)
		}
		if !bytes.Equal(bytes.TrimSpace(current), bytes.TrimSpace(schema)) {
			return fmt.Errorf("%s is stale; run gen-schema", out)
		}
		fmt.Printf("%s is up to date\n", out)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(out, schema, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("Generated %s\n", out)
	return nil
}
