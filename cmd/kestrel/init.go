package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kestrel-ai/kestrel/internal/defaults"
)

// runInit initializes a Kestrel working directory with default files.
// It creates the data directory and writes the example config. Existing
// files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Kestrel workspace in %s\n", dir)

	dataPath := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataPath, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to point at your Ollama instance.")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. This ensures init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}
