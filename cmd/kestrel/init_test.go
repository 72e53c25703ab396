package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	var out strings.Builder

	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit() error: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config.yaml not written: %v", err)
	}
	if !strings.Contains(string(data), "ollama_url") {
		t.Errorf("config.yaml missing expected content:\n%s", data)
	}

	if _, err := os.Stat(filepath.Join(dir, "data")); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
}

func TestRunInitPreservesExisting(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	custom := []byte("model:\n  name: my-custom-model\n")
	if err := os.WriteFile(configPath, custom, 0o644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit() error: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(custom) {
		t.Error("runInit overwrote an existing config.yaml")
	}
}
