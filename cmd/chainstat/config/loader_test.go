// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".chainstat", "chainstat.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg ChainstatConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Stats.Alpha != 0.05 {
		t.Errorf("Stats.Alpha = %v, want 0.05", cfg.Stats.Alpha)
	}
	if cfg.Stats.Batches != 100 {
		t.Errorf("Stats.Batches = %d, want 100", cfg.Stats.Batches)
	}
	if cfg.Model.Precision != "float64" {
		t.Errorf("Model.Precision = %q, want float64", cfg.Model.Precision)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written defaults do not validate: %v", err)
	}
}

// TestReadFile_PartialKeepsDefaults verifies missing sections keep defaults.
func TestReadFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainstat.yaml")
	body := "stats:\n  alpha: 0.1\n  start: 500\nmodel:\n  precision: float32\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if cfg.Stats.Alpha != 0.1 || cfg.Stats.Start != 500 {
		t.Errorf("stats = %+v, want alpha 0.1 start 500", cfg.Stats.Options)
	}
	if cfg.Stats.Batches != 100 {
		t.Errorf("Stats.Batches = %d, want default 100", cfg.Stats.Batches)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
	p, err := cfg.Model.ParsedPrecision()
	if err != nil || p.String() != "float32" {
		t.Errorf("ParsedPrecision() = %v, %v", p, err)
	}
}

// TestReadFile_Invalid verifies validation failures surface.
func TestReadFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"alpha":     "stats:\n  alpha: 2\n",
		"precision": "model:\n  precision: float16\n",
		"level":     "logging:\n  level: loud\n",
		"gc":        "storage:\n  gc_interval: soon\n",
		"addr":      "server:\n  addr: nowhere\n",
		"roundto":   "stats:\n  roundto: -1\n",
		"syntax":    "stats: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chainstat.yaml")
			if err := os.WriteFile(path, []byte(body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadFile(path); err == nil {
				t.Errorf("ReadFile(%q) succeeded, want error", body)
			}
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("ReadFile() on a missing file succeeded")
	}
}
