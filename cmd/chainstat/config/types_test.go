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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidate_InMemoryNeedsNoPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Path = ""
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
	}
	cfg.Storage.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() with in_memory = %v", err)
	}
}

func TestStorageConfig_GCEvery(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"10m", 10 * time.Minute, false},
		{"-1s", 0, true},
		{"weekly", 0, true},
	}
	for _, tc := range cases {
		got, err := StorageConfig{GCInterval: tc.in}.GCEvery()
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("GCEvery(%q) = %v, %v", tc.in, got, err)
		}
	}
}

func TestStorageConfig_Badger(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	s := StorageConfig{Path: "~/runs", SyncWrites: false, GCInterval: "1h"}
	cfg, err := s.Badger(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != filepath.Join(home, "runs") {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.GCInterval != time.Hour || cfg.SyncWrites {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestTelemetryConfig_Overlay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.TraceExporter = telemetry.ExporterStdout
	cfg.Telemetry.ServiceName = "chainstat-test"

	got := cfg.TelemetryConfig()
	if got.TraceExporter != telemetry.ExporterStdout {
		t.Errorf("TraceExporter = %q", got.TraceExporter)
	}
	if got.ServiceName != "chainstat-test" {
		t.Errorf("ServiceName = %q", got.ServiceName)
	}
	if got.MetricExporter == "" {
		t.Error("MetricExporter lost its default")
	}
}

func TestLoggingConfig_Logger(t *testing.T) {
	lc := LoggingConfig{Level: "bogus", Dir: "/tmp/x", JSON: true}.Logger("chainstat")
	if lc.Service != "chainstat" || lc.LogDir != "/tmp/x" || !lc.JSON {
		t.Errorf("Logger() = %+v", lc)
	}
}
