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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/stats"
	"github.com/AleutianAI/chainstat/services/trace/storage/badger"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New(validator.WithRequiredStructEnabled())

type ChainstatConfig struct {
	// Stats: defaults for summary, stats and the HTTP API
	Stats StatsConfig `yaml:"stats"`

	// Model: how sampler values are stored
	Model ModelConfig `yaml:"model"`

	// Storage: the BadgerDB run store
	Storage StorageConfig `yaml:"storage"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	Server ServerConfig `yaml:"server"`
}

type StatsConfig struct {
	stats.Options `yaml:",inline"`
	RoundTo       int `yaml:"roundto" validate:"gte=0,lte=15"`
}

type ModelConfig struct {
	Precision string `yaml:"precision" validate:"omitempty,oneof=float64 float32"` // e.g. float32
}

type StorageConfig struct {
	Path       string `yaml:"path" validate:"required_without=InMemory"` // e.g. ~/.chainstat/data
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
	GCInterval string `yaml:"gc_interval"` // e.g. 10m, "0" disables GC
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"` // e.g. 127.0.0.1:8080
}

// DefaultConfig returns the settings written on first run.
func DefaultConfig() ChainstatConfig {
	dataDir := filepath.Join("~", ".chainstat", "data")
	return ChainstatConfig{
		Stats:   StatsConfig{Options: stats.DefaultOptions(), RoundTo: 3},
		Model:   ModelConfig{Precision: chain.Float64.String()},
		Storage: StorageConfig{Path: dataDir, SyncWrites: true, GCInterval: "10m"},
		Logging: LoggingConfig{Level: "info"},
		// Exporters are read from OTEL_* at startup, not frozen into the file.
		Telemetry: telemetry.Config{ServiceName: "chainstat"},
		Server:    ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// Validate checks struct tags, the GC interval and the stats options.
func (c *ChainstatConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Storage.GCEvery(); err != nil {
		return fmt.Errorf("%w: storage.gc_interval: %v", ErrInvalidConfig, err)
	}
	if err := c.Stats.Options.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// GCEvery parses GCInterval. Empty or "0" disables GC.
func (s StorageConfig) GCEvery() (time.Duration, error) {
	if s.GCInterval == "" || s.GCInterval == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.GCInterval)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %s", d)
	}
	return d, nil
}

// Badger converts the storage section to a store config.
func (s StorageConfig) Badger(logger *logging.Logger) (badger.Config, error) {
	gc, err := s.GCEvery()
	if err != nil {
		return badger.Config{}, err
	}
	cfg := badger.DefaultConfig()
	cfg.Path = expandHome(s.Path)
	cfg.InMemory = s.InMemory
	cfg.SyncWrites = s.SyncWrites
	cfg.GCInterval = gc
	cfg.Logger = logger
	return cfg, nil
}

// ParsedPrecision returns the configured value precision.
func (m ModelConfig) ParsedPrecision() (chain.Precision, error) {
	return chain.ParsePrecision(m.Precision)
}

// Logger converts the logging section. JSON is forced on when stderr is
// not a terminal.
func (l LoggingConfig) Logger(service string) logging.Config {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		LogDir:  l.Dir,
		Service: service,
		JSON:    l.JSON || !logging.IsTerminal(os.Stderr),
	}
}

// TelemetryConfig overlays the non-empty telemetry fields of the file on
// telemetry.DefaultConfig().
func (c *ChainstatConfig) TelemetryConfig() telemetry.Config {
	out := telemetry.DefaultConfig()
	t := c.Telemetry
	if t.ServiceName != "" {
		out.ServiceName = t.ServiceName
	}
	if t.ServiceVersion != "" {
		out.ServiceVersion = t.ServiceVersion
	}
	if t.Environment != "" {
		out.Environment = t.Environment
	}
	if t.TraceExporter != "" {
		out.TraceExporter = t.TraceExporter
	}
	if t.MetricExporter != "" {
		out.MetricExporter = t.MetricExporter
	}
	if t.OTLPEndpoint != "" {
		out.OTLPEndpoint = t.OTLPEndpoint
	}
	if t.OTLPInsecure {
		out.OTLPInsecure = true
	}
	return out
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
