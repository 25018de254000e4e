// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for chainstat.
//
// Init configures the global TracerProvider and MeterProvider from a Config.
// Library packages never call Init; they accept an optional *Metrics built
// from whatever meter the host application configured, and create spans via
// StartSpan, which is a no-op until a provider is installed.
//
// # Trace Backend (default: none)
//
// Traces can be exported over OTLP/gRPC or pretty-printed to stdout. The CLI
// defaults to "none" because a summary run is short-lived.
//
// # Metrics Backend (default: Prometheus)
//
// Metrics are collected into a dedicated Prometheus registry and exposed via
// MetricsHandler, which the HTTP API mounts at /metrics.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
//	metrics, err := telemetry.NewMetrics(otel.Meter("chainstat"))
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - CHAINSTAT_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init returns.
// Metrics helper methods are nil-safe so callers can pass a nil *Metrics.
package telemetry
