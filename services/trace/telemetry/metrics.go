// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics contains the instruments recorded by chainstat.
//
// Description:
//
//	Counters and histograms for chain recording, posterior statistics,
//	run storage and the HTTP API. Every helper method is nil-safe so
//	packages can accept an optional *Metrics without guarding each call.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Chain Metrics ---

	// RecordsTotal counts draws appended to a trace.
	RecordsTotal metric.Int64Counter

	// RecordFailuresTotal counts Record calls that failed evaluation.
	RecordFailuresTotal metric.Int64Counter

	// CompactionsTotal counts growable buffers concatenated on read.
	CompactionsTotal metric.Int64Counter

	// --- Stats Metrics ---

	// StatsVariablesTotal counts variables processed, by status (ok, skipped).
	StatsVariablesTotal metric.Int64Counter

	// StatsDuration records the wall time of one statistics pass in seconds.
	StatsDuration metric.Float64Histogram

	// --- Storage Metrics ---

	// StoreOperationsTotal counts run store operations by op and status.
	StoreOperationsTotal metric.Int64Counter

	// --- API Metrics ---

	// APIRequestsTotal counts HTTP requests by method, route, and status.
	APIRequestsTotal metric.Int64Counter

	// APIRequestDuration records HTTP request duration in seconds.
	APIRequestDuration metric.Float64Histogram
}

// NewMetrics creates and registers all instruments on meter.
//
// Inputs:
//
//	meter - The OpenTelemetry meter, e.g. otel.Meter("chainstat").
//
// Outputs:
//
//	*Metrics - The initialized instruments.
//	error - Non-nil if any instrument fails to register.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.RecordsTotal, err = meter.Int64Counter("chain_records_total",
		metric.WithDescription("Draws appended to a chain trace"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain_records_total: %w", err)
	}

	m.RecordFailuresTotal, err = meter.Int64Counter("chain_record_failures_total",
		metric.WithDescription("Record calls rejected by the compiled evaluator"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain_record_failures_total: %w", err)
	}

	m.CompactionsTotal, err = meter.Int64Counter("chain_compactions_total",
		metric.WithDescription("Pending sample buffers concatenated on read"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain_compactions_total: %w", err)
	}

	m.StatsVariablesTotal, err = meter.Int64Counter("stats_variables_total",
		metric.WithDescription("Variables processed by a statistics pass"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stats_variables_total: %w", err)
	}

	m.StatsDuration, err = meter.Float64Histogram("stats_duration_seconds",
		metric.WithDescription("Duration of a statistics pass"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stats_duration_seconds: %w", err)
	}

	m.StoreOperationsTotal, err = meter.Int64Counter("store_operations_total",
		metric.WithDescription("Run store operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("create store_operations_total: %w", err)
	}

	m.APIRequestsTotal, err = meter.Int64Counter("api_requests_total",
		metric.WithDescription("HTTP API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create api_requests_total: %w", err)
	}

	m.APIRequestDuration, err = meter.Float64Histogram("api_request_duration_seconds",
		metric.WithDescription("HTTP API request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create api_request_duration_seconds: %w", err)
	}

	return &m, nil
}

// IncRecord counts one Record call, successful or not.
func (m *Metrics) IncRecord(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.RecordsTotal.Add(ctx, 1)
		return
	}
	m.RecordFailuresTotal.Add(ctx, 1)
}

// IncCompaction counts one lazy concatenation of a pending buffer.
func (m *Metrics) IncCompaction(ctx context.Context) {
	if m == nil {
		return
	}
	m.CompactionsTotal.Add(ctx, 1)
}

// ObserveStats records one statistics pass.
func (m *Metrics) ObserveStats(ctx context.Context, d time.Duration, ok, skipped int) {
	if m == nil {
		return
	}
	m.StatsDuration.Record(ctx, d.Seconds())
	if ok > 0 {
		m.StatsVariablesTotal.Add(ctx, int64(ok), metric.WithAttributes(attribute.String("status", "ok")))
	}
	if skipped > 0 {
		m.StatsVariablesTotal.Add(ctx, int64(skipped), metric.WithAttributes(attribute.String("status", "skipped")))
	}
}

// IncStoreOp counts one store operation; status is derived from err.
func (m *Metrics) IncStoreOp(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.APIRequestsTotal.Add(ctx, 1, attrs)
	m.APIRequestDuration.Record(ctx, d.Seconds(), attrs)
}
