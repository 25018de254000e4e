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
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumWhere(t *testing.T, m metricdata.Metrics, kv ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, want := range kv {
			got, found := dp.Attributes.Value(want.Key)
			if !found || got != want.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetrics_AllInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)

	if m.RecordsTotal == nil || m.RecordFailuresTotal == nil || m.CompactionsTotal == nil {
		t.Error("chain instruments not created")
	}
	if m.StatsVariablesTotal == nil || m.StatsDuration == nil {
		t.Error("stats instruments not created")
	}
	if m.StoreOperationsTotal == nil {
		t.Error("StoreOperationsTotal is nil")
	}
	if m.APIRequestsTotal == nil || m.APIRequestDuration == nil {
		t.Error("api instruments not created")
	}
}

func TestMetrics_IncRecord(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.IncRecord(ctx, true)
	m.IncRecord(ctx, true)
	m.IncRecord(ctx, false)

	got := collect(t, reader)
	if v := sumWhere(t, got["chain_records_total"]); v != 2 {
		t.Errorf("chain_records_total = %d, want 2", v)
	}
	if v := sumWhere(t, got["chain_record_failures_total"]); v != 1 {
		t.Errorf("chain_record_failures_total = %d, want 1", v)
	}
}

func TestMetrics_ObserveStats(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.ObserveStats(context.Background(), 20*time.Millisecond, 3, 1)

	got := collect(t, reader)
	vars := got["stats_variables_total"]
	if v := sumWhere(t, vars, attribute.String("status", "ok")); v != 3 {
		t.Errorf("ok = %d, want 3", v)
	}
	if v := sumWhere(t, vars, attribute.String("status", "skipped")); v != 1 {
		t.Errorf("skipped = %d, want 1", v)
	}

	hist, ok := got["stats_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("stats_duration_seconds = %+v, want one observation", got["stats_duration_seconds"].Data)
	}
}

func TestMetrics_IncStoreOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.IncStoreOp(ctx, "save", nil)
	m.IncStoreOp(ctx, "load", errors.New("missing"))

	ops := collect(t, reader)["store_operations_total"]
	if v := sumWhere(t, ops, attribute.String("op", "save"), attribute.String("status", "ok")); v != 1 {
		t.Errorf("save/ok = %d, want 1", v)
	}
	if v := sumWhere(t, ops, attribute.String("op", "load"), attribute.String("status", "error")); v != 1 {
		t.Errorf("load/error = %d, want 1", v)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.IncRecord(ctx, true)
	m.IncCompaction(ctx)
	m.ObserveStats(ctx, time.Second, 1, 1)
	m.IncStoreOp(ctx, "list", nil)
	m.ObserveRequest(ctx, "GET", "/health", 200, time.Millisecond)
}
