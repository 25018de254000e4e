// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/sample"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

const tracerName = "chainstat.stats"

// Source is anything that exposes variables by name, such as *chain.Trace.
type Source interface {
	VarNames() []string
	ByName(name string) (*sample.Array, error)
}

// metricsSource is implemented by sources that carry instruments.
type metricsSource interface {
	Metrics() *telemetry.Metrics
}

// Report holds the statistics of every variable of a trace.
type Report struct {
	// Order lists variable names in trace order, including skipped ones.
	Order []string

	// Stats maps a variable name to its summary.
	Stats map[string]*VarStats

	// Skipped maps a variable name to the reason it has no summary.
	Skipped map[string]error

	// Options are the options the report was computed with.
	Options Options
}

// MarshalJSON renders variables in trace order and skip reasons as text.
func (r *Report) MarshalJSON() ([]byte, error) {
	type skipped struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	}
	out := struct {
		Options   Options     `json:"options"`
		Variables []*VarStats `json:"variables"`
		Skipped   []skipped   `json:"skipped,omitempty"`
	}{Options: r.Options, Variables: make([]*VarStats, 0, len(r.Stats))}

	for _, name := range r.Order {
		if vs, ok := r.Stats[name]; ok {
			out.Variables = append(out.Variables, vs)
		} else if err, ok := r.Skipped[name]; ok {
			out.Skipped = append(out.Skipped, skipped{Name: name, Reason: err.Error()})
		}
	}
	return json.Marshal(out)
}

// IsVariableLocal reports whether err affects only the variable it came
// from. Such errors are collected in Report.Skipped instead of aborting.
func IsVariableLocal(err error) bool {
	var shapeErr *sample.ShapeError
	return errors.Is(err, ErrZeroLength) ||
		errors.Is(err, ErrNonFinite) ||
		errors.As(err, &shapeErr)
}

// ForTrace computes statistics for every variable of src.
//
// Description:
//
//	Variables are summarized concurrently. A variable-local failure (no
//	draws after burn-in, inconsistent draw shapes, non-finite draws) is
//	logged and recorded in Report.Skipped; the remaining variables are
//	still summarized. Any other error cancels the pass and is returned.
//
// Inputs:
//
//	ctx - Cancellation and tracing context.
//	src - The variables to summarize.
//	opts - Statistics options. opts.Chain is ignored.
//	logger - Receives skip warnings. May be nil.
//
// Outputs:
//
//	*Report - Per-variable results in src.VarNames() order.
//	error - ErrInvalidOptions, ctx.Err(), or a non-local variable error.
//
// Thread Safety: Safe for concurrent use when src is.
func ForTrace(ctx context.Context, src Source, opts Options, logger *logging.Logger) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)

	names := src.VarNames()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "stats.ForTrace",
		trace.WithAttributes(attribute.Int("chainstat.variables", len(names))),
	)
	defer span.End()
	start := time.Now()

	results := make([]*VarStats, len(names))
	failures := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vs, err := summarize(gctx, src, name, opts)
			if err == nil {
				results[i] = vs
				return nil
			}
			if IsVariableLocal(err) {
				failures[i] = err
				return nil
			}
			return fmt.Errorf("variable %q: %w", name, err)
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	report := &Report{
		Order:   names,
		Stats:   make(map[string]*VarStats, len(names)),
		Skipped: make(map[string]error),
		Options: opts,
	}
	for i, name := range names {
		if failures[i] != nil {
			logger.Warn("skipping variable", "variable", name, "error", failures[i])
			report.Skipped[name] = failures[i]
			continue
		}
		report.Stats[name] = results[i]
	}

	if ms, ok := src.(metricsSource); ok {
		ms.Metrics().ObserveStats(ctx, time.Since(start), len(report.Stats), len(report.Skipped))
	}
	span.SetAttributes(attribute.Int("chainstat.skipped", len(report.Skipped)))
	telemetry.SetSpanOK(span)
	return report, nil
}

func summarize(ctx context.Context, src Source, name string, opts Options) (*VarStats, error) {
	a, err := src.ByName(name)
	if err != nil {
		return nil, err
	}
	vs, err := forArray(ctx, a, opts)
	if err != nil {
		return nil, err
	}
	vs.Name = name
	return vs, nil
}

// ForMulti computes statistics for a multi-chain trace.
//
// With opts.Chain >= 0 only that chain is summarized. With opts.Chain == -1
// the chains are pooled after dropping opts.Start draws from each of them.
// Returns chain.ErrChainOutOfRange for a chain index past the last chain.
func ForMulti(ctx context.Context, m *chain.MultiTrace, opts Options, logger *logging.Logger) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Chain >= 0 {
		c, err := m.Chain(opts.Chain)
		if err != nil {
			return nil, err
		}
		return ForTrace(ctx, c, opts, logger)
	}

	view, err := m.CombinedFrom(opts.Start)
	if err != nil {
		return nil, fmt.Errorf("combine chains: %w", err)
	}
	pooled := opts
	pooled.Start = 0
	report, err := ForTrace(ctx, view, pooled, logger)
	if err != nil {
		return nil, err
	}
	report.Options = opts
	return report, nil
}
