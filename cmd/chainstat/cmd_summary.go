// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/ingest"
	"github.com/AleutianAI/chainstat/services/trace/stats"
	"github.com/AleutianAI/chainstat/services/trace/summary"
)

// watchInterval is the minimum time between two recomputations.
const watchInterval = time.Second

var (
	errRunAndFiles = errors.New("--run and CSV files are mutually exclusive")
	errWatchRun    = errors.New("--watch needs CSV files, not --run")
)

type renderFunc func(ctx context.Context, w io.Writer, m *chain.MultiTrace, opts summary.Options) error

func (a *app) runSummary(cmd *cobra.Command, args []string) error {
	return a.runReport(cmd, args, func(ctx context.Context, w io.Writer, m *chain.MultiTrace, opts summary.Options) error {
		return summary.WriteMulti(ctx, w, m, opts, a.logger)
	})
}

func (a *app) runStats(cmd *cobra.Command, args []string) error {
	return a.runReport(cmd, args, func(ctx context.Context, w io.Writer, m *chain.MultiTrace, opts summary.Options) error {
		report, err := stats.ForMulti(ctx, m, opts.Stats, a.logger)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}

// runReport loads chains from args or --run and renders them once, or on
// every change with --watch.
func (a *app) runReport(cmd *cobra.Command, args []string, render renderFunc) error {
	opts := a.statsOptions(cmd)
	if err := validateOptions(opts); err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("run")
	watch, _ := cmd.Flags().GetBool("watch")
	switch {
	case runID != "" && len(args) > 0:
		return errRunAndFiles
	case runID != "" && watch:
		return errWatchRun
	case runID == "" && len(args) == 0:
		return ingest.ErrNoFiles
	}

	ctx := cmd.Context()
	copts, err := a.chainOptions()
	if err != nil {
		return err
	}

	if runID != "" {
		m, err := a.loadRun(ctx, runID, copts)
		if err != nil {
			return err
		}
		return render(ctx, a.out, m, opts)
	}

	once := func() error {
		m, err := ingest.LoadChains(ctx, args, a.logger, copts...)
		if err != nil {
			return err
		}
		return render(ctx, a.out, m, opts)
	}
	if !watch {
		return once()
	}

	// Files may be half-written while a sampler runs; keep watching.
	if err := once(); err != nil {
		a.logger.Warn("summary failed", "error", err)
	}
	limiter := rate.NewLimiter(rate.Every(watchInterval), 1)
	return watchFiles(ctx, args, limiter, a.logger, func() {
		if err := once(); err != nil {
			a.logger.Warn("summary failed", "error", err)
		}
	})
}

func (a *app) loadRun(ctx context.Context, id string, copts []chain.Option) (*chain.MultiTrace, error) {
	store, closeStore, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()

	m, _, err := store.Load(ctx, id, copts...)
	return m, err
}
