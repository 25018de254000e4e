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
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/chainstat/cmd/chainstat/config"
	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/pkg/ux"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/stats"
	"github.com/AleutianAI/chainstat/services/trace/storage/badger"
	"github.com/AleutianAI/chainstat/services/trace/summary"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

const serviceName = "chainstat"

// statsFlags are the per-invocation overrides of the stats config section.
type statsFlags struct {
	alpha   float64
	start   int
	batches int
	chain   int
	roundTo int
}

// app carries what every command needs once PersistentPreRunE has run.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	flags      statsFlags

	cfg      config.ChainstatConfig
	logger   *logging.Logger
	metrics  *telemetry.Metrics
	shutdown func(context.Context) error
}

// setup loads the config and starts logging and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := config.ReadFile(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	} else {
		if err := config.Load(""); err != nil {
			return err
		}
		a.cfg = config.Global
	}

	lc := a.cfg.Logging.Logger(serviceName)
	lc.Output = a.errOut
	a.logger = logging.New(lc)

	shutdown, err := telemetry.Init(cmd.Context(), a.cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = shutdown

	metrics, err := telemetry.NewMetrics(otel.Meter(serviceName))
	if err != nil {
		a.logger.Warn("metrics disabled", "error", err)
	} else {
		a.metrics = metrics
	}
	return nil
}

// teardown flushes telemetry and closes the log file.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.WithoutCancel(ctx)))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// statsOptions overlays explicitly set flags on the configured defaults.
func (a *app) statsOptions(cmd *cobra.Command) summary.Options {
	opts := summary.Options{Stats: a.cfg.Stats.Options, RoundTo: a.cfg.Stats.RoundTo}
	f := cmd.Flags()
	if f.Changed("alpha") {
		opts.Stats.Alpha = a.flags.alpha
	}
	if f.Changed("start") {
		opts.Stats.Start = a.flags.start
	}
	if f.Changed("batches") {
		opts.Stats.Batches = a.flags.batches
	}
	if f.Changed("chain") {
		opts.Stats.Chain = a.flags.chain
	}
	if f.Changed("roundto") {
		opts.RoundTo = a.flags.roundTo
	}
	return opts
}

// validateOptions rejects options the statistics engine would refuse, before any
// file is read.
func validateOptions(opts summary.Options) error {
	if opts.RoundTo < 0 {
		return fmt.Errorf("%w: roundto must be >= 0", stats.ErrInvalidOptions)
	}
	return opts.Stats.Validate()
}

func (a *app) chainOptions() ([]chain.Option, error) {
	p, err := a.cfg.Model.ParsedPrecision()
	if err != nil {
		return nil, err
	}
	return []chain.Option{
		chain.WithPrecision(p),
		chain.WithMetrics(a.metrics),
		chain.WithLogger(a.logger),
	}, nil
}

// openStore opens the configured run store. The returned close func must
// be called.
func (a *app) openStore() (*badger.RunStore, func() error, error) {
	bc, err := a.cfg.Storage.Badger(a.logger)
	if err != nil {
		return nil, nil, err
	}
	db, err := badger.Open(bc)
	if err != nil {
		return nil, nil, err
	}
	store, err := badger.NewRunStore(db, a.metrics, a.logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return store, db.Close, nil
}

func (a *app) printer() *ux.Printer {
	return ux.NewPrinter(a.out)
}
