// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

type options struct {
	precision Precision
	metrics   *telemetry.Metrics
	logger    *logging.Logger
}

// Option configures a Trace.
type Option func(*options)

// WithPrecision sets the storage precision of recorded values.
func WithPrecision(p Precision) Option {
	return func(o *options) { o.precision = p }
}

// WithMetrics records chain counters on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{precision: Float64}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	return o
}
