// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package summary renders posterior statistics as a fixed-width text report.
//
// The layout is stable and intended for terminals and logs, not parsing:
// every field is 17 characters wide regardless of its content, so wide
// values push later columns right instead of being re-aligned.
package summary

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/sample"
	"github.com/AleutianAI/chainstat/services/trace/stats"
)

const (
	fieldWidth  = 17
	quantileRow = "2.5             25              50              75             97.5"
	quantileBar = " |---------------|===============|===============|---------------|"
)

// Options controls a summary.
type Options struct {
	// Stats are passed to the statistics engine. The quantile table always
	// prints stats.DefaultQuantiles; they are added to Stats.Quantiles when
	// missing.
	Stats stats.Options

	// RoundTo is the number of decimal digits printed.
	RoundTo int
}

// DefaultOptions returns stats.DefaultOptions() rounded to 3 digits.
func DefaultOptions() Options {
	return Options{Stats: stats.DefaultOptions(), RoundTo: 3}
}

// Write computes statistics for every variable of src and renders them.
//
// Variables that could not be summarized print a one-line diagnostic in
// place of their table.
func Write(ctx context.Context, w io.Writer, src stats.Source, opts Options, logger *logging.Logger) error {
	report, err := stats.ForTrace(ctx, src, StatsOptions(opts.Stats), logger)
	if err != nil {
		return err
	}
	return WriteReport(w, report, opts.RoundTo)
}

// WriteMulti is Write for a multi-chain trace; opts.Stats.Chain selects one
// chain or pools all of them.
func WriteMulti(ctx context.Context, w io.Writer, m *chain.MultiTrace, opts Options, logger *logging.Logger) error {
	report, err := stats.ForMulti(ctx, m, StatsOptions(opts.Stats), logger)
	if err != nil {
		return err
	}
	return WriteReport(w, report, opts.RoundTo)
}

// WriteArray renders the statistics of a single variable without a name
// heading.
func WriteArray(ctx context.Context, w io.Writer, a *sample.Array, opts Options) error {
	vs, err := stats.ForArray(ctx, a, StatsOptions(opts.Stats))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, table(vs, opts.RoundTo))
	return err
}

// StatsOptions returns o with every percentile of the quantile table
// included, keeping any extra percentiles o already asks for.
func StatsOptions(o stats.Options) stats.Options {
	if len(o.Quantiles) == 0 {
		return o
	}
	qs := slices.Clone(o.Quantiles)
	for _, p := range stats.DefaultQuantiles {
		if !slices.Contains(qs, p) {
			qs = append(qs, p)
		}
	}
	o.Quantiles = qs
	return o
}

// WriteReport renders an already computed report in variable order.
//
// The report should be computed with StatsOptions; a table percentile the
// report lacks prints as NaN.
func WriteReport(w io.Writer, report *stats.Report, roundTo int) error {
	var b strings.Builder
	for _, name := range report.Order {
		if vs, ok := report.Stats[name]; ok {
			fmt.Fprintf(&b, "\n%s:\n \n", name)
			b.WriteString(table(vs, roundTo))
			continue
		}
		if reason, ok := report.Skipped[name]; ok {
			fmt.Fprintf(&b, "\n%s:\n \n\tno summary: %v\n", name, reason)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// table renders one variable as tab-indented lines.
func table(vs *stats.VarStats, roundTo int) string {
	header := "Mean             SD               MC Error        " + vs.IntervalLabel()
	lines := []string{header, strings.Repeat("-", len(header))}

	for j := 0; j < vs.Elements(); j++ {
		m := formatNumber(vs.Mean[j], roundTo)
		sd := formatNumber(vs.StdDev[j], roundTo)
		mce := formatNumber(vs.MCError[j], roundTo)
		hpd := "[" + formatNumber(vs.HPD[j].Lower, roundTo) + " " + formatNumber(vs.HPD[j].Upper, roundTo) + "]"

		row := m + pad(fieldWidth-len(m)) + sd + pad(fieldWidth-len(sd)) + mce
		row += pad(len(header)-len(row)-len(hpd)) + hpd
		lines = append(lines, row)
	}

	lines = append(lines, "", "", "Posterior quantiles:", "", quantileRow, quantileBar)

	for j := 0; j < vs.Elements(); j++ {
		var row strings.Builder
		for i, p := range stats.DefaultQuantiles {
			q := formatNumber(quantileAt(vs, p, j), roundTo)
			row.WriteString(q)
			row.WriteString(pad(fieldWidth - i - len(q)))
		}
		lines = append(lines, strings.TrimSpace(row.String()))
	}
	lines = append(lines, "")

	return "\t" + strings.Join(lines, "\n\t") + "\n"
}

// quantileAt returns percentile p of element j, or NaN if it was not
// computed.
func quantileAt(vs *stats.VarStats, p float64, j int) float64 {
	for _, q := range vs.Quantiles {
		if q.Percent == p {
			return q.Values[j]
		}
	}
	return math.NaN()
}

func pad(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

// formatNumber rounds v half away from zero to digits decimals and prints
// it in shortest form. Integral values keep a trailing ".0"; very large or
// very small magnitudes use exponent notation.
func formatNumber(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	scale := math.Pow(10, float64(digits))
	if r := math.Round(v*scale) / scale; !math.IsInf(r, 0) && !math.IsNaN(r) {
		v = r
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
