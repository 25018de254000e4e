// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats computes posterior summary statistics from recorded draws.
//
// For every flattened element of a variable it reports the mean, the
// population standard deviation, the Monte Carlo error by batch means, the
// highest posterior density interval and a set of empirical quantiles.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/AleutianAI/chainstat/services/trace/sample"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrZeroLength indicates no draws remain after burn-in.
	ErrZeroLength = errors.New("no samples after burn-in")

	// ErrNonFinite indicates NaN or infinite draws.
	ErrNonFinite = errors.New("samples contain non-finite values")

	// ErrInvalidOptions indicates options outside their valid range.
	ErrInvalidOptions = errors.New("invalid statistics options")
)

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// Interval is a closed credible interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Width returns Upper - Lower.
func (iv Interval) Width() float64 {
	return iv.Upper - iv.Lower
}

// Quantile holds one percentile for every element of a variable.
type Quantile struct {
	Percent float64   `json:"percent"`
	Values  []float64 `json:"values"`
}

// VarStats summarizes one variable.
//
// Every slice field has one entry per flattened trailing element, in
// row-major order; a scalar variable has exactly one.
type VarStats struct {
	Name      string     `json:"name"`
	Shape     []int      `json:"shape"`
	N         int        `json:"n"`
	Alpha     float64    `json:"alpha"`
	Mean      []float64  `json:"mean"`
	StdDev    []float64  `json:"sd"`
	MCError   []float64  `json:"mc_error"`
	HPD       []Interval `json:"hpd"`
	Quantiles []Quantile `json:"quantiles"`
}

// IntervalLabel returns e.g. "95% HPD interval".
func (v *VarStats) IntervalLabel() string {
	return IntervalLabel(v.Alpha)
}

// IntervalLabel returns the column label for an HPD interval at 1-alpha.
func IntervalLabel(alpha float64) string {
	level := math.Round((1-alpha)*1e6) / 1e4
	return strconv.FormatFloat(level, 'f', -1, 64) + "% HPD interval"
}

// Elements returns the number of flattened elements.
func (v *VarStats) Elements() int {
	return len(v.Mean)
}

// -----------------------------------------------------------------------------
// Single variable
// -----------------------------------------------------------------------------

// ForArray computes statistics for one variable.
//
// Description:
//
//	a must carry a leading sample axis. Draws before opts.Start are
//	dropped, then every trailing element is summarized independently.
//
// Inputs:
//
//	ctx - Checked for cancellation between elements.
//	a - Draws of one variable, shape [n, trailing...].
//	opts - Validated options.
//
// Outputs:
//
//	*VarStats - The summary, with an empty Name.
//	error - ErrInvalidOptions, ErrZeroLength, ErrNonFinite, or an array error.
func ForArray(ctx context.Context, a *sample.Array, opts Options) (*VarStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return forArray(ctx, a, opts)
}

func forArray(ctx context.Context, a *sample.Array, opts Options) (*VarStats, error) {
	if a == nil {
		return nil, sample.ErrNilArray
	}
	kept, err := a.From(opts.Start)
	if err != nil {
		return nil, err
	}
	n := kept.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: %d draws, start %d", ErrZeroLength, a.Len(), opts.Start)
	}

	qs := opts.quantiles()
	elems := kept.TrailingSize()
	vs := &VarStats{
		Shape:     kept.Trailing(),
		N:         n,
		Alpha:     opts.Alpha,
		Mean:      make([]float64, elems),
		StdDev:    make([]float64, elems),
		MCError:   make([]float64, elems),
		HPD:       make([]Interval, elems),
		Quantiles: make([]Quantile, len(qs)),
	}
	for i, q := range qs {
		vs.Quantiles[i] = Quantile{Percent: q, Values: make([]float64, elems)}
	}

	for j := 0; j < elems; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		col, err := kept.Column(j)
		if err != nil {
			return nil, err
		}
		if !finite(col) {
			return nil, fmt.Errorf("%w: element %d", ErrNonFinite, j)
		}

		vs.Mean[j], vs.StdDev[j] = stat.PopMeanStdDev(col, nil)
		vs.MCError[j] = batchSD(col, opts.Batches)

		slices.Sort(col)
		vs.HPD[j] = hpd(col, opts.Alpha)
		for i, q := range qs {
			vs.Quantiles[i].Values[j] = stat.Quantile(q/100, stat.Empirical, col, nil)
		}
	}
	return vs, nil
}

func finite(x []float64) bool {
	if floats.HasNaN(x) {
		return false
	}
	for _, v := range x {
		if math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// hpd returns the narrowest interval holding ceil(n*(1-alpha)) of the
// sorted draws. Ties go to the lowest interval.
func hpd(sorted []float64, alpha float64) Interval {
	n := len(sorted)
	k := int(math.Ceil(float64(n)*(1-alpha) - 1e-9))
	k = max(1, min(k, n))

	best := 0
	bestWidth := math.Inf(1)
	for i := 0; i+k-1 < n; i++ {
		if w := sorted[i+k-1] - sorted[i]; w < bestWidth {
			best, bestWidth = i, w
		}
	}
	return Interval{Lower: sorted[best], Upper: sorted[best+k-1]}
}

// batchSD estimates the Monte Carlo standard error of the mean by batch
// means. x must be in draw order.
//
// The draws are split into exactly B = min(batches, n) contiguous groups,
// group b covering [b*n/B, (b+1)*n/B), so group sizes differ by at most one.
// With a single batch it reduces to the naive std(x)/sqrt(n).
func batchSD(x []float64, batches int) float64 {
	n := len(x)
	if batches <= 1 || n < 2 {
		_, sd := stat.PopMeanStdDev(x, nil)
		return sd / math.Sqrt(float64(n))
	}
	b := min(batches, n)

	means := make([]float64, b)
	for i := range b {
		lo, hi := i*n/b, (i+1)*n/b
		means[i] = stat.Mean(x[lo:hi], nil)
	}
	_, sd := stat.PopMeanStdDev(means, nil)
	return sd / math.Sqrt(float64(b))
}
