// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package summary

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/sample"
	"github.com/AleutianAI/chainstat/services/trace/stats"
)

func oneToHundredTrace(t *testing.T) *chain.Trace {
	t.Helper()
	tr, err := chain.New(chain.Names("x"), chain.Direct)
	require.NoError(t, err)
	for i := 1; i <= 100; i++ {
		_, err := tr.Record(chain.Point{"x": sample.Scalar(float64(i))})
		require.NoError(t, err)
	}
	return tr
}

func TestWrite_OneToHundred(t *testing.T) {
	var buf bytes.Buffer
	err := Write(context.Background(), &buf, oneToHundredTrace(t), DefaultOptions(), nil)
	require.NoError(t, err)

	want := strings.Join([]string{
		"",
		"x:",
		" ",
		"\tMean             SD               MC Error        95% HPD interval",
		"\t------------------------------------------------------------------",
		"\t50.5             28.866           2.887                 [1.0 95.0]",
		"\t",
		"\t",
		"\tPosterior quantiles:",
		"\t",
		"\t2.5             25              50              75             97.5",
		"\t |---------------|===============|===============|---------------|",
		"\t3.0              25.0            50.0           75.0          98.0",
		"\t",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestWrite_VectorRows(t *testing.T) {
	tr, err := chain.New(chain.Names("v"), chain.Direct)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := tr.Record(chain.Point{"v": sample.Vector(float64(i), 1)})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, tr, DefaultOptions(), nil))

	lines := strings.Split(buf.String(), "\n")
	// heading, blank, header, rule, two value rows
	assert.True(t, strings.HasPrefix(lines[5], "\t4.5 "), "row 0: %q", lines[5])
	assert.True(t, strings.HasPrefix(lines[6], "\t1.0 "), "row 1: %q", lines[6])
	assert.True(t, strings.HasSuffix(lines[6], "[1.0 1.0]"), "row 1: %q", lines[6])
}

func TestWrite_SkippedVariablePrintsDiagnostic(t *testing.T) {
	tr := oneToHundredTrace(t)
	opts := DefaultOptions()
	opts.Stats.Start = 500

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, tr, opts, nil))
	assert.Contains(t, buf.String(), "x:")
	assert.Contains(t, buf.String(), "no summary: "+stats.ErrZeroLength.Error())
	assert.NotContains(t, buf.String(), "Posterior quantiles")
}

func TestWriteMulti(t *testing.T) {
	m, err := chain.NewMulti([]*chain.Trace{oneToHundredTrace(t), oneToHundredTrace(t)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteMulti(context.Background(), &buf, m, DefaultOptions(), nil))
	assert.Contains(t, buf.String(), "\t50.5 ")
}

func TestWriteArray(t *testing.T) {
	var buf bytes.Buffer
	err := WriteArray(context.Background(), &buf, sample.Vector(2, 2, 2), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(buf.String(), "\tMean "), buf.String())
	assert.Contains(t, buf.String(), "[2.0 2.0]")
}

func TestWrite_CustomQuantilesKeepTable(t *testing.T) {
	opts := DefaultOptions()
	opts.Stats.Quantiles = []float64{10, 90}

	var buf bytes.Buffer
	err := Write(context.Background(), &buf, oneToHundredTrace(t), opts, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "NaN")
	assert.Contains(t, buf.String(), "\t3.0              25.0            50.0           75.0          98.0\n")
}

func TestStatsOptions(t *testing.T) {
	o := stats.DefaultOptions()
	o.Quantiles = []float64{10, 50}
	got := StatsOptions(o)
	assert.Equal(t, []float64{10, 50, 2.5, 25, 75, 97.5}, got.Quantiles)
	assert.Equal(t, []float64{10, 50}, o.Quantiles, "input untouched")

	o.Quantiles = nil
	assert.Nil(t, StatsOptions(o).Quantiles)
}

func TestWrite_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Stats.Alpha = 2
	err := Write(context.Background(), &bytes.Buffer{}, oneToHundredTrace(t), opts, nil)
	assert.ErrorIs(t, err, stats.ErrInvalidOptions)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		v      float64
		digits int
		want   string
	}{
		{50.5, 3, "50.5"},
		{1, 3, "1.0"},
		{28.866070047722118, 3, "28.866"},
		{0.0005, 3, "0.001"},
		{-0.0005, 3, "-0.001"},
		{2.5, 0, "3.0"},
		{123456.789, 1, "123456.8"},
		{1e20, 0, "1e+20"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.v, tt.digits), "formatNumber(%v, %d)", tt.v, tt.digits)
	}
}
