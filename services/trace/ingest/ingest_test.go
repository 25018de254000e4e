// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chainstat/services/trace/chain"
)

const sampleCSV = `# sampler: nuts
mu,theta[0],theta[1],sigma
0.5,1,2,3
1.5,1.5,2.5,3.5
# adaptation finished
2.5,2,3,4
`

func TestParseHeader(t *testing.T) {
	t.Run("scalars and vectors", func(t *testing.T) {
		l, err := ParseHeader([]string{"mu", "theta[0]", "theta[1]", "theta[2]", "sigma"})
		require.NoError(t, err)
		assert.Equal(t, []Variable{
			{Name: "mu", Width: 0, Offset: 0},
			{Name: "theta", Width: 3, Offset: 1},
			{Name: "sigma", Width: 0, Offset: 4},
		}, l.Vars)
		assert.Equal(t, []string{"mu", "theta", "sigma"}, l.Names())
	})

	tests := []struct {
		name   string
		header []string
	}{
		{"gap in vector", []string{"theta[0]", "theta[2]"}},
		{"vector not from zero", []string{"theta[1]"}},
		{"interleaved vector", []string{"theta[0]", "mu", "theta[1]"}},
		{"duplicate scalar", []string{"mu", "mu"}},
		{"empty name", []string{"mu", " "}},
		{"scalar then element", []string{"x", "x[1]"}},
		{"overflowing index", []string{"x[99999999999999999999]"}},
		{"overflowing index after vector", []string{"x[0]", "x[99999999999999999999]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.header)
			assert.ErrorIs(t, err, ErrBadHeader)
		})
	}
}

func TestReadTrace(t *testing.T) {
	tr, err := ReadTrace(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []string{"mu", "theta", "sigma"}, tr.VarNames())

	theta, err := tr.ByName("theta")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, theta.Shape())
	assert.Equal(t, []float64{1, 2, 1.5, 2.5, 2, 3}, theta.Data())

	mu, err := tr.ByName("mu")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, mu.Data())
}

func TestReadTrace_Errors(t *testing.T) {
	_, err := ReadTrace(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = ReadTrace(strings.NewReader("mu\n1\nabc\n"))
	assert.ErrorIs(t, err, ErrBadValue)
	assert.Contains(t, err.Error(), "line 3")

	_, err = ReadTrace(strings.NewReader("mu,sigma\n1\n"))
	assert.Error(t, err)
}

func TestReadTrace_Precision(t *testing.T) {
	tr, err := ReadTrace(strings.NewReader("x\n0.1\n"), chain.WithPrecision(chain.Float32))
	require.NoError(t, err)
	x, err := tr.ByName("x")
	require.NoError(t, err)
	assert.Equal(t, float64(float32(0.1)), x.Data()[0])
}

func TestWriteTrace_RoundTrip(t *testing.T) {
	tr, err := ReadTrace(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTrace(&buf, tr))
	assert.True(t, strings.HasPrefix(buf.String(), "mu,theta[0],theta[1],sigma\n"), buf.String())

	again, err := ReadTrace(&buf)
	require.NoError(t, err)
	for _, name := range tr.VarNames() {
		a, err := tr.ByName(name)
		require.NoError(t, err)
		b, err := again.ByName(name)
		require.NoError(t, err)
		assert.True(t, a.Equal(b), "variable %s", name)
	}
}

func TestLoadChains(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i := range paths {
		paths[i] = filepath.Join(dir, "chain"+string(rune('0'+i))+".csv")
		body := "x\n" + strings.Repeat(string(rune('1'+i))+"\n", i+1)
		require.NoError(t, os.WriteFile(paths[i], []byte(body), 0o600))
	}

	m, err := LoadChains(context.Background(), paths, nil)
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())
	for i, c := range m.Chains() {
		assert.Equal(t, i+1, c.Len(), "chain %d keeps path order", i)
	}

	_, err = LoadChains(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = LoadChains(context.Background(), []string{filepath.Join(dir, "missing.csv")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadChains_VariableMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(a, []byte("x\n1\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("y\n1\n"), 0o600))

	_, err := LoadChains(context.Background(), []string{a, b}, nil)
	assert.ErrorIs(t, err, chain.ErrVariableMismatch)
}
