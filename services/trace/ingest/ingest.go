// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest reads and writes chain traces as CSV files.
//
// A file holds one chain: a header row naming the columns and one row per
// draw. A column "name" is a scalar variable. Columns "name[0]", "name[1]",
// ... must be contiguous and 0-based and together form a vector variable.
// Lines starting with '#' are ignored, so sampler output that carries
// commented metadata can be read directly.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/sample"
)

var (
	// ErrEmptyFile indicates a file without a header row.
	ErrEmptyFile = errors.New("no header row")

	// ErrBadHeader indicates a header that does not describe variables.
	ErrBadHeader = errors.New("malformed header")

	// ErrBadValue indicates a cell that is not a number.
	ErrBadValue = errors.New("malformed value")

	// ErrNoFiles indicates LoadChains was called without paths.
	ErrNoFiles = errors.New("no chain files")
)

var indexedColumn = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// Variable describes one variable in a CSV layout.
type Variable struct {
	Name string

	// Width is 0 for a scalar and the element count for a vector.
	Width int

	// Offset is the first column of the variable.
	Offset int
}

// Layout maps header columns to variables.
type Layout struct {
	Vars []Variable
}

// Names returns the variable names in column order.
func (l *Layout) Names() []string {
	names := make([]string, len(l.Vars))
	for i, v := range l.Vars {
		names[i] = v.Name
	}
	return names
}

// ParseHeader groups header columns into variables.
//
// Returns ErrBadHeader for empty or duplicate names and for vector columns
// that are not contiguous or do not start at index 0.
func ParseHeader(header []string) (*Layout, error) {
	if len(header) == 0 {
		return nil, ErrEmptyFile
	}
	layout := &Layout{}
	seen := make(map[string]bool)

	for col, raw := range header {
		name := strings.TrimSpace(raw)
		idx := -1
		if m := indexedColumn.FindStringSubmatch(name); m != nil {
			name = m[1]
			var err error
			if idx, err = strconv.Atoi(m[2]); err != nil {
				return nil, fmt.Errorf("%w: column %d %q has a bad index: %v", ErrBadHeader, col, raw, err)
			}
		}
		if name == "" {
			return nil, fmt.Errorf("%w: column %d has no name", ErrBadHeader, col)
		}

		if idx > 0 {
			k := len(layout.Vars) - 1
			if k < 0 || layout.Vars[k].Name != name || layout.Vars[k].Width != idx {
				return nil, fmt.Errorf("%w: column %d %q is not contiguous with %s[%d]",
					ErrBadHeader, col, raw, name, idx-1)
			}
			layout.Vars[k].Width++
			continue
		}

		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate variable %q", ErrBadHeader, name)
		}
		seen[name] = true
		width := 0
		if idx == 0 {
			width = 1
		}
		layout.Vars = append(layout.Vars, Variable{Name: name, Width: width, Offset: col})
	}
	return layout, nil
}

// point converts one record to a chain point.
func (l *Layout) point(record []string, line int) (chain.Point, error) {
	p := make(chain.Point, len(l.Vars))
	for _, v := range l.Vars {
		n := max(1, v.Width)
		vals := make([]float64, n)
		for k := 0; k < n; k++ {
			cell := strings.TrimSpace(record[v.Offset+k])
			f, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %d: %q", ErrBadValue, line, v.Offset+k+1, cell)
			}
			vals[k] = f
		}
		if v.Width == 0 {
			p[v.Name] = sample.Scalar(vals[0])
		} else {
			p[v.Name] = sample.Vector(vals...)
		}
	}
	return p, nil
}

// ReadTrace reads one chain from r.
//
// Description:
//
//	Every data row is recorded into a new trace built with chain.Direct.
//	Rows must have as many cells as the header.
//
// Outputs:
//
//	*chain.Trace - The recorded chain.
//	error - ErrEmptyFile, ErrBadHeader, ErrBadValue, or a csv parse error.
func ReadTrace(r io.Reader, opts ...chain.Option) (*chain.Trace, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	layout, err := ParseHeader(header)
	if err != nil {
		return nil, err
	}

	tr, err := chain.New(chain.Names(layout.Names()...), chain.Direct, opts...)
	if err != nil {
		return nil, err
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line, _ := cr.FieldPos(0)
		p, err := layout.point(record, line)
		if err != nil {
			return nil, err
		}
		if _, err := tr.Record(p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return tr, nil
}

// ReadFile reads one chain from a CSV file.
func ReadFile(path string, opts ...chain.Option) (*chain.Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, err := ReadTrace(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// LoadChains reads one chain per path concurrently.
//
// Chains keep the order of paths. All files must describe the same
// variables in the same order.
func LoadChains(ctx context.Context, paths []string, logger *logging.Logger, opts ...chain.Option) (*chain.MultiTrace, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	logger = logging.OrNop(logger)

	traces := make([]*chain.Trace, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tr, err := ReadFile(path, opts...)
			if err != nil {
				return err
			}
			logger.Debug("chain loaded", "path", path, "chain", i, "draws", tr.Len())
			traces[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chain.NewMulti(traces)
}

// WriteTrace writes t as CSV in the layout ReadTrace accepts.
//
// Variables must be scalars or vectors.
func WriteTrace(w io.Writer, t *chain.Trace) error {
	names := t.VarNames()
	arrays := make([]*sample.Array, len(names))
	var header []string
	n := t.Len()
	for i, name := range names {
		a, err := t.ByName(name)
		if err != nil {
			return err
		}
		if a.Len() < n {
			n = a.Len()
		}
		arrays[i] = a
		switch a.Ndim() {
		case 1:
			header = append(header, name)
		case 2:
			for k := 0; k < a.TrailingSize(); k++ {
				header = append(header, fmt.Sprintf("%s[%d]", name, k))
			}
		default:
			return fmt.Errorf("variable %q: cannot write %d-d draws as CSV", name, a.Ndim()-1)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for d := 0; d < n; d++ {
		col := 0
		for _, a := range arrays {
			ts := a.TrailingSize()
			for _, v := range a.Data()[d*ts : (d+1)*ts] {
				row[col] = strconv.FormatFloat(v, 'g', -1, 64)
				col++
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
