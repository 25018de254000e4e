// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chain records the states visited by MCMC chains.
//
// A Trace stores one growable sample buffer per variable of a single chain.
// Each Record call evaluates a sampler point once through a compiled
// EvalFunc and appends one value per variable, so every variable of a trace
// always holds the same number of draws. A MultiTrace groups independent
// chains over the same variables and can merge them into a combined,
// read-only Trace for pooled statistics.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/sample"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnknownVariable indicates a variable name not present in the trace.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrIndexOutOfRange indicates a draw index outside the trace.
	ErrIndexOutOfRange = sample.ErrIndexOutOfRange

	// ErrLookup indicates a key that is neither a valid index nor a known name.
	ErrLookup = errors.New("key is neither an index nor a variable")

	// ErrDuplicateVariable indicates two variables with the same identifier.
	ErrDuplicateVariable = errors.New("duplicate variable")

	// ErrValueCount indicates the compiled function returned the wrong
	// number of values.
	ErrValueCount = errors.New("evaluated value count does not match variables")

	// ErrMissingValue indicates a point without a value for a variable.
	ErrMissingValue = errors.New("point has no value for variable")

	// ErrReadOnly indicates a Record on a combined view.
	ErrReadOnly = errors.New("trace is read-only")

	// ErrNilCompiler indicates New was called without a compiler.
	ErrNilCompiler = errors.New("compiler must not be nil")

	// ErrUnknownPrecision indicates an unrecognized precision name.
	ErrUnknownPrecision = errors.New("unknown precision")

	// ErrNoChains indicates a multi-chain trace with zero chains.
	ErrNoChains = errors.New("at least one chain is required")

	// ErrVariableMismatch indicates chains recording different variables.
	ErrVariableMismatch = errors.New("chains record different variables")

	// ErrVariablesRequired indicates a chain count without variables.
	ErrVariablesRequired = errors.New("variables can't be nil if chain count specified")

	// ErrChainOutOfRange indicates a chain index outside the multi-trace.
	ErrChainOutOfRange = errors.New("chain index out of range")
)

// -----------------------------------------------------------------------------
// Trace
// -----------------------------------------------------------------------------

// Trace is the recorded history of one chain.
//
// Description:
//
//	Variables are fixed at construction. Record appends one draw to every
//	variable under the write lock, so readers never see a partial draw.
//	Reads that need to compact pending buffers upgrade to the write lock.
//
// Thread Safety: Safe for concurrent use. A single writer is expected.
type Trace struct {
	mu      sync.RWMutex
	names   []string
	index   map[string]int
	buffers []*sample.Growable
	eval    EvalFunc

	// readOnly marks combined views; errs holds per-variable failures
	// captured while building one.
	readOnly bool
	errs     []error

	opts options
}

// New creates an empty trace for vars.
//
// Description:
//
//	Compiles vars once with compile. The variable order fixes the order of
//	VarNames and of the values the compiled function must return.
//
// Inputs:
//
//	vars - Ordered variables. Identifiers (String()) must be unique.
//	compile - Builds the evaluation function. Use Direct for plain points.
//	opts - WithPrecision, WithMetrics, WithLogger.
//
// Outputs:
//
//	*Trace - The empty trace.
//	error - ErrNilCompiler, ErrDuplicateVariable, or the compiler's error.
func New(vars []Variable, compile Compiler, opts ...Option) (*Trace, error) {
	if compile == nil {
		return nil, ErrNilCompiler
	}
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.String()
	}
	t, err := newTrace(names, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	eval, err := compile(vars)
	if err != nil {
		return nil, fmt.Errorf("compile variables: %w", err)
	}
	t.eval = eval
	return t, nil
}

func newTrace(names []string, o options) (*Trace, error) {
	t := &Trace{
		names:   slices.Clone(names),
		index:   make(map[string]int, len(names)),
		buffers: make([]*sample.Growable, len(names)),
		opts:    o,
	}
	for i, name := range names {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, name)
		}
		t.index[name] = i
		t.buffers[i] = sample.NewGrowable()
	}
	return t, nil
}

// Record evaluates p and appends one value per variable.
//
// Description:
//
//	The point is evaluated exactly once. If evaluation fails, or returns a
//	value count different from the variable count, nothing is appended.
//	Values are not shape-checked here; a draw whose shape disagrees with
//	earlier draws is reported by the next read of that variable.
//
// Outputs:
//
//	*Trace - The receiver, to allow chained calls.
//	error - ErrReadOnly, ErrValueCount, or the wrapped evaluation error.
func (t *Trace) Record(p Point) (*Trace, error) {
	ctx := context.Background()
	if t.readOnly {
		return t, ErrReadOnly
	}

	values, err := t.eval(p)
	if err == nil && len(values) != len(t.names) {
		err = fmt.Errorf("%w: got %d, want %d", ErrValueCount, len(values), len(t.names))
	}
	if err == nil {
		for i, v := range values {
			if v == nil {
				err = fmt.Errorf("%w: %q", sample.ErrNilArray, t.names[i])
				break
			}
		}
	}
	if err != nil {
		t.opts.metrics.IncRecord(ctx, false)
		t.opts.logger.Debug("record rejected", "error", err)
		return t, fmt.Errorf("record: %w", err)
	}

	if t.opts.precision == Float32 {
		for i, v := range values {
			values[i] = v.Float32()
		}
	}

	t.mu.Lock()
	for i, v := range values {
		t.buffers[i].Append(v)
	}
	t.mu.Unlock()

	t.opts.metrics.IncRecord(ctx, true)
	return t, nil
}

// ByName returns every recorded draw of one variable as a single array.
//
// The result has leading length Len() and must be treated as read-only.
// Returns ErrUnknownVariable for unknown names and *sample.ShapeError when
// the recorded draws of the variable disagree in shape.
func (t *Trace) ByName(name string) (*sample.Array, error) {
	idx, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	if t.errs != nil && t.errs[idx] != nil {
		return nil, t.errs[idx]
	}

	t.mu.RLock()
	if !t.buffers[idx].Pending() {
		v, err := t.buffers[idx].Value()
		t.mu.RUnlock()
		return v, err
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compactLocked(idx)
}

// compactLocked returns the value of variable idx. Caller holds the write lock.
func (t *Trace) compactLocked(idx int) (*sample.Array, error) {
	g := t.buffers[idx]
	pending := g.Pending()
	v, err := g.Value()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", t.names[idx], err)
	}
	if pending {
		t.opts.metrics.IncCompaction(context.Background())
	}
	return v, nil
}

// snapshot returns the compacted value of every variable from a single
// lock acquisition, so all arrays share one length.
func (t *Trace) snapshot() ([]*sample.Array, error) {
	values, errs := t.collect()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// collect is snapshot with per-variable errors.
func (t *Trace) collect() ([]*sample.Array, []error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	values := make([]*sample.Array, len(t.buffers))
	errs := make([]error, len(t.buffers))
	for idx := range t.buffers {
		if t.errs != nil && t.errs[idx] != nil {
			errs[idx] = t.errs[idx]
			continue
		}
		values[idx], errs[idx] = t.compactLocked(idx)
	}
	return values, errs
}

// Point returns the state of the chain at draw i.
//
// Negative i counts back from the most recent draw. Returns
// ErrIndexOutOfRange when i is outside [-Len(), Len()).
func (t *Trace) Point(i int) (Point, error) {
	values, err := t.snapshot()
	if err != nil {
		return nil, err
	}
	n := 0
	if len(values) > 0 {
		n = values[0].Len()
	}
	if i < -n || i >= n {
		return nil, fmt.Errorf("%w: %d with %d draws", ErrIndexOutOfRange, i, n)
	}

	p := make(Point, len(values))
	for idx, v := range values {
		row, err := v.At(i)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", t.names[idx], err)
		}
		p[t.names[idx]] = row
	}
	return p, nil
}

// ByIndex is an alias for Point.
func (t *Trace) ByIndex(i int) (Point, error) {
	return t.Point(i)
}

// ByRange returns draws [start, end) of every variable.
//
// Bounds are clamped like slice expressions in array libraries: negative
// values count from the end and out-of-range bounds shrink the result
// instead of failing. Each value in the returned Point keeps the sample axis.
func (t *Trace) ByRange(start, end int) (Point, error) {
	values, err := t.snapshot()
	if err != nil {
		return nil, err
	}
	p := make(Point, len(values))
	for idx, v := range values {
		s, err := v.Slice(start, end)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", t.names[idx], err)
		}
		p[t.names[idx]] = s
	}
	return p, nil
}

// From returns a new read-only trace holding draws [start, Len()).
//
// Used to discard burn-in before computing statistics.
func (t *Trace) From(start int) (*Trace, error) {
	view, err := newTrace(t.names, t.opts)
	if err != nil {
		return nil, err
	}
	view.readOnly = true
	values, errs := t.collect()
	view.errs = errs
	for idx, v := range values {
		if errs[idx] != nil {
			continue
		}
		s, err := v.Slice(start, math.MaxInt)
		if err != nil {
			view.errs[idx] = err
			continue
		}
		view.buffers[idx].Seed(s)
	}
	return view, nil
}

// VarNames returns the variable names in recording order.
func (t *Trace) VarNames() []string {
	return slices.Clone(t.names)
}

// Len returns the number of recorded draws.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.buffers) == 0 {
		return 0
	}
	return t.buffers[0].Len()
}

// ReadOnly reports whether the trace is a combined or sliced view.
func (t *Trace) ReadOnly() bool {
	return t.readOnly
}

// Logger returns the trace's logger. Never nil.
func (t *Trace) Logger() *logging.Logger {
	return t.opts.logger
}

// Metrics returns the instruments the trace records on. May be nil.
func (t *Trace) Metrics() *telemetry.Metrics {
	return t.opts.metrics
}
