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
	"fmt"
	"math"
	"slices"

	"github.com/AleutianAI/chainstat/services/trace/sample"
)

// MultiTrace groups independent chains over the same variables.
//
// Thread Safety: Safe for concurrent use; each chain guards itself.
type MultiTrace struct {
	chains []*Trace
	names  []string
}

// NewMulti wraps existing traces.
//
// Returns ErrNoChains for an empty slice and ErrVariableMismatch when the
// traces do not record identical variable names in identical order.
func NewMulti(traces []*Trace) (*MultiTrace, error) {
	if len(traces) == 0 {
		return nil, ErrNoChains
	}
	names := traces[0].VarNames()
	for i, t := range traces[1:] {
		if !slices.Equal(t.VarNames(), names) {
			return nil, fmt.Errorf("%w: chain %d has %v, chain 0 has %v",
				ErrVariableMismatch, i+1, t.VarNames(), names)
		}
	}
	return &MultiTrace{chains: slices.Clone(traces), names: names}, nil
}

// NewMultiCount creates n empty chains over vars.
//
// Description:
//
//	Every chain is built with New(vars, compile, opts...), so each has its
//	own compiled function and buffers.
//
// Outputs:
//
//	*MultiTrace - n empty chains.
//	error - ErrVariablesRequired when vars is nil, ErrNoChains when n < 1,
//	or any error from New.
func NewMultiCount(n int, vars []Variable, compile Compiler, opts ...Option) (*MultiTrace, error) {
	if vars == nil {
		return nil, ErrVariablesRequired
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoChains, n)
	}
	traces := make([]*Trace, n)
	for i := range traces {
		t, err := New(vars, compile, opts...)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", i, err)
		}
		traces[i] = t
	}
	return NewMulti(traces)
}

// ByName returns the variable's draws from each chain, in chain order.
func (m *MultiTrace) ByName(name string) ([]*sample.Array, error) {
	out := make([]*sample.Array, len(m.chains))
	for i, c := range m.chains {
		v, err := c.ByName(name)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Point returns draw i of each chain, in chain order.
func (m *MultiTrace) Point(i int) ([]Point, error) {
	out := make([]Point, len(m.chains))
	for c, t := range m.chains {
		p, err := t.Point(i)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", c, err)
		}
		out[c] = p
	}
	return out, nil
}

// Lookup applies Trace.Lookup to each chain, in chain order.
func (m *MultiTrace) Lookup(key string) ([]Selection, error) {
	out := make([]Selection, len(m.chains))
	for c, t := range m.chains {
		sel, err := t.Lookup(key)
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", c, err)
		}
		out[c] = sel
	}
	return out, nil
}

// Combined returns every chain merged into one read-only trace.
func (m *MultiTrace) Combined() (*Trace, error) {
	return m.CombinedFrom(0)
}

// CombinedFrom merges draws [start, Len()) of each chain.
//
// Description:
//
//	Burn-in is dropped from every chain before merging, so the result holds
//	sum(max(0, Len_c - start)) draws ordered by chain, then by draw. The
//	per-chain arrays are referenced rather than copied. The view is
//	rebuilt on every call and reflects the chains at that moment.
//
//	A variable whose per-chain values cannot be read (or cannot be merged)
//	fails only that variable: ByName on the view returns the error while
//	the other variables stay readable.
//
// Outputs:
//
//	*Trace - Read-only view; Record returns ErrReadOnly.
//	error - Non-nil only if the view cannot be constructed.
func (m *MultiTrace) CombinedFrom(start int) (*Trace, error) {
	view, err := newTrace(m.names, m.chains[0].opts)
	if err != nil {
		return nil, err
	}
	view.readOnly = true
	view.errs = make([]error, len(m.names))

	parts := make([][]*sample.Array, len(m.names))
	for c, t := range m.chains {
		values, errs := t.collect()
		for idx := range m.names {
			if view.errs[idx] != nil {
				continue
			}
			if errs[idx] != nil {
				view.errs[idx] = fmt.Errorf("chain %d: %w", c, errs[idx])
				continue
			}
			s, err := values[idx].Slice(start, math.MaxInt)
			if err != nil {
				view.errs[idx] = fmt.Errorf("chain %d: variable %q: %w", c, m.names[idx], err)
				continue
			}
			parts[idx] = append(parts[idx], s)
		}
	}
	for idx, p := range parts {
		if view.errs[idx] == nil {
			view.buffers[idx].Seed(p...)
		}
	}
	return view, nil
}

// Chains returns the chains in order.
func (m *MultiTrace) Chains() []*Trace {
	return slices.Clone(m.chains)
}

// Chain returns chain i.
func (m *MultiTrace) Chain(i int) (*Trace, error) {
	if i < 0 || i >= len(m.chains) {
		return nil, fmt.Errorf("%w: %d of %d", ErrChainOutOfRange, i, len(m.chains))
	}
	return m.chains[i], nil
}

// Len returns the number of chains.
func (m *MultiTrace) Len() int {
	return len(m.chains)
}

// VarNames returns the shared variable names.
func (m *MultiTrace) VarNames() []string {
	return slices.Clone(m.names)
}
