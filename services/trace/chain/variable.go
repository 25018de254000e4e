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
	"strings"

	"github.com/AleutianAI/chainstat/services/trace/sample"
)

// Variable is a model quantity whose value is recorded at every draw.
//
// Only the identifier matters to the trace; String() must be unique within
// one trace.
type Variable interface {
	fmt.Stringer
}

// Name is the simplest Variable: a bare identifier.
type Name string

// String implements fmt.Stringer.
func (n Name) String() string { return string(n) }

// Names converts identifiers to Variables.
func Names(ids ...string) []Variable {
	vars := make([]Variable, len(ids))
	for i, id := range ids {
		vars[i] = Name(id)
	}
	return vars
}

// Point is one sampler state: the value of every variable at one draw,
// keyed by variable name.
//
// Points handed to or returned from a trace must not be mutated.
type Point map[string]*sample.Array

// EvalFunc maps a sampler point to one concrete value per variable, in the
// order of the variables it was compiled for.
type EvalFunc func(Point) ([]*sample.Array, error)

// Compiler builds the EvalFunc for an ordered list of variables.
//
// This is the contract with the model layer: the trace never inspects the
// model, it only calls the compiled function once per Record.
type Compiler func([]Variable) (EvalFunc, error)

// Direct is the stock Compiler. The compiled function reads each variable
// from the point by name; a missing name yields ErrMissingValue.
func Direct(vars []Variable) (EvalFunc, error) {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.String()
	}
	return func(p Point) ([]*sample.Array, error) {
		out := make([]*sample.Array, len(names))
		for i, name := range names {
			v, ok := p[name]
			if !ok || v == nil {
				return nil, fmt.Errorf("%w: %q", ErrMissingValue, name)
			}
			out[i] = v
		}
		return out, nil
	}, nil
}

// Precision is the floating-point width values are stored at.
type Precision int

const (
	// Float64 stores values unchanged.
	Float64 Precision = iota

	// Float32 rounds every recorded value to single precision.
	Float32
)

// String implements fmt.Stringer.
func (p Precision) String() string {
	if p == Float32 {
		return "float32"
	}
	return "float64"
}

// ParsePrecision accepts "float64" (or "") and "float32".
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float64":
		return Float64, nil
	case "float32":
		return Float32, nil
	default:
		return Float64, fmt.Errorf("%w: %q", ErrUnknownPrecision, s)
	}
}
