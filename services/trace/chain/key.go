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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/chainstat/services/trace/sample"
)

// ErrNotIndex indicates a key that does not parse as an index or a slice.
var ErrNotIndex = errors.New("key is not an index")

// Key is a parsed positional key.
//
// A Key is either a single draw index or a half-open range of draws.
// Missing range bounds are open: ":5" starts at 0 and "10:" runs to the end.
type Key struct {
	// Range is true for "start:end" keys.
	Range bool

	// Index is the draw index for non-range keys.
	Index int

	// Start and End bound a range key.
	Start, End int
}

// String implements fmt.Stringer.
func (k Key) String() string {
	if !k.Range {
		return strconv.Itoa(k.Index)
	}
	var b strings.Builder
	if k.Start != 0 {
		b.WriteString(strconv.Itoa(k.Start))
	}
	b.WriteByte(':')
	if k.End != math.MaxInt {
		b.WriteString(strconv.Itoa(k.End))
	}
	return b.String()
}

// ParseKey parses "7", "-1", "10:", ":5" or "2:8".
//
// Returns ErrNotIndex for anything else, including variable names.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	before, after, isRange := strings.Cut(s, ":")
	if !isRange {
		i, err := strconv.Atoi(s)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q", ErrNotIndex, s)
		}
		return Key{Index: i}, nil
	}
	if strings.Contains(after, ":") {
		return Key{}, fmt.Errorf("%w: %q", ErrNotIndex, s)
	}

	k := Key{Range: true, Start: 0, End: math.MaxInt}
	if before != "" {
		v, err := strconv.Atoi(strings.TrimSpace(before))
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q", ErrNotIndex, s)
		}
		k.Start = v
	}
	if after != "" {
		v, err := strconv.Atoi(strings.TrimSpace(after))
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q", ErrNotIndex, s)
		}
		k.End = v
	}
	return k, nil
}

// SelectionKind tells which field of a Selection is set.
type SelectionKind int

const (
	// SelectPoint is a single draw of every variable.
	SelectPoint SelectionKind = iota

	// SelectRange is a range of draws of every variable.
	SelectRange

	// SelectVariable is every draw of one variable.
	SelectVariable
)

// String implements fmt.Stringer.
func (k SelectionKind) String() string {
	switch k {
	case SelectPoint:
		return "point"
	case SelectRange:
		return "range"
	case SelectVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// Selection is the result of Lookup.
type Selection struct {
	Kind SelectionKind

	// Point is set for SelectPoint and SelectRange.
	Point Point

	// Name and Array are set for SelectVariable.
	Name  string
	Array *sample.Array
}

// Lookup resolves a user-supplied key against the trace.
//
// Description:
//
//	The key is first tried as a position: an integer selects one draw and
//	a "start:end" slice selects a range. If the key does not parse as a
//	position, or the index is outside the trace, it is tried as a
//	variable name. Any other failure is returned as is.
//
// Outputs:
//
//	Selection - The resolved selection.
//	error - ErrLookup when the key is neither a position nor a name.
func (t *Trace) Lookup(key string) (Selection, error) {
	k, err := ParseKey(key)
	switch {
	case err == nil && k.Range:
		p, err := t.ByRange(k.Start, k.End)
		if err != nil {
			return Selection{}, err
		}
		return Selection{Kind: SelectRange, Point: p}, nil

	case err == nil:
		p, err := t.Point(k.Index)
		if err == nil {
			return Selection{Kind: SelectPoint, Point: p}, nil
		}
		if !errors.Is(err, ErrIndexOutOfRange) {
			return Selection{}, err
		}

	case !errors.Is(err, ErrNotIndex):
		return Selection{}, err
	}

	a, err := t.ByName(key)
	if errors.Is(err, ErrUnknownVariable) {
		return Selection{}, fmt.Errorf("%w: %q", ErrLookup, key)
	}
	if err != nil {
		return Selection{}, err
	}
	return Selection{Kind: SelectVariable, Name: key, Array: a}, nil
}
