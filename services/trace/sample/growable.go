// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sample

import "slices"

// growState tags the storage layout of a Growable.
type growState int

const (
	// stateCompacted means at most one chunk is buffered.
	stateCompacted growState = iota

	// statePending means several chunks await concatenation.
	statePending
)

// Growable is an append-only buffer of draws for one variable.
//
// Description:
//
//	Each Append stores the draw as its own one-row chunk. Value concatenates
//	pending chunks into a single chunk and keeps the result, so the merge
//	cost is paid once per run of appends no matter how often the value is
//	read. Compaction is the only transition from pending to compacted; the
//	next Append moves the buffer back to pending.
//
// Thread Safety: Not safe for concurrent use. A Growable is owned by exactly
// one chain trace, which serialises access.
type Growable struct {
	state  growState
	chunks []*Array
}

// NewGrowable returns an empty buffer.
func NewGrowable() *Growable {
	return &Growable{state: stateCompacted}
}

// Append stores a copy of v as a new one-row chunk.
//
// No shape validation happens here; a mismatched draw is reported as a
// *ShapeError by the next Value call. v must not be nil.
func (g *Growable) Append(v *Array) {
	g.chunks = append(g.chunks, v.Clone().Expand())
	g.settle()
}

// Seed replaces the buffer contents with pre-built chunks.
//
// Each chunk must already carry a leading sample axis. Chunks are referenced,
// not copied; the combined view of a multi-chain trace uses this to alias the
// per-chain arrays.
func (g *Growable) Seed(chunks ...*Array) {
	g.chunks = slices.Clone(chunks)
	g.settle()
}

// Value returns every buffered draw as one contiguous array.
//
// Description:
//
//	If more than one chunk is pending they are concatenated and the buffer
//	keeps only the merged chunk. On a shape mismatch the buffer is left
//	untouched and the error is returned; later reads report it again.
//
// Outputs:
//   - *Array: Array whose leading length equals Len(). Empty() when nothing
//     has been appended.
//   - error: *ShapeError when buffered draws have incompatible shapes.
func (g *Growable) Value() (*Array, error) {
	if g.state == statePending {
		merged, err := Concat(g.chunks...)
		if err != nil {
			return nil, err
		}
		g.chunks = []*Array{merged}
		g.state = stateCompacted
	}
	if len(g.chunks) == 0 {
		return Empty(), nil
	}
	return g.chunks[0], nil
}

// Len returns the total number of buffered draws without compacting.
func (g *Growable) Len() int {
	n := 0
	for _, c := range g.chunks {
		n += c.Len()
	}
	return n
}

// Chunks returns the number of buffered chunks.
func (g *Growable) Chunks() int {
	return len(g.chunks)
}

// Pending reports whether the next Value call will concatenate.
func (g *Growable) Pending() bool {
	return g.state == statePending
}

func (g *Growable) settle() {
	if len(g.chunks) > 1 {
		g.state = statePending
	} else {
		g.state = stateCompacted
	}
}
