// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sample provides the array storage used to accumulate MCMC draws.
//
// An Array is a dense, row-major float64 array with an explicit shape. When an
// Array holds several draws of one variable, axis 0 is the sample axis and the
// remaining dimensions are the per-draw value shape (the "trailing shape").
//
// Growable is the append-only per-variable buffer that a chain trace writes
// into once per recorded point. It defers concatenation until the value is
// read, so a long sampling loop pays for one merge per read instead of one
// reallocation per draw.
package sample

import (
	"errors"
	"fmt"
	"slices"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrShapeData indicates the data length does not match the shape.
	ErrShapeData = errors.New("data length does not match shape")

	// ErrNegativeDim indicates a shape with a negative dimension.
	ErrNegativeDim = errors.New("negative dimension in shape")

	// ErrIndexOutOfRange indicates a leading-axis index outside the array.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNoLeadingAxis indicates a 0-d array was indexed along axis 0.
	ErrNoLeadingAxis = errors.New("array has no leading axis")

	// ErrNilArray indicates a nil *Array was passed where a value is required.
	ErrNilArray = errors.New("nil array")
)

// ShapeError reports chunks that cannot be concatenated along axis 0.
//
// It is returned lazily: appends never validate shapes, so a mismatched draw
// surfaces only when a read forces the buffer to compact.
type ShapeError struct {
	// Index is the position of the offending part in the concatenation.
	Index int

	// Want is the trailing shape established by the first non-empty part.
	Want []int

	// Got is the full shape of the offending part.
	Got []int
}

// Error implements error.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("cannot concatenate part %d: shape %v is incompatible with trailing shape %v",
		e.Index, e.Got, e.Want)
}

// -----------------------------------------------------------------------------
// Array
// -----------------------------------------------------------------------------

// Array is a dense row-major float64 array.
//
// Arrays returned by At, Slice and Expand share memory with their source.
// Callers must treat the result of Data as read-only.
//
// Thread Safety: Immutable by convention; safe for concurrent reads.
type Array struct {
	shape []int
	data  []float64
}

// New creates an Array from a shape and its row-major data.
//
// Description:
//
//	The data slice is owned by the returned Array and is not copied.
//
// Inputs:
//   - shape: Dimensions. An empty shape describes a scalar.
//   - data: Row-major values. Length must equal the product of shape.
//
// Outputs:
//   - *Array: The array. Nil on error.
//   - error: ErrNegativeDim or ErrShapeData when the inputs disagree.
func New(shape []int, data []float64) (*Array, error) {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: %v", ErrNegativeDim, shape)
		}
		size *= d
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: shape %v wants %d values, got %d", ErrShapeData, shape, size, len(data))
	}
	return &Array{shape: slices.Clone(shape), data: data}, nil
}

// MustNew is like New but panics on error. Intended for literals and tests.
func MustNew(shape []int, data []float64) *Array {
	a, err := New(shape, data)
	if err != nil {
		panic(err)
	}
	return a
}

// Scalar returns a 0-d array holding v.
func Scalar(v float64) *Array {
	return &Array{shape: []int{}, data: []float64{v}}
}

// Vector returns a 1-d array holding a copy of vs.
func Vector(vs ...float64) *Array {
	return &Array{shape: []int{len(vs)}, data: slices.Clone(vs)}
}

// Empty returns a 1-d array with zero rows.
func Empty() *Array {
	return &Array{shape: []int{0}}
}

// Shape returns a copy of the array's dimensions.
func (a *Array) Shape() []int {
	return slices.Clone(a.shape)
}

// Ndim returns the number of dimensions.
func (a *Array) Ndim() int {
	return len(a.shape)
}

// Len returns the length of the leading axis, or 0 for a scalar.
func (a *Array) Len() int {
	if len(a.shape) == 0 {
		return 0
	}
	return a.shape[0]
}

// Size returns the total number of elements.
func (a *Array) Size() int {
	return len(a.data)
}

// Trailing returns the dimensions after the leading axis.
func (a *Array) Trailing() []int {
	if len(a.shape) == 0 {
		return nil
	}
	return slices.Clone(a.shape[1:])
}

// TrailingSize returns the number of elements in one leading-axis row.
func (a *Array) TrailingSize() int {
	n := 1
	if len(a.shape) > 1 {
		for _, d := range a.shape[1:] {
			n *= d
		}
	}
	return n
}

// Data returns the underlying row-major values. Do not modify.
func (a *Array) Data() []float64 {
	return a.data
}

// At returns the sub-array at leading index i.
//
// Description:
//
//	Negative indexes count back from the end, so At(-1) is the last row.
//	The result shares memory with a.
//
// Outputs:
//   - *Array: Array of shape Trailing().
//   - error: ErrNoLeadingAxis for scalars, ErrIndexOutOfRange otherwise.
func (a *Array) At(i int) (*Array, error) {
	if len(a.shape) == 0 {
		return nil, ErrNoLeadingAxis
	}
	n := a.shape[0]
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: %d with length %d", ErrIndexOutOfRange, i, n)
	}
	ts := a.TrailingSize()
	return &Array{shape: slices.Clone(a.shape[1:]), data: a.data[i*ts : (i+1)*ts]}, nil
}

// Slice returns rows [start, end) of the leading axis.
//
// Description:
//
//	Bounds follow slice-expression conventions of dynamic array libraries:
//	negative values count from the end and out-of-range bounds are clamped,
//	so Slice(1000, Len()) of a 500-row array is an empty array rather than
//	an error. The result shares memory with a.
//
// Outputs:
//   - *Array: The selected rows.
//   - error: ErrNoLeadingAxis for scalars.
func (a *Array) Slice(start, end int) (*Array, error) {
	if len(a.shape) == 0 {
		return nil, ErrNoLeadingAxis
	}
	n := a.shape[0]
	start, end = clampRange(start, end, n)
	ts := a.TrailingSize()
	shape := slices.Clone(a.shape)
	shape[0] = end - start
	return &Array{shape: shape, data: a.data[start*ts : end*ts]}, nil
}

// From returns rows [start, Len()).
func (a *Array) From(start int) (*Array, error) {
	return a.Slice(start, a.Len())
}

// Column returns the Len() values of flattened trailing element j.
//
// The returned slice is a fresh copy.
func (a *Array) Column(j int) ([]float64, error) {
	if len(a.shape) == 0 {
		return nil, ErrNoLeadingAxis
	}
	ts := a.TrailingSize()
	if j < 0 || j >= ts {
		return nil, fmt.Errorf("%w: column %d of %d", ErrIndexOutOfRange, j, ts)
	}
	n := a.shape[0]
	col := make([]float64, n)
	for i := 0; i < n; i++ {
		col[i] = a.data[i*ts+j]
	}
	return col, nil
}

// Expand returns a view of a with a new leading axis of length 1.
func (a *Array) Expand() *Array {
	shape := make([]int, 0, len(a.shape)+1)
	shape = append(shape, 1)
	shape = append(shape, a.shape...)
	return &Array{shape: shape, data: a.data}
}

// Clone returns a deep copy of a.
func (a *Array) Clone() *Array {
	return &Array{shape: slices.Clone(a.shape), data: slices.Clone(a.data)}
}

// Float32 returns a copy of a with every value rounded to single precision.
func (a *Array) Float32() *Array {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = float64(float32(v))
	}
	return &Array{shape: slices.Clone(a.shape), data: data}
}

// Equal reports whether a and b have the same shape and values.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.shape, b.shape) && slices.Equal(a.data, b.data)
}

// String implements fmt.Stringer.
func (a *Array) String() string {
	if len(a.shape) == 0 {
		return fmt.Sprintf("%g", a.data[0])
	}
	return fmt.Sprintf("Array%v%v", a.shape, a.data)
}

// Concat joins parts along the leading axis.
//
// Description:
//
//	Zero-row parts contribute nothing and are not shape-checked, so an
//	empty chain can be combined with populated ones. Every other part must
//	share the trailing shape of the first non-empty part.
//
// Inputs:
//   - parts: Arrays with at least one dimension. Must not be nil.
//
// Outputs:
//   - *Array: A new array owning freshly allocated data.
//   - error: *ShapeError on trailing-shape mismatch or a 0-d part;
//     ErrNilArray for nil parts.
func Concat(parts ...*Array) (*Array, error) {
	var ref *Array
	rows, size := 0, 0
	for i, p := range parts {
		if p == nil {
			return nil, fmt.Errorf("%w: part %d", ErrNilArray, i)
		}
		if len(p.shape) == 0 {
			var want []int
			if ref != nil {
				want = ref.Trailing()
			}
			return nil, &ShapeError{Index: i, Want: want, Got: p.Shape()}
		}
		if p.shape[0] == 0 {
			continue
		}
		if ref == nil {
			ref = p
		} else if !slices.Equal(p.shape[1:], ref.shape[1:]) {
			return nil, &ShapeError{Index: i, Want: ref.Trailing(), Got: p.Shape()}
		}
		rows += p.shape[0]
		size += len(p.data)
	}
	if ref == nil {
		if len(parts) == 0 {
			return Empty(), nil
		}
		return &Array{shape: slices.Clone(parts[0].shape)}, nil
	}

	data := make([]float64, 0, size)
	for _, p := range parts {
		data = append(data, p.data...)
	}
	shape := make([]int, 0, len(ref.shape))
	shape = append(shape, rows)
	shape = append(shape, ref.shape[1:]...)
	return &Array{shape: shape, data: data}, nil
}

// clampRange normalises [start, end) against length n.
func clampRange(start, end, n int) (int, int) {
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	start = max(0, min(start, n))
	end = max(0, min(end, n))
	if end < start {
		end = start
	}
	return start, end
}
