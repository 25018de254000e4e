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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid shape", func(t *testing.T) {
		a, err := New([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, a.Shape())
		assert.Equal(t, 2, a.Len())
		assert.Equal(t, 6, a.Size())
		assert.Equal(t, []int{3}, a.Trailing())
		assert.Equal(t, 3, a.TrailingSize())
	})

	t.Run("data length mismatch", func(t *testing.T) {
		_, err := New([]int{2, 2}, []float64{1, 2, 3})
		assert.ErrorIs(t, err, ErrShapeData)
	})

	t.Run("negative dimension", func(t *testing.T) {
		_, err := New([]int{-1}, nil)
		assert.ErrorIs(t, err, ErrNegativeDim)
	})

	t.Run("scalar", func(t *testing.T) {
		s := Scalar(4.5)
		assert.Equal(t, 0, s.Ndim())
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, 1, s.TrailingSize())
		_, err := s.At(0)
		assert.ErrorIs(t, err, ErrNoLeadingAxis)
	})
}

func TestArray_At(t *testing.T) {
	a := MustNew([]int{3, 2}, []float64{1, 2, 3, 4, 5, 6})

	row, err := a.At(1)
	require.NoError(t, err)
	assert.True(t, row.Equal(Vector(3, 4)))

	last, err := a.At(-1)
	require.NoError(t, err)
	assert.True(t, last.Equal(Vector(5, 6)))

	_, err = a.At(3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = a.At(-4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestArray_Slice(t *testing.T) {
	a := Vector(0, 1, 2, 3, 4)

	tests := []struct {
		name       string
		start, end int
		want       []float64
	}{
		{"middle", 1, 3, []float64{1, 2}},
		{"negative start", -2, 5, []float64{3, 4}},
		{"clamped end", 3, 100, []float64{3, 4}},
		{"start beyond length", 10, 20, []float64{}},
		{"inverted", 4, 2, []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Slice(tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), got.Len())
			assert.ElementsMatch(t, tt.want, got.Data())
		})
	}
}

func TestArray_Column(t *testing.T) {
	a := MustNew([]int{3, 2}, []float64{1, 10, 2, 20, 3, 30})

	col, err := a.Column(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, col)

	col[0] = 99
	assert.Equal(t, 10.0, a.Data()[1], "column must be a copy")

	_, err = a.Column(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestArray_Float32(t *testing.T) {
	a := Vector(0.1)
	f := a.Float32()
	assert.Equal(t, float64(float32(0.1)), f.Data()[0])
	assert.Equal(t, 0.1, a.Data()[0])
}

func TestConcat(t *testing.T) {
	t.Run("matching trailing shapes", func(t *testing.T) {
		a := MustNew([]int{1, 2}, []float64{1, 2})
		b := MustNew([]int{2, 2}, []float64{3, 4, 5, 6})

		got, err := Concat(a, b)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 2}, got.Shape())
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, got.Data())
	})

	t.Run("mismatched trailing shapes", func(t *testing.T) {
		a := MustNew([]int{1, 2}, []float64{1, 2})
		b := MustNew([]int{1, 3}, []float64{3, 4, 5})

		_, err := Concat(a, b)
		var shapeErr *ShapeError
		require.ErrorAs(t, err, &shapeErr)
		assert.Equal(t, 1, shapeErr.Index)
		assert.Equal(t, []int{2}, shapeErr.Want)
		assert.Equal(t, []int{1, 3}, shapeErr.Got)
	})

	t.Run("empty parts are skipped", func(t *testing.T) {
		b := MustNew([]int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

		got, err := Concat(Empty(), b, Empty())
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, got.Shape())
	})

	t.Run("scalar part", func(t *testing.T) {
		_, err := Concat(Vector(1), Scalar(2))
		var shapeErr *ShapeError
		assert.ErrorAs(t, err, &shapeErr)
	})

	t.Run("nil part", func(t *testing.T) {
		_, err := Concat(Vector(1), nil)
		assert.ErrorIs(t, err, ErrNilArray)
	})

	t.Run("no parts", func(t *testing.T) {
		got, err := Concat()
		require.NoError(t, err)
		assert.Equal(t, 0, got.Len())
	})
}
