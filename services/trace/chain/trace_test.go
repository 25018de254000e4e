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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/chainstat/services/trace/sample"
)

// newAB returns a trace over scalar "a" and vector "b" with n draws where
// draw i is a=i, b=[i, -i].
func newAB(t *testing.T, n int, opts ...Option) *Trace {
	t.Helper()
	tr, err := New(Names("a", "b"), Direct, opts...)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := tr.Record(Point{
			"a": sample.Scalar(float64(i)),
			"b": sample.Vector(float64(i), float64(-i)),
		})
		require.NoError(t, err)
	}
	return tr
}

func TestNew(t *testing.T) {
	t.Run("duplicate names rejected", func(t *testing.T) {
		_, err := New(Names("x", "x"), Direct)
		assert.ErrorIs(t, err, ErrDuplicateVariable)
	})

	t.Run("nil compiler rejected", func(t *testing.T) {
		_, err := New(Names("x"), nil)
		assert.ErrorIs(t, err, ErrNilCompiler)
	})

	t.Run("compiler error wrapped", func(t *testing.T) {
		boom := errors.New("cannot compile")
		_, err := New(Names("x"), func([]Variable) (EvalFunc, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty trace", func(t *testing.T) {
		tr, err := New(Names("x", "y"), Direct)
		require.NoError(t, err)
		assert.Equal(t, 0, tr.Len())
		assert.Equal(t, []string{"x", "y"}, tr.VarNames())
		assert.False(t, tr.ReadOnly())

		v, err := tr.ByName("x")
		require.NoError(t, err)
		assert.Equal(t, 0, v.Len())
	})
}

func TestRecord_PointEquality(t *testing.T) {
	tr := newAB(t, 5)
	require.Equal(t, 5, tr.Len())

	for i := 0; i < 5; i++ {
		p, err := tr.Point(i)
		require.NoError(t, err)
		assert.True(t, p["a"].Equal(sample.Scalar(float64(i))), "a at %d = %v", i, p["a"])
		assert.True(t, p["b"].Equal(sample.Vector(float64(i), float64(-i))), "b at %d = %v", i, p["b"])
	}

	last, err := tr.Point(-1)
	require.NoError(t, err)
	assert.True(t, last["a"].Equal(sample.Scalar(4)))

	a, err := tr.ByName("a")
	require.NoError(t, err)
	assert.Equal(t, []int{5}, a.Shape())
	b, err := tr.ByName("b")
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2}, b.Shape())
}

func TestRecord_Chaining(t *testing.T) {
	tr, err := New(Names("x"), Direct)
	require.NoError(t, err)

	_, err = tr.Record(Point{"x": sample.Scalar(1)})
	require.NoError(t, err)
	same, err := tr.Record(Point{"x": sample.Scalar(2)})
	require.NoError(t, err)
	assert.Same(t, tr, same)
	assert.Equal(t, 2, tr.Len())
}

func TestRecord_AtomicOnFailure(t *testing.T) {
	tr := newAB(t, 2)

	_, err := tr.Record(Point{"a": sample.Scalar(9)})
	require.ErrorIs(t, err, ErrMissingValue)
	assert.Equal(t, 2, tr.Len(), "failed record must not append")

	short := func([]Variable) (EvalFunc, error) {
		return func(Point) ([]*sample.Array, error) {
			return []*sample.Array{sample.Scalar(1)}, nil
		}, nil
	}
	tr2, err := New(Names("a", "b"), short)
	require.NoError(t, err)
	_, err = tr2.Record(Point{})
	assert.ErrorIs(t, err, ErrValueCount)
	assert.Equal(t, 0, tr2.Len())
}

func TestRecord_EvaluatesOnce(t *testing.T) {
	calls := 0
	counting := func(vars []Variable) (EvalFunc, error) {
		eval, _ := Direct(vars)
		return func(p Point) ([]*sample.Array, error) {
			calls++
			return eval(p)
		}, nil
	}
	tr, err := New(Names("a", "b", "c"), counting)
	require.NoError(t, err)
	_, err = tr.Record(Point{"a": sample.Scalar(1), "b": sample.Scalar(2), "c": sample.Scalar(3)})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRecord_CopiesValues(t *testing.T) {
	tr, err := New(Names("v"), Direct)
	require.NoError(t, err)

	v := sample.Vector(1, 2)
	_, err = tr.Record(Point{"v": v})
	require.NoError(t, err)
	v.Data()[0] = 100

	got, err := tr.ByName("v")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, got.Data())
}

func TestRecord_Float32Precision(t *testing.T) {
	tr, err := New(Names("x"), Direct, WithPrecision(Float32))
	require.NoError(t, err)
	_, err = tr.Record(Point{"x": sample.Scalar(0.1)})
	require.NoError(t, err)

	x, err := tr.ByName("x")
	require.NoError(t, err)
	assert.Equal(t, float64(float32(0.1)), x.Data()[0])
	assert.NotEqual(t, 0.1, x.Data()[0])
}

func TestRecord_LazyShapeError(t *testing.T) {
	tr, err := New(Names("ok", "bad"), Direct)
	require.NoError(t, err)

	_, err = tr.Record(Point{"ok": sample.Scalar(1), "bad": sample.Vector(1, 2)})
	require.NoError(t, err)
	_, err = tr.Record(Point{"ok": sample.Scalar(2), "bad": sample.Vector(1, 2, 3)})
	require.NoError(t, err, "shapes are not validated on record")

	_, err = tr.ByName("bad")
	var shapeErr *sample.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, 1, shapeErr.Index)

	ok, err := tr.ByName("ok")
	require.NoError(t, err)
	assert.Equal(t, 2, ok.Len())
}

func TestRecord_ReadOnlyView(t *testing.T) {
	view, err := newAB(t, 3).From(1)
	require.NoError(t, err)
	assert.True(t, view.ReadOnly())
	assert.Equal(t, 2, view.Len())

	_, err = view.Record(Point{"a": sample.Scalar(0), "b": sample.Vector(0, 0)})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestByName_Unknown(t *testing.T) {
	_, err := newAB(t, 1).ByName("nope")
	assert.ErrorIs(t, err, ErrUnknownVariable)
}

func TestPoint_OutOfRange(t *testing.T) {
	tr := newAB(t, 3)
	for _, i := range []int{3, 100, -4} {
		_, err := tr.Point(i)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", i)
	}
}

func TestByRange(t *testing.T) {
	tr := newAB(t, 10)

	tests := []struct {
		name       string
		start, end int
		want       []float64
	}{
		{"middle", 2, 5, []float64{2, 3, 4}},
		{"burn-in past end", 1000, 10, []float64{}},
		{"negative start", -2, 10, []float64{8, 9}},
		{"clamped end", 8, 1 << 30, []float64{8, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tr.ByRange(tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), p["a"].Len())
			assert.Equal(t, tt.want, append([]float64{}, p["a"].Data()...))
			assert.Equal(t, []int{len(tt.want), 2}, p["b"].Shape())
		})
	}
}

func TestTrace_ConcurrentReadersSeeWholeDraws(t *testing.T) {
	tr, err := New(Names("a", "b"), Direct)
	require.NoError(t, err)

	const draws = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < draws; i++ {
			_, _ = tr.Record(Point{"a": sample.Scalar(float64(i)), "b": sample.Scalar(float64(i))})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				p, err := tr.ByRange(0, 1<<30)
				if err != nil {
					t.Errorf("ByRange: %v", err)
					return
				}
				if p["a"].Len() != p["b"].Len() {
					t.Errorf("partial draw observed: a=%d b=%d", p["a"].Len(), p["b"].Len())
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, draws, tr.Len())
}

func TestParsePrecision(t *testing.T) {
	p, err := ParsePrecision("float32")
	require.NoError(t, err)
	assert.Equal(t, Float32, p)

	p, err = ParsePrecision("")
	require.NoError(t, err)
	assert.Equal(t, Float64, p)

	_, err = ParsePrecision("float16")
	assert.ErrorIs(t, err, ErrUnknownPrecision)
}
