// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package seqbuf

import (
	"sync"
	"testing"

	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackPackRoundTrip(t *testing.T) {
	for _, value := range []*tensors.Tensor{
		tensors.FromValue([]int32{1, 2, 3, 4, 5, 6}),
		tensors.FromValue([][]float32{{1, 2}, {3, 4}, {5, 6}}),
		tensors.FromShape(shapes.Make(dtypes.Float64, 0, 4)),
		tensors.FromShape(shapes.Make(dtypes.Int64, 100)), // More than one chunk.
	} {
		b, err := Unpack(value)
		require.NoError(t, err)
		n := must.M1(value.LeadingDimension())
		require.Equal(t, n, b.Size())
		require.Equal(t, n, b.NumWritten())
		packed, err := b.Pack()
		require.NoError(t, err)
		require.Truef(t, value.Equal(packed), "pack(unpack(%s)) returned %s", value, packed)
	}

	_, err := Unpack(tensors.FromScalar(float32(1)))
	require.ErrorIs(t, err, ErrShape)
}

func TestReadWrite(t *testing.T) {
	b, err := Allocate(dtypes.Float32, 3, false)
	require.NoError(t, err)
	_, known := b.ElementShape()
	require.False(t, known)

	b1, err := b.Write(1, tensors.FromScalar(float32(10)))
	require.NoError(t, err)
	require.Equal(t, 1, b1.NumWritten())
	require.False(t, b.IsWritten(1), "original buffer must not be changed by Write")
	require.True(t, b1.IsWritten(1))
	elementShape, known := b1.ElementShape()
	require.True(t, known)
	require.True(t, elementShape.IsScalar())

	value, err := b1.Read(1)
	require.NoError(t, err)
	require.Equal(t, float32(10), tensors.ToScalar[float32](value))

	// Unwritten slot and out of range.
	_, err = b1.Read(0)
	require.ErrorIs(t, err, ErrIndex)
	_, err = b1.Read(3)
	require.ErrorIs(t, err, ErrIndex)
	_, err = b1.Read(-1)
	require.ErrorIs(t, err, ErrIndex)

	// Write errors.
	_, err = b1.Write(3, tensors.FromScalar(float32(1)))
	require.ErrorIs(t, err, ErrIndex)
	_, err = b1.Write(1, tensors.FromScalar(float32(1)))
	require.ErrorIs(t, err, ErrIndex, "slot already written")
	_, err = b1.Write(0, tensors.FromScalar(int32(1)))
	require.ErrorIs(t, err, ErrType)
	_, err = b1.Write(0, tensors.FromValue([]float32{1, 2}))
	require.ErrorIs(t, err, ErrShape)

	// Pack incomplete.
	_, err = b1.Pack()
	require.ErrorIs(t, err, ErrIncomplete)
	b2 := must.M1(b1.Write(0, tensors.FromScalar(float32(0))))
	b3 := must.M1(b2.Write(2, tensors.FromScalar(float32(20))))
	packed, err := b3.Pack()
	require.NoError(t, err)
	require.Equal(t, []float32{0, 10, 20}, packed.Value())

	// Allocation errors.
	_, err = Allocate(dtypes.Float32, -1, false)
	require.ErrorIs(t, err, ErrIndex)
	_, err = Allocate(dtypes.InvalidDType, 1, false)
	require.ErrorIs(t, err, ErrType)
}

func TestNoAliasing(t *testing.T) {
	base := must.M1(Allocate(dtypes.Int32, 40, false))
	base = must.M1(base.Write(33, tensors.FromScalar(int32(33))))

	// Two independent derivations from the same snapshot.
	left := must.M1(base.Write(5, tensors.FromScalar(int32(-1))))
	right := must.M1(base.Write(5, tensors.FromScalar(int32(+1))))
	assert.Equal(t, int32(-1), tensors.ToScalar[int32](must.M1(left.Read(5))))
	assert.Equal(t, int32(+1), tensors.ToScalar[int32](must.M1(right.Read(5))))
	assert.False(t, base.IsWritten(5))

	// Unmodified slots are shared by all snapshots.
	assert.Same(t, must.M1(base.Read(33)), must.M1(left.Read(33)))
	assert.Same(t, must.M1(base.Read(33)), must.M1(right.Read(33)))
}

func TestDynamicSize(t *testing.T) {
	b := must.M1(Allocate(dtypes.Float64, 1, true))
	b = must.M1(b.Write(0, tensors.FromValue([]float64{0, 0})))
	b = must.M1(b.Write(40, tensors.FromValue([]float64{40, 40})))
	require.Equal(t, 41, b.Size())
	require.Equal(t, 2, b.NumWritten())
	_, err := b.Pack()
	require.ErrorIs(t, err, ErrIncomplete)
	_, err = b.Write(-1, tensors.FromValue([]float64{0, 0}))
	require.ErrorIs(t, err, ErrIndex)

	var indices []int
	for ii := range b.Slots() {
		indices = append(indices, ii)
	}
	require.Equal(t, []int{0, 40}, indices)
	require.Equal(t, "SequenceBuffer[(Float64)[2], size=41, written=2, dynamic]", b.String())
}

func TestPackEmpty(t *testing.T) {
	b := must.M1(Allocate(dtypes.Float32, 0, false))
	_, err := b.Pack()
	require.ErrorIs(t, err, ErrIncomplete)

	b = must.M1(AllocateWithShape(shapes.Make(dtypes.Float32, 3), 0, false))
	packed, err := b.Pack()
	require.NoError(t, err)
	require.True(t, packed.Shape().Equal(shapes.Make(dtypes.Float32, 0, 3)))
}

func TestConcurrentReaders(t *testing.T) {
	b := must.M1(Unpack(tensors.FromValue([]int64{0, 1, 2, 3, 4, 5, 6, 7})))
	var wg sync.WaitGroup
	results := make([]*Buffer, 8)
	for ii := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value := must.M1(b.Read(ii))
			out := must.M1(Allocate(dtypes.Int64, 8, false))
			results[ii] = must.M1(out.Write(ii, value))
		}()
	}
	wg.Wait()
	for ii, out := range results {
		require.Equal(t, 1, out.NumWritten())
		require.Equal(t, int64(ii), tensors.ToScalar[int64](must.M1(out.Read(ii))))
	}
}

func TestErrorsAreDistinct(t *testing.T) {
	for _, err := range []error{ErrType, ErrShape, ErrIncomplete} {
		require.False(t, errors.Is(err, ErrIndex))
	}
}
