// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/funcops/pkg/core/dtypes"
	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/ml/functional"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCombinator(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	initValue := 10.0
	testCases := []struct {
		op, fn string
		dtype  dtypes.DType
		init   *float64
		want   any
	}{
		{"foldl", "add", dtypes.Float32, nil, float32(10)},
		{"foldl", "sub", dtypes.Float64, &initValue, float64(0)},
		{"foldr", "mul", dtypes.Int32, nil, int32(24)},
		{"scan", "max", dtypes.Float32, nil, []float32{1, 2, 3, 4}},
		{"scan", "add", dtypes.Int64, &initValue, []int64{11, 13, 16, 20}},
		{"map", "square", dtypes.Float32, nil, []float32{1, 4, 9, 16}},
		{"map", "neg", dtypes.Int32, nil, []int32{-1, -2, -3, -4}},
	}
	for _, tc := range testCases {
		build, err := newCombinator(tc.op, tc.fn, tc.dtype, tc.init)
		require.NoError(t, err, "%s(%s)", tc.op, tc.fn)
		outputs := must.M1(NewExec(build).Exec(values))
		assert.Equal(t, tc.want, outputs[0].Value(), "%s(%s)", tc.op, tc.fn)
	}

	_, err := newCombinator("reduce", "add", dtypes.Float32, nil)
	require.Error(t, err)
	_, err = newCombinator("map", "add", dtypes.Float32, nil)
	require.Error(t, err)
	_, err = newCombinator("foldl", "square", dtypes.Float32, nil)
	require.Error(t, err)
	_, err = newCombinator("map", "neg", dtypes.Float32, &initValue)
	require.Error(t, err)
}

func TestBenchmark(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	build, err := newCombinator("scan", "add", dtypes.Float32, nil)
	require.NoError(t, err)
	require.NoError(t, benchmark(NewExec(build).SetName("scan"), values, 3))

	// Execution errors are returned, not raised.
	guarded := NewExec(func(x *Node) *Node {
		return functional.Foldl(x, Add).MaxIterations(1).Done()
	}).SetName("guarded")
	err = benchmark(guarded, values, 3)
	require.ErrorIs(t, err, ErrNonTerminationGuard)
}
