// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// powerExec builds a loop that computes x^3 by repeated multiplication, with state [i, acc] and x captured
// by the body.
func powerExec(config LoopConfig) *Exec {
	return NewExec(func(x *Node) *Node {
		g := x.Graph()
		results := WhileLoop(g, config,
			func(state []*Node) *Node { return LessThan(state[0], Const(g, int32(3))) },
			func(state []*Node) []*Node {
				return []*Node{OnePlus(state[0]), Mul(state[1], x)}
			},
			Const(g, int32(0)), Const(g, float64(1)))
		return results[1]
	})
}

func TestLoopTrace(t *testing.T) {
	outputs, traces, err := powerExec(DefaultLoopConfig()).ExecWithTraces(float64(2))
	require.NoError(t, err)
	require.Len(t, traces, 1)
	trace := traces[0]
	defer trace.Release()
	assert.Equal(t, float64(8), outputs[0].Value())
	assert.Equal(t, 3, trace.NumIterations())
	assert.Contains(t, trace.Name(), "While#")
	assert.NotEmpty(t, trace.String())
	assert.Zero(t, trace.SpilledBytes())
	assert.Positive(t, trace.Memory())
	assert.Zero(t, trace.PeakInFlight(), "nothing is spilled, so no iteration runs in parallel")
	assert.Zero(t, trace.SpilledFiles())
	require.Len(t, trace.Captured(), 1)
	assert.Equal(t, float64(2), trace.CapturedValues()[0].(*tensors.Tensor).Value())

	for k := range trace.NumIterations() {
		inputs, err := trace.Inputs(k)
		require.NoError(t, err)
		assert.Equal(t, int32(k), inputs[0].(*tensors.Tensor).Value())

		recorded, err := trace.Outputs(k)
		require.NoError(t, err)
		replayed, err := trace.Replay(k)
		require.NoError(t, err)
		require.Len(t, replayed, len(recorded))
		for ii := range recorded {
			assert.True(t, recorded[ii].(*tensors.Tensor).Equal(replayed[ii].(*tensors.Tensor)),
				"iteration %d, state #%d: replayed %s != recorded %s", k, ii, replayed[ii], recorded[ii])
		}
	}

	_, err = trace.Inputs(3)
	require.ErrorIs(t, err, ErrIndex)
	_, err = trace.Replay(-1)
	require.ErrorIs(t, err, ErrIndex)

	trace.Release()
	_, err = trace.Inputs(0)
	require.Error(t, err)
}

func TestLoopTrace_NotRetained(t *testing.T) {
	config := DefaultLoopConfig()
	config.RetainForReverse = false
	outputs, traces, err := powerExec(config).ExecWithTraces(float64(3))
	require.NoError(t, err)
	assert.Empty(t, traces)
	assert.Equal(t, float64(27), outputs[0].Value())
}

func TestLoopTrace_Spill(t *testing.T) {
	spillDir := t.TempDir()
	config := DefaultLoopConfig()
	config.AllowMemorySpill = true
	config.ParallelIterations = 2
	config.SpillDir = spillDir

	outputs, traces, err := powerExec(config).ExecWithTraces(float64(2))
	require.NoError(t, err)
	assert.Equal(t, float64(8), outputs[0].Value())
	require.Len(t, traces, 1)
	trace := traces[0]
	assert.Positive(t, trace.SpilledBytes())
	assert.Zero(t, trace.Memory())
	assert.LessOrEqual(t, trace.PeakInFlight(), 2)
	assert.GreaterOrEqual(t, trace.PeakInFlight(), 1)

	// Same values as without spilling.
	_, memTraces, err := powerExec(DefaultLoopConfig()).ExecWithTraces(float64(2))
	require.NoError(t, err)
	memTrace := memTraces[0]
	defer memTrace.Release()
	for k := range trace.NumIterations() {
		spilled, err := trace.Outputs(k)
		require.NoError(t, err)
		inMemory, err := memTrace.Outputs(k)
		require.NoError(t, err)
		for ii := range spilled {
			assert.True(t, spilled[ii].(*tensors.Tensor).Equal(inMemory[ii].(*tensors.Tensor)))
		}
		replayed, err := trace.Replay(k)
		require.NoError(t, err)
		assert.True(t, replayed[1].(*tensors.Tensor).Equal(spilled[1].(*tensors.Tensor)))
	}

	entries, err := os.ReadDir(spillDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	files, err := os.ReadDir(filepath.Join(spillDir, entries[0].Name()))
	require.NoError(t, err)
	// 2 state values: the initial state plus the outputs of each iteration, shared with the inputs of the next.
	wantFiles := 2 * (trace.NumIterations() + 1)
	assert.Len(t, files, wantFiles)
	assert.Equal(t, wantFiles, trace.SpilledFiles())
	assert.Equal(t, uint64(wantFiles/2*(4+8)), trace.SpilledBytes()) // int32 counter and float64 accumulator.

	trace.Release()
	entries, err = os.ReadDir(spillDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoopTrace_Reverse(t *testing.T) {
	_, traces, err := powerExec(DefaultLoopConfig()).ExecWithTraces(float64(2))
	require.NoError(t, err)
	trace := traces[0]
	defer trace.Release()
	x := tensors.ToScalar[float64](trace.CapturedValues()[0].(*tensors.Tensor))

	// acc' = acc * x: d(acc')/d(acc) = x, d(acc')/dx = acc.
	vjp := func(iteration int, inputs, outputs []any, outputGrads []*tensors.Tensor) (
		inputGrads, capturedGrads []*tensors.Tensor, err error) {
		acc := tensors.ToScalar[float64](inputs[1].(*tensors.Tensor))
		gradAcc := tensors.ToScalar[float64](outputGrads[1])
		inputGrads = []*tensors.Tensor{nil, tensors.FromScalar(gradAcc * x)}
		capturedGrads = []*tensors.Tensor{tensors.FromScalar(gradAcc * acc)}
		return
	}
	result, err := trace.Reverse([]*tensors.Tensor{nil, tensors.FromScalar(1.0)}, vjp)
	require.NoError(t, err)
	require.Len(t, result.StateGrads, 2)
	assert.Nil(t, result.StateGrads[0])
	assert.Equal(t, float64(8), result.StateGrads[1].Value())  // d(x^3)/d(acc0) = x^3
	assert.Equal(t, float64(12), result.CapturedGrads[0].Value()) // d(x^3)/dx = 3x^2

	_, err = trace.Reverse([]*tensors.Tensor{tensors.FromScalar(1.0)}, vjp)
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = trace.Reverse([]*tensors.Tensor{nil, tensors.FromScalar(1.0)}, nil)
	require.Error(t, err)
}
