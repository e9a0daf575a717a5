// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/core/graph/graphtest"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhile_SimpleCounting(t *testing.T) {
	graphtest.RunTestGraphFn(t, "While: sum 1 to 10",
		func(g *Graph) (inputs, outputs []*Node) {
			// Compute sum 1+2+...+10 = 55
			// State: [counter, sum]
			cond := NewClosure(g, func(g *Graph) []*Node {
				counter := Parameter(g, "counter", shapes.Scalar[int32]())
				_ = Parameter(g, "sum", shapes.Scalar[int32]())
				return []*Node{LessOrEqual(counter, Const(g, int32(10)))}
			})
			body := NewClosure(g, func(g *Graph) []*Node {
				counter := Parameter(g, "counter", shapes.Scalar[int32]())
				sum := Parameter(g, "sum", shapes.Scalar[int32]())
				return []*Node{OnePlus(counter), Add(sum, counter)}
			})
			results := While(cond, body, DefaultLoopConfig(), Const(g, int32(1)), Const(g, int32(0)))
			return nil, results
		},
		[]any{int32(11), int32(55)},
		0,
	)
}

func TestWhile_ZeroIterations(t *testing.T) {
	graphtest.RunTestGraphFn(t, "While: zero iterations",
		func(g *Graph) (inputs, outputs []*Node) {
			results := WhileLoop(g, DefaultLoopConfig(),
				func(state []*Node) *Node { return LessThan(state[0], Const(g, float32(0))) },
				func(state []*Node) []*Node { return []*Node{Neg(state[0])} },
				Const(g, float32(3)))
			return nil, results
		},
		[]any{float32(3)},
		0,
	)
}

func TestWhile_CapturedAndBuffers(t *testing.T) {
	// Doubles each element of x into a new buffer, using captured nodes of the main function.
	exec := NewExec(func(x *Node) *Node {
		g := x.Graph()
		factor := Const(g, float32(2))
		elems := UnpackBuffer(x)
		n := BufferSize(elems)
		out := AllocateBuffer(n, dtypes.Float32, false)
		results := WhileLoop(g, DefaultLoopConfig(),
			func(state []*Node) *Node { return LessThan(state[0], n) },
			func(state []*Node) []*Node {
				i := state[0]
				value := Mul(BufferRead(elems, i), factor)
				return []*Node{OnePlus(i), BufferWrite(state[1], i, value)}
			},
			Const(g, int32(0)), out)
		return BufferPack(results[1])
	})
	outputs, err := exec.Exec([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4, 6, 8}, outputs[0].Value())

	// Different shape builds a new graph.
	outputs, err = exec.Exec([]float32{-1})
	require.NoError(t, err)
	assert.Equal(t, []float32{-2}, outputs[0].Value())
}

func TestWhile_NestedLoops(t *testing.T) {
	// sum_{i<3} sum_{j<4} (i+j) = 4*(0+1+2) + 3*(0+1+2+3) = 12 + 18 = 30
	graphtest.RunTestGraphFn(t, "While: nested",
		func(g *Graph) (inputs, outputs []*Node) {
			config := DefaultLoopConfig()
			results := WhileLoop(g, config,
				func(state []*Node) *Node { return LessThan(state[0], Const(g, int32(3))) },
				func(state []*Node) []*Node {
					i, total := state[0], state[1]
					inner := WhileLoop(g, config,
						func(inner []*Node) *Node { return LessThan(inner[0], Const(g, int32(4))) },
						func(inner []*Node) []*Node {
							j, acc := inner[0], inner[1]
							return []*Node{OnePlus(j), Add(acc, Add(i, j))}
						},
						Const(g, int32(0)), total)
					return []*Node{OnePlus(i), inner[1]}
				},
				Const(g, int32(0)), Const(g, int32(0)))
			return nil, []*Node{results[1]}
		},
		[]any{int32(30)},
		0,
	)
}

func TestWhile_TypeMismatch(t *testing.T) {
	g := NewGraph("mismatch")
	state := Const(g, float32(0))
	scalarF32 := shapes.Scalar[float32]()

	condOK := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{LessThan(x, Const(g, float32(1)))}
	})
	bodyWrongDType := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{ConvertDType(x, dtypes.Int32)}
	})
	err := buildError(func() { While(condOK, bodyWrongDType, DefaultLoopConfig(), state) })
	require.ErrorIs(t, err, ErrTypeMismatch)

	condOK2 := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{LessThan(x, Const(g, float32(1)))}
	})
	bodyWrongArity := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{x, x}
	})
	err = buildError(func() { While(condOK2, bodyWrongArity, DefaultLoopConfig(), state) })
	require.ErrorIs(t, err, ErrTypeMismatch)

	condNotBool := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{x}
	})
	bodyOK := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{OnePlus(x)}
	})
	err = buildError(func() { While(condNotBool, bodyOK, DefaultLoopConfig(), state) })
	require.ErrorIs(t, err, ErrTypeMismatch)

	// Wrong initial state.
	condOK3 := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{LessThan(x, Const(g, float32(1)))}
	})
	bodyOK2 := NewClosure(g, func(g *Graph) []*Node {
		x := Parameter(g, "x", scalarF32)
		return []*Node{OnePlus(x)}
	})
	err = buildError(func() { While(condOK3, bodyOK2, DefaultLoopConfig(), Const(g, int32(0))) })
	require.ErrorIs(t, err, ErrTypeMismatch)

	// Invalid configuration.
	config := DefaultLoopConfig()
	config.ParallelIterations = 0
	err = buildError(func() { While(condOK3, bodyOK2, config, state) })
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTypeMismatch)
}

func TestWhile_MaxIterations(t *testing.T) {
	newExec := func(config LoopConfig) *Exec {
		return NewExec(func(limit *Node) *Node {
			g := limit.Graph()
			results := WhileLoop(g, config,
				func(state []*Node) *Node { return LessThan(state[0], limit) },
				func(state []*Node) []*Node { return []*Node{OnePlus(state[0])} },
				Const(g, int32(0)))
			return results[0]
		})
	}
	config := DefaultLoopConfig()
	config.MaxIterations = 5
	exec := newExec(config)

	// Exactly MaxIterations is fine.
	outputs, err := exec.Exec(int32(5))
	require.NoError(t, err)
	assert.Equal(t, int32(5), outputs[0].Value())

	_, err = exec.Exec(int32(6))
	require.ErrorIs(t, err, ErrNonTerminationGuard)

	// No limit.
	config.MaxIterations = 0
	outputs, err = newExec(config).Exec(int32(1000))
	require.NoError(t, err)
	assert.Equal(t, int32(1000), outputs[0].Value())
}

func TestDefaultLoopConfig(t *testing.T) {
	config := DefaultLoopConfig()
	assert.Equal(t, DefaultParallelIterations, config.ParallelIterations)
	assert.True(t, config.RetainForReverse)
	assert.False(t, config.AllowMemorySpill)
	assert.Zero(t, config.MaxIterations)
	require.NoError(t, config.Validate())

	t.Setenv(ParallelIterationsEnv, "3")
	t.Setenv(MaxIterationsEnv, "100")
	t.Setenv(SpillDirEnv, t.TempDir())
	config = DefaultLoopConfig()
	assert.Equal(t, 3, config.ParallelIterations)
	assert.Equal(t, 100, config.MaxIterations)
	assert.NotEmpty(t, config.SpillDir)

	// Invalid values are ignored.
	t.Setenv(ParallelIterationsEnv, "0")
	t.Setenv(MaxIterationsEnv, "many")
	config = DefaultLoopConfig()
	assert.Equal(t, DefaultParallelIterations, config.ParallelIterations)
	assert.Zero(t, config.MaxIterations)

	assert.Error(t, LoopConfig{ParallelIterations: 1, MaxIterations: -1}.Validate())
}
