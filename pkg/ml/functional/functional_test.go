// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package functional_test

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/core/graph/graphtest"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/ml/functional"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixValues = []float32{1, 2, 3, 4, 5, 6}

func TestCombinators(t *testing.T) {
	graphtest.RunTestGraphFn(t, "foldl, foldr, map and scan", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, sixValues)
		inputs = []*Node{x}
		outputs = []*Node{
			functional.Foldl(x, Add).Done(),
			functional.Foldr(x, Add).Done(),
			functional.Map(x, Square).Done(),
			functional.Scan(x, Add).Done(),
		}
		return
	}, []any{
		float32(21),
		float32(21),
		[]float32{1, 4, 9, 16, 25, 36},
		[]float32{1, 3, 6, 10, 15, 21},
	}, 0)

	graphtest.RunTestGraphFn(t, "with initializer", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, []int32{1, 2, 3, 4})
		inputs = []*Node{x}
		outputs = []*Node{
			functional.Foldl(x, Add).Initializer(int32(100)).Done(),
			functional.Foldr(x, Mul).Initializer(Const(g, int32(2))).Done(),
			functional.Scan(x, Add).Initializer(int32(10)).Done(),
		}
		return
	}, []any{
		int32(110),
		int32(48),
		[]int32{11, 13, 16, 20},
	}, 0)

	graphtest.RunTestGraphFn(t, "accumulator shape different from elements", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, []float64{1, 2, 3})
		inputs = []*Node{x}
		init := Const(g, []float64{0, 10})
		outputs = []*Node{
			functional.Foldl(x, Add).Initializer(init).Done(),
			functional.Scan(x, Add).Initializer(init).Done(),
		}
		return
	}, []any{
		[]float64{6, 16},
		[][]float64{{1, 11}, {3, 13}, {6, 16}},
	}, 0)
}

func TestOrderSensitivity(t *testing.T) {
	// a - e is neither commutative nor associative.
	graphtest.RunTestGraphFn(t, "non-commutative fn", func(g *Graph) (inputs, outputs []*Node) {
		x := Const(g, []int32{1, 2, 3})
		inputs = []*Node{x}
		outputs = []*Node{
			functional.Foldl(x, Sub).Done(),
			functional.Foldr(x, Sub).Done(),
			functional.Scan(x, Sub).Done(),
		}
		return
	}, []any{
		int32(-4), // (1-2)-3
		int32(0),  // (3-2)-1
		[]int32{1, -1, -4},
	}, 0)
}

func TestScanLastIsFoldl(t *testing.T) {
	fn := func(acc, elem *Node) *Node {
		return Add(Mul(acc, Const(acc.Graph(), float64(0.5))), Square(elem))
	}
	exec := NewExec(func(x *Node) (*Node, *Node) {
		return functional.Scan(x, fn).Done(), functional.Foldl(x, fn).Done()
	})
	for _, values := range [][]float64{{3}, {1, -2}, {0.5, 7, -3, 2, 11}} {
		outputs := must.M1(exec.Exec(values))
		scanned := outputs[0].Value().([]float64)
		require.Len(t, scanned, len(values))
		assert.InDelta(t, outputs[1].Value().(float64), scanned[len(scanned)-1], 1e-9)
	}
}

func TestMap(t *testing.T) {
	exec := NewExec(func(x *Node) (*Node, *Node) {
		return functional.Map(x, Identity).Done(), functional.Map(x, Neg).Done()
	})
	x := [][]float32{{1, 2}, {3, 4}, {5, 6}}
	outputs := must.M1(exec.Exec(x))
	assert.Equal(t, x, outputs[0].Value())
	assert.Equal(t, [][]float32{{-1, -2}, {-3, -4}, {-5, -6}}, outputs[1].Value())

	// Output dtype different from the input.
	toFloat64 := NewExec(func(x *Node) *Node {
		return functional.Map(x, func(e *Node) *Node {
			return ConvertDType(Square(e), dtypes.Float64)
		}).DType(dtypes.Float64).Done()
	})
	outputs = must.M1(toFloat64.Exec([]int32{1, 2, 3}))
	assert.Equal(t, []float64{1, 4, 9}, outputs[0].Value())

	// Without setting the dtype, the output must match the input dtype.
	mismatch := NewExec(func(x *Node) *Node {
		return functional.Map(x, func(e *Node) *Node { return ConvertDType(e, dtypes.Float64) }).Done()
	})
	_, err := mismatch.Exec([]int32{1, 2, 3})
	require.ErrorIs(t, err, ErrType)

	// Nested combinators: sum of each row.
	rowSums := NewExec(func(x *Node) *Node {
		return functional.Map(x, func(row *Node) *Node { return functional.Foldl(row, Add).Done() }).Done()
	})
	outputs = must.M1(rowSums.Exec([][]int32{{1, 2, 3}, {4, 5, 6}}))
	assert.Equal(t, []int32{6, 15}, outputs[0].Value())
}

func TestEmptyInput(t *testing.T) {
	emptyShape := shapes.Make(dtypes.Float32, 0)
	for _, combinator := range []func(x *Node) *Node{
		func(x *Node) *Node { return functional.Foldl(x, Add).Done() },
		func(x *Node) *Node { return functional.Foldr(x, Add).Done() },
		func(x *Node) *Node { return functional.Scan(x, Add).Done() },
	} {
		g := NewGraph("empty")
		x := Parameter(g, "x", emptyShape)
		err := exceptions.TryCatch[error](func() { combinator(x) })
		require.ErrorIs(t, err, ErrIndex)
	}

	// With an initializer empty inputs are fine.
	exec := NewExec(func(x *Node) []*Node {
		g := x.Graph()
		init := Const(g, float32(7))
		return []*Node{
			functional.Foldl(x, Add).Initializer(init).Done(),
			functional.Foldr(x, Add).Initializer(init).Done(),
			functional.Scan(x, Add).Initializer(init).Done(),
			functional.Map(x, Square).Done(),
		}
	})
	outputs := must.M1(exec.Exec(tensors.FromShape(emptyShape)))
	assert.Equal(t, float32(7), outputs[0].Value())
	assert.Equal(t, float32(7), outputs[1].Value())
	assert.True(t, outputs[2].Shape().Equal(emptyShape))
	assert.True(t, outputs[3].Shape().Equal(emptyShape))
}

func TestNotCallable(t *testing.T) {
	g := NewGraph("not_callable")
	x := Const(g, sixValues)
	numNodes := len(g.Nodes())
	for _, fn := range []func(){
		func() { functional.Foldl(x, nil) },
		func() { functional.Foldr(x, nil) },
		func() { functional.Scan(x, nil) },
		func() { functional.Map(x, nil) },
	} {
		err := exceptions.TryCatch[error](fn)
		require.ErrorIs(t, err, functional.ErrNotCallable)
	}
	assert.Len(t, g.Nodes(), numNodes, "no nodes should be created")
}

func TestNameScopes(t *testing.T) {
	g := NewGraph("scopes")
	x := Const(g, sixValues)
	_ = functional.Foldl(x, Add).Done()
	_ = functional.Foldl(x, Add).Done()
	_ = functional.Scan(x, Add).Name("running_sum").Done()

	var whileScopes []string
	for _, node := range g.Nodes() {
		if node.Type() == NodeTypeWhile {
			whileScopes = append(whileScopes, node.Scope())
		}
	}
	assert.Equal(t, []string{"foldl", "foldl_1", "running_sum"}, whileScopes)
	assert.Equal(t, "", g.Scope())

	require.Panics(t, func() { functional.Foldl(x, Add).DType(dtypes.Float64) })
	require.Panics(t, func() { functional.Map(x, Neg).Initializer(float32(0)) })
}

func TestLoopSettings(t *testing.T) {
	t.Setenv(SpillDirEnv, t.TempDir())
	values := []float64{1.5, -2, 3.25, 4, 0.5, 6, -7, 8, 9, 10, 11, 12}
	var results [][]float64
	for _, settings := range []func(c *functional.Config) *functional.Config{
		func(c *functional.Config) *functional.Config { return c },
		func(c *functional.Config) *functional.Config { return c.ParallelIterations(1) },
		func(c *functional.Config) *functional.Config { return c.ParallelIterations(10).SwapMemory(true) },
		func(c *functional.Config) *functional.Config { return c.BackProp(false) },
	} {
		exec := NewExec(func(x *Node) *Node {
			return settings(functional.Scan(x, func(acc, e *Node) *Node { return Add(Mul(acc, e), e) })).Done()
		})
		outputs := must.M1(exec.Exec(values))
		results = append(results, outputs[0].Value().([]float64))
	}
	for ii := 1; ii < len(results); ii++ {
		assert.Equal(t, results[0], results[ii], "settings #%d changed the results", ii)
	}

	// MaxIterations: 6 elements without initializer take 5 iterations.
	limited := func(maxIterations int) *Exec {
		return NewExec(func(x *Node) *Node {
			return functional.Foldl(x, Add).MaxIterations(maxIterations).Done()
		})
	}
	outputs := must.M1(limited(5).Exec(sixValues))
	assert.Equal(t, float32(21), outputs[0].Value())
	_, err := limited(4).Exec(sixValues)
	require.ErrorIs(t, err, ErrNonTerminationGuard)

	// Invalid settings.
	g := NewGraph("invalid")
	x := Const(g, sixValues)
	require.Panics(t, func() { functional.Foldl(x, Add).ParallelIterations(0).Done() })
}

func TestTracesAndReverse(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	exec := NewExec(func(x *Node) *Node { return functional.Foldl(x, Mul).Done() })
	outputs, traces, err := exec.ExecWithTraces(values)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	trace := traces[0]
	defer trace.Release()
	assert.Equal(t, float64(24), outputs[0].Value())
	assert.Equal(t, len(values)-1, trace.NumIterations())
	assert.Contains(t, trace.Name(), "foldl/")

	// acc' = acc * x[i]: d(acc')/d(acc) = x[i], d(acc')/d(x[i]) = acc.
	elemGrads := make([]float64, len(values))
	vjp := func(iteration int, inputs, _ []any, outputGrads []*tensors.Tensor) (
		inputGrads, capturedGrads []*tensors.Tensor, err error) {
		i := tensors.ToScalar[int32](inputs[0].(*tensors.Tensor))
		acc := tensors.ToScalar[float64](inputs[1].(*tensors.Tensor))
		grad := tensors.ToScalar[float64](outputGrads[1])
		elemGrads[i] += grad * acc
		return []*tensors.Tensor{nil, tensors.FromScalar(grad * values[i])}, nil, nil
	}
	result := must.M1(trace.Reverse([]*tensors.Tensor{nil, tensors.FromScalar(1.0)}, vjp))
	// The initial accumulator is x[0].
	elemGrads[0] = tensors.ToScalar[float64](result.StateGrads[1])
	assert.Equal(t, []float64{24, 12, 8, 6}, elemGrads)

	// Same with foldl(add): all gradients are 1.
	addExec := NewExec(func(x *Node) *Node { return functional.Foldl(x, Add).Done() })
	_, traces, err = addExec.ExecWithTraces(values)
	require.NoError(t, err)
	addTrace := traces[0]
	defer addTrace.Release()
	result = must.M1(addTrace.Reverse([]*tensors.Tensor{nil, tensors.FromScalar(1.0)},
		func(_ int, _, _ []any, outputGrads []*tensors.Tensor) ([]*tensors.Tensor, []*tensors.Tensor, error) {
			return []*tensors.Tensor{nil, outputGrads[1]}, nil, nil
		}))
	assert.Equal(t, float64(1), result.StateGrads[1].Value())
}
