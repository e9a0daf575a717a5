// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopes(t *testing.T) {
	g := NewGraph("scopes")
	require.Equal(t, "", g.Scope())

	require.Equal(t, "foldl", g.PushScope("foldl"))
	x := Const(g, float32(1))
	assert.Equal(t, "foldl", x.Scope())
	assert.Equal(t, "foldl/Constant#0", x.Name())
	g.PopScope()

	// Same scope again gets a unique suffix.
	require.Equal(t, "foldl_1", g.PushScope("foldl"))
	require.Equal(t, "inner", g.PushScope("inner"))
	assert.Equal(t, "foldl_1/inner", g.Scope())
	g.PopScope()
	g.PopScope()
	require.Equal(t, "foldl_2", g.PushScope("foldl"))
	g.PopScope()

	// WithScope pops the scope even if fn panics.
	require.Panics(t, func() {
		g.WithScope("map", func() { panic("boom") })
	})
	assert.Equal(t, "", g.Scope())

	require.Panics(t, func() { g.PopScope() })
	require.Panics(t, func() { g.PushScope("a/b") })
	require.Panics(t, func() { g.PushScope("") })
}

func TestClosureCapture(t *testing.T) {
	g := NewGraph("capture")
	x := Parameter(g, "x", shapes.Make(dtypes.Float32))
	y := Const(g, float32(2))
	var inner *Function
	outer := NewClosure(g, func(g *Graph) []*Node {
		p := Parameter(g, "p", shapes.Make(dtypes.Float32))
		inner = NewClosure(g, func(g *Graph) []*Node {
			q := Parameter(g, "q", shapes.Make(dtypes.Float32))
			return []*Node{Mul(Add(q, x), p)}
		})
		return []*Node{Add(p, y)}
	})
	assert.True(t, outer.IsClosure())
	assert.Equal(t, g.Main(), outer.Parent())
	assert.Equal(t, outer, inner.Parent())
	assert.True(t, g.Main().IsAncestorOf(inner))
	assert.False(t, inner.IsAncestorOf(outer))
	assert.Equal(t, "main/closure_0/closure_0", inner.Path())

	// Captures from both levels.
	assert.Equal(t, []*Node{x, outer.Parameters()[0]}, inner.Captured())
	assert.Equal(t, []*Node{y}, outer.Captured())

	// Nodes of a sibling closure can't be used.
	require.Panics(t, func() {
		NewClosure(g, func(g *Graph) []*Node {
			return []*Node{Neg(inner.Parameters()[0])}
		})
	})

	// Returning a parent node wraps it in an Identity.
	passThrough := NewClosure(g, func(g *Graph) []*Node {
		_ = Parameter(g, "unused", shapes.Make(dtypes.Float32))
		return []*Node{x}
	})
	require.Len(t, passThrough.Outputs(), 1)
	assert.Equal(t, NodeTypeIdentity, passThrough.Outputs()[0].Type())
	assert.Equal(t, passThrough, passThrough.Outputs()[0].Function())
}

func TestCompile(t *testing.T) {
	g := NewGraph("compile")
	x := Parameter(g, "x", shapes.Make(dtypes.Int32, 3))
	buf := UnpackBuffer(x)
	require.Panics(t, func() { g.Compile(buf) })

	unused := Neg(x)
	y := Add(x, Const(g, int32(1)))
	g.Compile(y)
	assert.True(t, g.IsCompiled())
	assert.False(t, g.IsBuilding())
	assert.NotContains(t, g.Main().executionOrder(), unused)
	assert.Contains(t, g.Main().executionOrder(), y)
	require.Panics(t, func() { Neg(x) })

	outputs, traces, err := g.Run([]int32{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, traces)
	assert.Equal(t, []int32{2, 3, 4}, outputs[0].Value())

	_, _, err = g.Run([]int32{1, 2})
	require.Error(t, err)
	_, _, err = g.Run()
	require.Error(t, err)

	g.Finalize()
	assert.False(t, g.IsCompiled())
	require.Panics(t, func() { _, _, _ = g.Run([]int32{1, 2, 3}) })
}

func TestNodeTypeNames(t *testing.T) {
	assert.Equal(t, "BufferRead", NodeTypeBufferRead.String())
	assert.Equal(t, "While", NodeTypeWhile.String())
	assert.Equal(t, "NodeType(1000)", NodeType(1000).String())
	for _, nodeType := range NodeTypeValues() {
		parsed, err := NodeTypeString(nodeType.String())
		require.NoError(t, err)
		assert.Equal(t, nodeType, parsed)
	}
	parsed, err := NodeTypeString("lessorequal")
	require.NoError(t, err)
	assert.Equal(t, NodeTypeLessOrEqual, parsed)
	_, err = NodeTypeString("Reduce")
	require.Error(t, err)
	assert.False(t, NodeType(-1).IsANodeType())
}
