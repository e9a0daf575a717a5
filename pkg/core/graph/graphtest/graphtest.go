// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that depend on the graph package.
package graphtest

import (
	"fmt"
	"slices"
	"testing"

	"github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/support/xslices"
	"github.com/stretchr/testify/require"
)

// TestGraphFn should build its own inputs, and return both inputs and outputs
type TestGraphFn func(g *graph.Graph) (inputs, outputs []*graph.Node)

// RunTestGraphFn tests a graph building function graphFn by executing it and comparing
// its output(s) to the values in want, reporting back any errors in t.
//
// delta is the margin of value on the difference of output and want values that are acceptable.
// Values of delta <= 0 means only exact equality is accepted.
func RunTestGraphFn(t *testing.T, testName string, graphFn TestGraphFn, want []any, delta float64) {
	t.Run(testName, func(t *testing.T) {
		wantTensors := xslices.Map(want, func(value any) *tensors.Tensor {
			if s, ok := value.(shapes.Shape); ok {
				return tensors.FromShape(s)
			}
			return tensors.FromAnyValue(value)
		})

		var numInputs, numOutputs int
		wrapperFn := func(g *graph.Graph) []*graph.Node {
			i, o := graphFn(g)
			numInputs, numOutputs = len(i), len(o)
			return slices.Concat(i, o)
		}
		exec := graph.NewExec(wrapperFn)
		inputsAndOutputs, err := exec.Exec()
		require.NoErrorf(t, err, "%s: failed to execute graph", testName)
		require.NotPanicsf(t, func() { inputsAndOutputs = exec.MustExec() }, "%s: failed to execute graph", testName)
		inputs := inputsAndOutputs[:numInputs]
		outputs := inputsAndOutputs[numInputs:]
		for ii, output := range outputs {
			require.NotNilf(t, output, "%s: outputs[%d] is nil", testName, ii)
		}

		fmt.Printf("\n%s:\n", testName)
		for ii, input := range inputs {
			fmt.Printf("\tInput %d: %s\n", ii, input)
		}
		if numInputs > 0 {
			fmt.Printf("\t======\n")
		}
		for ii, output := range outputs {
			fmt.Printf("\tOutput %d: %s\n", ii, output)
		}
		require.Equalf(t, len(want), numOutputs, "%s: number of wanted results different from number of outputs", testName)

		for ii, output := range outputs {
			require.Truef(t, wantTensors[ii].InDelta(output, delta), "%s: output #%d (%s) doesn't match wanted value %v",
				testName, ii, output, want[ii])
		}
	})
}

// RunTestGraphFnError builds and executes graphFn, and checks that it fails with an error that matches
// wantErr with errors.Is.
func RunTestGraphFnError(t *testing.T, testName string, graphFn TestGraphFn, wantErr error) {
	t.Run(testName, func(t *testing.T) {
		exec := graph.NewExec(func(g *graph.Graph) []*graph.Node {
			i, o := graphFn(g)
			return slices.Concat(i, o)
		})
		_, err := exec.Exec()
		require.Errorf(t, err, "%s: expected error", testName)
		require.ErrorIsf(t, err, wantErr, "%s: unexpected error: %+v", testName, err)
	})
}
