// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/support/sets"
	"github.com/gomlx/funcops/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Environment variables that override the defaults returned by DefaultLoopConfig.
const (
	ParallelIterationsEnv = "FUNCOPS_PARALLEL_ITERATIONS"
	MaxIterationsEnv      = "FUNCOPS_MAX_ITERATIONS"
	SpillDirEnv           = "FUNCOPS_SPILL_DIR"
)

// DefaultParallelIterations is the default value of LoopConfig.ParallelIterations.
const DefaultParallelIterations = 10

// LoopConfig configures the execution of a While loop. None of the options change the results of the loop.
type LoopConfig struct {
	// ParallelIterations is the maximum number of iterations whose spilling to disk can be in flight at the
	// same time. Iterations are always executed in order, and recording them in memory is synchronous, so it's
	// only used when both RetainForReverse and AllowMemorySpill are set.
	// Must be >= 1.
	ParallelIterations int

	// RetainForReverse records the inputs and outputs of every iteration in a LoopTrace, which can be used
	// for a reverse pass (see LoopTrace.Reverse).
	RetainForReverse bool

	// AllowMemorySpill moves the tensors retained for the reverse pass to files in SpillDir, and reads them
	// back on access. It has no effect if RetainForReverse is false.
	AllowMemorySpill bool

	// MaxIterations, if > 0, is the maximum number of iterations: executing more fails with
	// ErrNonTerminationGuard. 0 means no limit.
	MaxIterations int

	// SpillDir is the directory where spilled tensors are stored. If empty, os.TempDir() is used.
	SpillDir string
}

// DefaultLoopConfig returns the default loop configuration: 10 parallel iterations, retaining iterations for
// the reverse pass, no spilling and no maximum number of iterations.
//
// The defaults can be overridden with the environment variables FUNCOPS_PARALLEL_ITERATIONS,
// FUNCOPS_MAX_ITERATIONS and FUNCOPS_SPILL_DIR.
func DefaultLoopConfig() LoopConfig {
	config := LoopConfig{
		ParallelIterations: DefaultParallelIterations,
		RetainForReverse:   true,
	}
	if value, found := os.LookupEnv(ParallelIterationsEnv); found {
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			config.ParallelIterations = n
		} else {
			klog.Warningf("Ignoring invalid %s=%q: it must be an integer >= 1", ParallelIterationsEnv, value)
		}
	}
	if value, found := os.LookupEnv(MaxIterationsEnv); found {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			config.MaxIterations = n
		} else {
			klog.Warningf("Ignoring invalid %s=%q: it must be an integer >= 0", MaxIterationsEnv, value)
		}
	}
	if value, found := os.LookupEnv(SpillDirEnv); found {
		config.SpillDir = value
	}
	return config
}

// Validate returns an error if the configuration is invalid.
func (c LoopConfig) Validate() error {
	if c.ParallelIterations < 1 {
		return errors.Errorf("LoopConfig.ParallelIterations must be >= 1, got %d", c.ParallelIterations)
	}
	if c.MaxIterations < 0 {
		return errors.Errorf("LoopConfig.MaxIterations must be >= 0, got %d", c.MaxIterations)
	}
	return nil
}

// nodeInputsWhile holds the inputs of a While node.
type nodeInputsWhile struct {
	cond, body   *Function
	config       LoopConfig
	initialState []*Node

	// captured are the nodes of the enclosing functions used by cond or body.
	captured []*Node
}

// Type implements NodeInputs.
func (ni *nodeInputsWhile) Type() NodeType { return NodeTypeWhile }

// String implements NodeInputs.
func (ni *nodeInputsWhile) String() string {
	return fmt.Sprintf("%s(cond=%s, body=%s, state=%s, captured=%s, parallel=%d, retain=%v, spill=%v)",
		ni.Type(), ni.cond.name, ni.body.name, nodesIdsString(ni.initialState), nodesIdsString(ni.captured),
		ni.config.ParallelIterations, ni.config.RetainForReverse, ni.config.AllowMemorySpill)
}

// While executes a loop while a condition is true, and returns the final state.
//
// The condition and body closures should be created with NewClosure, in the current function of the graph.
//
// The condition closure must:
//   - Take N parameters (matching the number and value types of initialState)
//   - Return a single boolean scalar
//
// The body closure must:
//   - Take N parameters (matching the number and value types of initialState)
//   - Return N values with value types accepted by its parameters: the state of the loop can't change types,
//     except for buffers whose element shape becomes known in the body.
//
// The state can hold tensors and buffers. Both closures can use nodes of the enclosing functions directly.
// Zero iterations are valid, in which case the initial state is returned.
//
// Example for summing numbers 1 to 10:
//
//	// State: [counter, sum]
//	cond := NewClosure(g, func(g *Graph) []*Node {
//	    counter := Parameter(g, "counter", shapes.Make(dtypes.Int32))
//	    _ = Parameter(g, "sum", shapes.Make(dtypes.Int32))
//	    return []*Node{LessThan(counter, Const(g, int32(11)))}
//	})
//	body := NewClosure(g, func(g *Graph) []*Node {
//	    counter := Parameter(g, "counter", shapes.Make(dtypes.Int32))
//	    sum := Parameter(g, "sum", shapes.Make(dtypes.Int32))
//	    return []*Node{OnePlus(counter), Add(sum, counter)}
//	})
//	results := While(cond, body, DefaultLoopConfig(), Const(g, int32(1)), Const(g, int32(0)))
//	// results[0] = 11, results[1] = 55
//
// It panics with ErrTypeMismatch if the closures don't match the state.
func While(cond, body *Function, config LoopConfig, initialState ...*Node) []*Node {
	if len(initialState) == 0 {
		exceptions.Panicf("While requires at least one initial state value")
	}
	if cond == nil || body == nil {
		exceptions.Panicf("While requires a condition and a body function")
	}
	if !cond.IsClosure() || !body.IsClosure() {
		exceptions.Panicf("While condition and body must be closures (created with NewClosure)")
	}
	g := validateBuildingGraphFromInputs(initialState...)
	if cond.parent != g.currentFunc || body.parent != g.currentFunc {
		exceptions.Panicf("While condition and body must be closures of the current function %q", g.currentFunc.Path())
	}
	if err := config.Validate(); err != nil {
		panic(errors.WithMessage(err, "While"))
	}

	// Check the state types.
	if err := cond.checkCallTypes(initialState); err != nil {
		panic(errors.WithMessage(err, "While condition"))
	}
	if len(cond.outputs) != 1 || !cond.outputs[0].shape.Ok() || !cond.outputs[0].IsScalar() ||
		cond.outputs[0].DType() != dtypes.Bool {
		panic(errors.Wrapf(ErrTypeMismatch, "While condition must return one scalar Bool, got %s",
			xslices.Map(cond.outputs, valueTypeOf)))
	}
	if err := body.checkCallTypes(initialState); err != nil {
		panic(errors.WithMessage(err, "While body"))
	}
	if err := body.checkCallTypes(body.outputs); err != nil {
		panic(errors.WithMessage(err, "While body outputs don't match its inputs"))
	}
	if err := cond.checkCallTypes(body.outputs); err != nil {
		panic(errors.WithMessage(err, "While body outputs don't match the condition inputs"))
	}

	// Captured values of both closures, in a stable order.
	var captured []*Node
	seen := sets.Make[*Node]()
	for _, node := range slices.Concat(cond.Captured(), body.Captured()) {
		if !seen.Has(node) {
			seen.Insert(node)
			captured = append(captured, node)
		}
	}

	ni := &nodeInputsWhile{
		cond:         cond,
		body:         body,
		config:       config,
		initialState: initialState,
		captured:     captured,
	}
	inputNodes := slices.Concat(initialState, captured)
	node := newNode(g, ni, inputNodes, shapes.Invalid(), nil)
	klog.V(1).Infof("While loop %s created with %d state values and %d captured values",
		node.Name(), len(initialState), len(captured))
	return splitNode(node, body.outputTypes())
}

// WhileLoop is a convenience wrapper around While: it creates the closures for cond and body, with parameters
// matching the value types of initialState.
//
// cond takes the state and returns a boolean scalar, and body takes the state and returns the new state.
func WhileLoop(g *Graph, config LoopConfig, cond func(state []*Node) *Node, body func(state []*Node) []*Node,
	initialState ...*Node) []*Node {
	g.AssertBuilding()
	stateParams := func(g *Graph) []*Node {
		return xslices.Map(xslices.Iota(0, len(initialState)), func(ii int) *Node {
			return ParameterLike(g, fmt.Sprintf("state#%d", ii), initialState[ii])
		})
	}
	condFn := NewClosure(g, func(g *Graph) []*Node {
		return []*Node{cond(stateParams(g))}
	})
	bodyFn := NewClosure(g, func(g *Graph) []*Node {
		return body(stateParams(g))
	})
	return While(condFn, bodyFn, config, initialState...)
}
