// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/seqbuf"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// interpreter executes a compiled Graph: it evaluates the nodes of each function in topological order.
//
// Values are *tensors.Tensor for tensor nodes, *seqbuf.Buffer for buffer nodes and []any for
// multi-output nodes (While).
type interpreter struct {
	graph *Graph

	// traces of the executed loops, in order of execution.
	traces        []*LoopTrace
	discardTraces bool
}

func newInterpreter(g *Graph) *interpreter {
	return &interpreter{graph: g}
}

// env holds the values of the nodes of a function call, and a link to the values of the enclosing function call,
// used for the captured values of closures.
type env struct {
	parent *env
	values map[*Node]any
}

func (e *env) lookup(node *Node) (any, bool) {
	for ; e != nil; e = e.parent {
		if value, found := e.values[node]; found {
			return value, true
		}
	}
	return nil, false
}

// executionOrder returns the nodes of f needed to compute its outputs, in topological order (which is the order
// of creation). It is computed once per function, when the graph is compiled.
func (f *Function) executionOrder() []*Node {
	if f.order != nil {
		return f.order
	}
	needed := sets.Make[*Node]()
	var visit func(node *Node)
	visit = func(node *Node) {
		if node.function != f || needed.Has(node) {
			return
		}
		needed.Insert(node)
		for _, input := range node.inputNodes {
			visit(input)
		}
	}
	for _, output := range f.outputs {
		visit(output)
	}
	f.order = make([]*Node, 0, len(needed))
	for _, node := range f.nodes {
		if needed.Has(node) {
			f.order = append(f.order, node)
		}
	}
	return f.order
}

// callFunctionSafe is like callFunction, but converts panics to errors.
func (it *interpreter) callFunctionSafe(f *Function, parent *env, params []any) (outputs []any, err error) {
	var callErr error
	err = exceptions.TryCatch[error](func() {
		outputs, callErr = it.callFunction(f, parent, params)
	})
	if err == nil {
		err = callErr
	}
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

// callFunction evaluates f with the given parameter values. parent holds the values of the enclosing function call,
// from where captured values are read.
func (it *interpreter) callFunction(f *Function, parent *env, params []any) ([]any, error) {
	if len(params) != len(f.parameters) {
		return nil, errors.Errorf("function %q called with %d values, but it has %d parameters",
			f.Path(), len(params), len(f.parameters))
	}
	order := f.executionOrder()
	e := &env{parent: parent, values: make(map[*Node]any, len(order)+len(params))}
	for ii, param := range f.parameters {
		e.values[param] = params[ii]
	}
	for _, node := range order {
		if node.Type() == NodeTypeParameter {
			continue
		}
		value, err := it.execNode(node, e)
		if err != nil {
			return nil, errors.WithMessagef(err, "executing %s", node.Name())
		}
		e.values[node] = value
	}
	outputs := make([]any, len(f.outputs))
	for ii, output := range f.outputs {
		outputs[ii], _ = e.lookup(output)
	}
	return outputs, nil
}

func (it *interpreter) inputValues(node *Node, e *env) ([]any, error) {
	values := make([]any, len(node.inputNodes))
	for ii, input := range node.inputNodes {
		value, found := e.lookup(input)
		if !found {
			return nil, errors.Errorf("value of input #%d (%s) not available", ii, input.Name())
		}
		values[ii] = value
	}
	return values, nil
}

// execNode computes the value of node.
func (it *interpreter) execNode(node *Node, e *env) (any, error) {
	inputs, err := it.inputValues(node, e)
	if err != nil {
		return nil, err
	}
	tensorAt := func(ii int) *tensors.Tensor { return inputs[ii].(*tensors.Tensor) }
	bufferAt := func(ii int) *seqbuf.Buffer { return inputs[ii].(*seqbuf.Buffer) }

	switch ni := node.inputs.(type) {
	case *nodeInputsConstant:
		return ni.tensor, nil

	case *nodeInputsUnary:
		switch ni.op {
		case NodeTypeIdentity:
			return inputs[0], nil
		case NodeTypeUnpackBuffer:
			return seqbuf.Unpack(tensorAt(0))
		default:
			return execUnary(ni.op, tensorAt(0))
		}

	case *nodeInputsConvertDType:
		return execConvertDType(tensorAt(0), ni.dtype)

	case *nodeInputsBinary:
		return execBinary(ni.op, tensorAt(0), tensorAt(1), node.shape)

	case *nodeInputsAllocateBuffer:
		size, err := scalarIndex(tensorAt(0))
		if err != nil {
			return nil, err
		}
		if ni.elementShape.Ok() {
			return seqbuf.AllocateWithShape(ni.elementShape, size, ni.dynamicSize)
		}
		return seqbuf.Allocate(ni.dtype, size, ni.dynamicSize)

	case *nodeInputsBuffer:
		buffer := bufferAt(0)
		switch ni.op {
		case NodeTypeBufferRead:
			index, err := scalarIndex(tensorAt(1))
			if err != nil {
				return nil, err
			}
			return buffer.Read(index)
		case NodeTypeBufferWrite:
			index, err := scalarIndex(tensorAt(1))
			if err != nil {
				return nil, err
			}
			return buffer.Write(index, tensorAt(2))
		case NodeTypeBufferPack:
			if _, known := buffer.ElementShape(); !known && buffer.Size() == 0 {
				// Nothing was written at execution time, but the element shape is known statically.
				return tensors.StackWithShape(ni.buffer.bufferType.ElementShape, nil)
			}
			return buffer.Pack()
		case NodeTypeBufferSize:
			return tensors.FromScalar(int32(buffer.Size())), nil
		}

	case *nodeInputsWhile:
		return it.execWhile(node, ni, inputs, e)

	case *nodeInputsSplit:
		return inputs[0].([]any)[ni.index], nil
	}
	return nil, errors.Errorf("node type %s not implemented", node.Type())
}

// execWhile executes the loop: inputs holds the initial state values followed by the captured values.
func (it *interpreter) execWhile(node *Node, ni *nodeInputsWhile, inputs []any, e *env) (any, error) {
	state := inputs[:len(ni.initialState)]
	config := ni.config
	var trace *LoopTrace
	if config.RetainForReverse && !it.discardTraces {
		var err error
		trace, err = newLoopTrace(node, config, inputs[len(ni.initialState):])
		if err != nil {
			return nil, err
		}
		it.traces = append(it.traces, trace)
	}
	start := time.Now()
	klog.V(1).Infof("Loop %s started", node.Name())
	loopErr := func() error {
		for iteration := 0; ; iteration++ {
			condOutputs, err := it.callFunction(ni.cond, e, state)
			if err != nil {
				return errors.WithMessagef(err, "condition of iteration %d", iteration)
			}
			if !tensors.ToScalar[bool](condOutputs[0].(*tensors.Tensor)) {
				return nil
			}
			if config.MaxIterations > 0 && iteration >= config.MaxIterations {
				return errors.Wrapf(ErrNonTerminationGuard, "loop %s reached %d iterations", node.Name(), iteration)
			}
			klog.V(2).Infof("Loop %s: iteration %d", node.Name(), iteration)
			newState, err := it.callFunction(ni.body, e, state)
			if err != nil {
				return errors.WithMessagef(err, "body of iteration %d", iteration)
			}
			if err := checkStateValues(ni.body, newState); err != nil {
				return errors.WithMessagef(err, "body of iteration %d", iteration)
			}
			if trace != nil {
				trace.record(state, newState)
			}
			state = newState
		}
	}()
	if trace != nil {
		if err := trace.finish(start); err != nil && loopErr == nil {
			loopErr = err
		}
	} else {
		klog.V(1).Infof("Loop %s finished in %s", node.Name(), time.Since(start))
	}
	if loopErr != nil {
		return nil, loopErr
	}
	return state, nil
}

// checkStateValues checks that the values returned by the body match the types of its parameters,
// for the dimensions only known at execution time.
func checkStateValues(body *Function, values []any) error {
	for ii, param := range body.parameters {
		switch v := values[ii].(type) {
		case *tensors.Tensor:
			if !param.shape.Compatible(v.Shape()) {
				return errors.Wrapf(ErrTypeMismatch, "state value #%d has shape %s, but loop state is %s",
					ii, v.Shape(), param.shape)
			}
		case *seqbuf.Buffer:
			if param.bufferType == nil || param.bufferType.DType != v.DType() {
				return errors.Wrapf(ErrTypeMismatch, "state value #%d is %s, but loop state is %s",
					ii, v, valueTypeOf(param))
			}
		}
	}
	return nil
}
