// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/support/sets"
	"github.com/gomlx/funcops/pkg/support/xslices"
	"github.com/pkg/errors"
)

// MainName is the name of the main function of a Graph.
const MainName = "main"

// Function represents a computation with its own parameters and outputs within a Graph.
//
// Every Graph has a main function (see Graph.Main). Closures are functions created within another function
// (see NewClosure), and used as the condition and body of a While loop. A closure can use the nodes of any of
// its parent functions directly: those are "captured" (see Function.Captured) and are constant
// across the calls to the closure.
type Function struct {
	graph *Graph

	// parent is the function where this closure was created. It is nil for the main function.
	parent *Function

	name string

	// parameters of the function, in order, and their names.
	parameters     []*Node
	parameterNames sets.Set[string]

	// nodes created in the function, in order of creation.
	nodes []*Node

	// captured are the nodes of parent functions used in this function (or in one of its closures).
	captured    []*Node
	capturedSet sets.Set[*Node]

	outputs  []*Node
	returned bool

	// order of execution of the nodes, set when the graph is compiled.
	order []*Node

	// closureCount is used to generate unique names for closures created in this function.
	closureCount int
}

// Graph of the function.
func (f *Function) Graph() *Graph { return f.graph }

// Name of the function.
func (f *Function) Name() string { return f.name }

// Parent returns the function where this closure was created, or nil for the main function.
func (f *Function) Parent() *Function { return f.parent }

// IsClosure returns whether the function is a closure, that is, not the main function.
func (f *Function) IsClosure() bool { return f.parent != nil }

// Path returns the names of the function and its parents, separated by "/", e.g.: "main/closure_1/closure_0".
func (f *Function) Path() string {
	if f == nil {
		return "<nil>"
	}
	if f.parent == nil {
		return f.name
	}
	return f.parent.Path() + "/" + f.name
}

// IsAncestorOf returns whether f is a (strict) ancestor of other.
func (f *Function) IsAncestorOf(other *Function) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == f {
			return true
		}
	}
	return false
}

func (f *Function) depth() int {
	depth := 0
	for p := f.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Parameters of the function, in order.
func (f *Function) Parameters() []*Node { return f.parameters }

// Outputs of the function, set by Return.
func (f *Function) Outputs() []*Node { return f.outputs }

// Captured returns the nodes from parent functions used by f or by the closures created in it.
func (f *Function) Captured() []*Node { return f.captured }

// capture registers that node, from a parent function, is used by f.
func (f *Function) capture(node *Node) {
	if f.capturedSet == nil {
		f.capturedSet = sets.Make[*Node]()
	}
	if f.capturedSet.Has(node) {
		return
	}
	f.capturedSet.Insert(node)
	f.captured = append(f.captured, node)
}

// Return sets the outputs of the function. It can only be called once.
func (f *Function) Return(outputs []*Node) {
	if f.returned {
		exceptions.Panicf("Function %q already returned", f.Path())
	}
	assertSameGraph(f.graph, outputs...)
	outputs = slices.Clone(outputs)
	for ii, output := range outputs {
		if output.function != f && !output.function.IsAncestorOf(f) {
			exceptions.Panicf("Function %q: output #%d (%s) is from function %q, which is not visible",
				f.Path(), ii, output, output.function.Path())
		}
		if output.function != f {
			// Returning a node of a parent function: wrap it in an Identity, so it's a node of the function.
			prev := f.graph.currentFunc
			f.graph.currentFunc = f
			outputs[ii] = Identity(output)
			f.graph.currentFunc = prev
		}
	}
	f.outputs = outputs
	f.returned = true
}

// NewClosure creates a new closure of the current function of g, by calling closureDef, while the closure is set
// as the current function of g.
//
// closureDef must create the parameters of the closure (see Parameter, BufferParameter and ParameterLike), and returns
// the outputs. It may use nodes of the parent functions directly.
func NewClosure(g *Graph, closureDef func(g *Graph) []*Node) *Function {
	g.AssertBuilding()
	parent := g.currentFunc
	f := &Function{
		graph:          g,
		parent:         parent,
		name:           fmt.Sprintf("closure_%d", parent.closureCount),
		parameterNames: sets.Make[string](),
	}
	parent.closureCount++
	g.functions = append(g.functions, f)

	// Temporarily set the current function.
	g.currentFunc = f
	defer func() {
		g.currentFunc = parent
	}()
	outputs := closureDef(g)
	f.Return(outputs)
	return f
}

// nodeInputsParameter holds the inputs used for the call to Parameter.
type nodeInputsParameter struct {
	name  string
	index int
}

func (ni *nodeInputsParameter) Type() NodeType { return NodeTypeParameter }

func (ni *nodeInputsParameter) String() string {
	return fmt.Sprintf("%s(name=%q, index=%d)", ni.Type(), ni.name, ni.index)
}

func newParameter(g *Graph, name string, shape shapes.Shape, bufferType *BufferType) *Node {
	g.AssertBuilding()
	f := g.currentFunc
	if f.parameterNames == nil {
		f.parameterNames = sets.Make[string]()
	}
	if name == "" {
		name = fmt.Sprintf("p#%d", len(f.parameters))
	}
	if f.parameterNames.Has(name) {
		exceptions.Panicf("Function %q: parameter %q already exists", f.Path(), name)
	}
	f.parameterNames.Insert(name)
	inputs := &nodeInputsParameter{name: name, index: len(f.parameters)}
	node := newNode(g, inputs, nil, shape, bufferType)
	f.parameters = append(f.parameters, node)
	return node
}

// Parameter creates a tensor parameter for the current function of g, with the given name and shape.
// If name is empty, a unique name is generated.
func Parameter(g *Graph, name string, shape shapes.Shape) *Node {
	if !shape.Ok() {
		exceptions.Panicf("Parameter(%q): invalid shape %s", name, shape)
	}
	return newParameter(g, name, shape, nil)
}

// BufferParameter creates a sequence buffer parameter for the current closure of g.
// The main function can't take buffers as parameters.
func BufferParameter(g *Graph, name string, bufferType *BufferType) *Node {
	if !g.currentFunc.IsClosure() {
		exceptions.Panicf("BufferParameter(%q): buffers can only be parameters of closures", name)
	}
	return newParameter(g, name, shapes.Invalid(), bufferType.Clone())
}

// ParameterLike creates a parameter in the current function of g with the same value type (tensor shape or
// buffer type) as node.
func ParameterLike(g *Graph, name string, node *Node) *Node {
	if node.IsBuffer() {
		return BufferParameter(g, name, node.bufferType)
	}
	return Parameter(g, name, node.shape)
}

// checkCallTypes checks that the values given to the function have value types accepted by its parameters.
func (f *Function) checkCallTypes(args []*Node) error {
	if len(args) != len(f.parameters) {
		return errors.Wrapf(ErrTypeMismatch, "function %q takes %d parameters, but %d values were given",
			f.Path(), len(f.parameters), len(args))
	}
	for ii, param := range f.parameters {
		if !valueTypeAccepts(valueTypeOf(param), valueTypeOf(args[ii])) {
			return errors.Wrapf(ErrTypeMismatch, "function %q parameter #%d is %s, but value given is %s",
				f.Path(), ii, valueTypeOf(param), valueTypeOf(args[ii]))
		}
	}
	return nil
}

// valueTypeAccepts returns whether a value of type actual can be given where declared is expected.
func valueTypeAccepts(declared, actual any) bool {
	switch d := declared.(type) {
	case shapes.Shape:
		a, ok := actual.(shapes.Shape)
		return ok && d.Compatible(a)
	case *BufferType:
		a, ok := actual.(*BufferType)
		return ok && d.acceptsValueOf(a)
	}
	return false
}

// outputTypes returns the value types of the outputs of the function.
func (f *Function) outputTypes() []any {
	return xslices.Map(f.outputs, valueTypeOf)
}
