// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is used to build computation graphs that are executed later, and a reference
// interpreter to execute them.
//
// The main elements in the package are:
//
//   - Exec manages the lifecycle of a graph (creation, caching per input shapes, and execution).
//     This is where most use cases start.
//
//   - Graph is the blueprint for a specific computation with specific input shapes.
//     It's usually created by an Exec object, built by an ExecGraphFn, and then cached and executed by the Exec.
//
//   - Node represents a symbolic value in the computation: a tensor (with a shape known at graph building time)
//     or a sequence buffer (see package seqbuf) of tensors, used to accumulate values across loop iterations.
//
//   - Function is a sub-computation of the Graph, with its own parameters and outputs: the closures used as
//     the condition and body of a While loop. Closures can use nodes from their parent functions directly.
//
// # Error Handling
//
// Graph (and its Node's) methods "throw" errors with panic(). This prevents having to manage
// error returning for every operation (Add, Sub, BufferWrite, etc.) and makes the code much more readable.
// The errors are wrapped around the sentinel errors of the package (ErrIndex, ErrTypeMismatch, etc.), so
// they can be matched with errors.Is after recovering them, e.g.: with exceptions.TryCatch.
//
// Exec converts panics raised while building the graph, as well as errors while executing it, to errors.
//
// # Name Scopes
//
// Nodes are created under the current name scope of the Graph, see Graph.PushScope. It's only used to
// group nodes under readable names, when printing the graph or logging.
package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Graph with the operations and dependencies needed to run a computation.
type Graph struct {
	id   GraphId
	name string

	// nodes include all nodes known to Graph, in order of creation.
	nodes []*Node

	mainFunc, currentFunc *Function
	functions             []*Function // All functions, starting with main.

	// scopes is the stack of name scopes, and usedScopes the full scope names already used.
	scopes     []string
	usedScopes sets.Set[string]

	compiled, finalized bool
}

// GraphId is globally unique.
var (
	muGraphCount sync.Mutex
	graphCount   GraphId
)

// GraphId is a unique Graph id within a process.
type GraphId int

// NodeId is a unique NodeId within a Graph.
type NodeId int

// InvalidNodeId indicates a node that failed to be created.
const InvalidNodeId = NodeId(-1)

// NewGraph constructs an empty Graph, ready for building.
//
// After building a computation, they can be compiled (see Graph.Compile), at which point the Graph becomes immutable
// and can only be executed.
func NewGraph(name string) *Graph {
	muGraphCount.Lock()
	defer muGraphCount.Unlock()

	if name == "" {
		name = fmt.Sprintf("graph_#%d", graphCount)
	}
	g := &Graph{
		id:         graphCount,
		name:       name,
		usedScopes: sets.Make[string](),
	}
	graphCount += 1
	g.mainFunc = &Function{graph: g, name: MainName}
	g.functions = []*Function{g.mainFunc}
	g.currentFunc = g.mainFunc
	return g
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// GraphId returns the unique id of the graph.
func (g *Graph) GraphId() GraphId { return g.id }

// Main returns the main function of the graph.
func (g *Graph) Main() *Function { return g.mainFunc }

// CurrentFunc returns the function currently being built: new nodes are created in it.
func (g *Graph) CurrentFunc() *Function { return g.currentFunc }

// IsBuilding returns whether the graph is still being built, that is, it was not compiled or finalized.
func (g *Graph) IsBuilding() bool { return !g.compiled && !g.finalized }

// IsCompiled returns whether the graph has been compiled and is ready for execution.
func (g *Graph) IsCompiled() bool { return g.compiled && !g.finalized }

// AssertBuilding panics if the graph is nil, compiled or finalized.
func (g *Graph) AssertBuilding() {
	if g == nil {
		exceptions.Panicf("the Graph is nil")
	}
	if !g.IsBuilding() {
		exceptions.Panicf("Graph %q has already been compiled or finalized, one cannot change it", g.name)
	}
}

// AssertCompiled panics if the graph was not compiled yet, or was finalized.
func (g *Graph) AssertCompiled() {
	if g == nil {
		exceptions.Panicf("the Graph is nil")
	}
	if !g.IsCompiled() {
		exceptions.Panicf("Graph %q is not compiled (or it was finalized)", g.name)
	}
}

// Finalize frees the associated data with the compiled graph (if it is compiled) and all the nodes.
// The graph is left in an unusable state.
func (g *Graph) Finalize() {
	g.finalized = true
	g.nodes = nil
	g.mainFunc = nil
	g.currentFunc = nil
	g.functions = nil
}

// registerNode appends the node to the graph and to the current function, and returns its id.
func (g *Graph) registerNode(node *Node) NodeId {
	id := NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
	g.currentFunc.nodes = append(g.currentFunc.nodes, node)
	return id
}

// NodeById returns the node with the given id, or nil if it doesn't exist.
func (g *Graph) NodeById(id NodeId) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns a slice of all nodes of the graph, in order of creation. Don't change it.
func (g *Graph) Nodes() []*Node { return g.nodes }

// PushScope opens a new name scope, nested in the current one: nodes created until the matching PopScope are
// grouped under it.
//
// If the same scope (full path) was already used in this graph, a suffix "_<n>" is appended to make it unique.
// It returns the unique scope name actually used (without the parent scopes).
func (g *Graph) PushScope(name string) string {
	g.AssertBuilding()
	if name == "" || strings.Contains(name, "/") {
		exceptions.Panicf("invalid scope name %q: it must be non-empty and cannot contain \"/\"", name)
	}
	unique := name
	for count := 1; g.usedScopes.Has(g.scopeFor(unique)); count++ {
		unique = fmt.Sprintf("%s_%d", name, count)
	}
	g.usedScopes.Insert(g.scopeFor(unique))
	g.scopes = append(g.scopes, unique)
	return unique
}

// PopScope closes the current name scope.
func (g *Graph) PopScope() {
	if len(g.scopes) == 0 {
		exceptions.Panicf("Graph.PopScope() called without a matching Graph.PushScope()")
	}
	g.scopes = g.scopes[:len(g.scopes)-1]
}

// WithScope calls fn with the new name scope pushed, and pops it at the end, even if fn panics.
func (g *Graph) WithScope(name string, fn func()) {
	g.PushScope(name)
	defer g.PopScope()
	fn()
}

// Scope returns the current full name scope, with the nested scopes separated by "/".
func (g *Graph) Scope() string {
	return strings.Join(g.scopes, "/")
}

func (g *Graph) scopeFor(name string) string {
	if len(g.scopes) == 0 {
		return name
	}
	return g.Scope() + "/" + name
}

// Compile sets the outputs of the main function and freezes the graph: no more nodes can be added.
//
// All outputs must be tensor nodes: pack buffers before returning them.
func (g *Graph) Compile(outputs ...*Node) {
	g.AssertBuilding()
	if g.currentFunc != g.mainFunc {
		exceptions.Panicf("Graph.Compile() called while building closure %q", g.currentFunc.Path())
	}
	if len(g.scopes) > 0 {
		klog.Warningf("Graph %q compiled with open name scope %q", g.name, g.Scope())
		g.scopes = nil
	}
	for ii, output := range outputs {
		if output == nil {
			exceptions.Panicf("Graph.Compile(): output #%d is nil", ii)
		}
		if output.IsBuffer() {
			exceptions.Panicf("Graph.Compile(): output #%d is a sequence buffer (%s), it must be packed before returned",
				ii, output.bufferType)
		}
	}
	g.mainFunc.Return(outputs)
	for _, f := range g.functions {
		f.executionOrder()
	}
	g.compiled = true
	klog.V(1).Infof("Graph %q compiled: %d nodes, %d outputs", g.name, len(g.nodes), len(outputs))
}

// Run executes the compiled graph with the given inputs, one per parameter of the main function.
// The inputs can be *tensors.Tensor or any value accepted by tensors.FromAnyValue.
//
// It returns the outputs and the traces of the executed loops that were configured to retain them (see
// LoopConfig.RetainForReverse), in order of execution.
func (g *Graph) Run(inputs ...any) (outputs []*tensors.Tensor, traces []*LoopTrace, err error) {
	g.AssertCompiled()
	params := g.mainFunc.parameters
	if len(inputs) != len(params) {
		return nil, nil, errors.Errorf("Graph(%q).Run(): %d inputs given, but the graph has %d parameters",
			g.name, len(inputs), len(params))
	}
	values := make([]any, len(inputs))
	for ii, input := range inputs {
		var t *tensors.Tensor
		err = exceptions.TryCatch[error](func() { t = tensors.FromAnyValue(input) })
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "Graph(%q).Run(): converting input #%d", g.name, ii)
		}
		if !params[ii].shape.Compatible(t.Shape()) {
			return nil, nil, errors.Errorf("Graph(%q).Run(): input #%d has shape %s, but parameter %q has shape %s",
				g.name, ii, t.Shape(), params[ii].inputs.(*nodeInputsParameter).name, params[ii].shape)
		}
		values[ii] = t
	}

	interp := newInterpreter(g)
	results, err := interp.callFunctionSafe(g.mainFunc, nil, values)
	if err != nil {
		for _, trace := range interp.traces {
			trace.Release()
		}
		return nil, nil, errors.WithMessagef(err, "Graph(%q).Run()", g.name)
	}
	outputs = make([]*tensors.Tensor, len(results))
	for ii, result := range results {
		outputs[ii] = result.(*tensors.Tensor)
	}
	return outputs, interp.traces, nil
}

// String prints a multi-line description of the graph, one node per line.
func (g *Graph) String() string {
	if g == nil || g.finalized {
		return "Graph(nil or finalized)"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q: %d nodes\n", g.name, len(g.nodes))
	for _, node := range g.nodes {
		indent := strings.Repeat("\t", node.function.depth()+1)
		_, _ = fmt.Fprintf(&sb, "%s%s\n", indent, node)
	}
	return sb.String()
}

// assertSameGraph panics if any of the nodes is nil or not from g.
func assertSameGraph(g *Graph, nodes ...*Node) {
	for ii, node := range nodes {
		if node == nil {
			exceptions.Panicf("input #%d is nil", ii)
		}
		if node.graph != g {
			exceptions.Panicf("input #%d (%s) is from graph %q, not %q", ii, node, node.graph.name, g.name)
		}
	}
}

// scalarShape is the shape of scalar indices used by buffer operations.
var scalarShape = shapes.Make(IndexDType)
