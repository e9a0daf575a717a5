// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/support/xslices"
)

// Node represents the result of an operation in the computation graph, and can be used as input to further operations.
//
// A node holds either a tensor, with a shape known at graph building time (see Node.Shape), or a
// sequence buffer (see Node.IsBuffer and Node.BufferType).
//
// Node.String allows for a pretty-printing of node. To see the full graph with all nodes, use Graph.String.
type Node struct {
	graph    *Graph
	function *Function // function where the node was created.
	id       NodeId    // id within graph.

	// Exactly one of shape (if Ok()) or bufferType (if not nil) is set, except for multi-output nodes,
	// which have neither: their values are split with splitNode.
	shape      shapes.Shape
	bufferType *BufferType

	// inputNodes are the edges of the computation graph.
	// Notice that other static inputs to the node are registered in inputs.
	inputNodes []*Node

	// inputs holds all the inputs (nodes and static values) of the node, in a struct specific to each NodeType.
	inputs NodeInputs

	// scope is the name scope where the node was created.
	scope string

	// outputNodes of a multi-output node, created with splitNode.
	outputNodes []*Node
}

// NodeInputs represents the inputs to node. The common interface is to return the type of the node.
// For the input parameters themselves, the pointer needs to be cast to the corresponding type, usually named
// nodeInputs<operation_name>.
type NodeInputs interface {
	Type() NodeType

	// String prints a descriptive representation of the node, using its parameters.
	String() string
}

// NodeType identifies the operation of a Node.
type NodeType int

//go:generate go tool enumer -type=NodeType -trimprefix=NodeType -output=gen_nodetype_enumer.go node.go

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeParameter
	NodeTypeConstant
	NodeTypeIdentity
	NodeTypeConvertDType
	NodeTypeNeg
	NodeTypeAbs
	NodeTypeLogicalNot
	NodeTypeAdd
	NodeTypeSub
	NodeTypeMul
	NodeTypeDiv
	NodeTypeMax
	NodeTypeMin
	NodeTypeEqual
	NodeTypeNotEqual
	NodeTypeLessThan
	NodeTypeLessOrEqual
	NodeTypeGreaterThan
	NodeTypeGreaterOrEqual
	NodeTypeLogicalAnd
	NodeTypeLogicalOr
	NodeTypeAllocateBuffer
	NodeTypeUnpackBuffer
	NodeTypeBufferRead
	NodeTypeBufferWrite
	NodeTypeBufferPack
	NodeTypeBufferSize
	NodeTypeWhile
	NodeTypeSplit
)

// IndexDType is the dtype of buffer indices and sizes.
const IndexDType = dtypes.Int32

// BufferType describes the static type of a sequence buffer node.
type BufferType struct {
	// DType of the elements.
	DType dtypes.DType

	// ElementShape is the shape of the elements, or shapes.Invalid() if not known yet: it's set by
	// the first BufferWrite.
	ElementShape shapes.Shape

	// Capacity is the number of slots if known at graph building time, or -1 otherwise.
	Capacity int

	// DynamicSize indicates the buffer grows when written past its capacity.
	DynamicSize bool
}

// HasElementShape returns whether the element shape is known.
func (bt *BufferType) HasElementShape() bool { return bt.ElementShape.Ok() }

// Clone returns a deep copy.
func (bt *BufferType) Clone() *BufferType {
	clone := *bt
	clone.ElementShape = bt.ElementShape.Clone()
	return &clone
}

// String implements fmt.Stringer.
func (bt *BufferType) String() string {
	elementShape := bt.DType.String() + "[?]"
	if bt.HasElementShape() {
		elementShape = bt.ElementShape.String()
	}
	capacity := "?"
	if bt.Capacity >= 0 {
		capacity = fmt.Sprintf("%d", bt.Capacity)
	}
	dynamic := ""
	if bt.DynamicSize {
		dynamic = ", dynamic"
	}
	return fmt.Sprintf("Buffer[%s, capacity=%s%s]", elementShape, capacity, dynamic)
}

// acceptsValueOf returns whether a value of type actual can be given where bt is declared.
// An unknown element shape or capacity in bt accepts any.
func (bt *BufferType) acceptsValueOf(actual *BufferType) bool {
	if bt.DType != actual.DType || bt.DynamicSize != actual.DynamicSize {
		return false
	}
	if bt.HasElementShape() && !bt.ElementShape.Equal(actual.ElementShape) {
		return false
	}
	if !bt.DynamicSize && bt.Capacity >= 0 && bt.Capacity != actual.Capacity {
		return false
	}
	return true
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Function where the node was created.
func (n *Node) Function() *Function { return n.function }

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId { return n.id }

// Type identifies the operation performed by the node.
func (n *Node) Type() NodeType {
	if n == nil || n.inputs == nil {
		return NodeTypeInvalid
	}
	return n.inputs.Type()
}

// Inputs are the other nodes that are direct inputs to the node.
func (n *Node) Inputs() []*Node { return n.inputNodes }

// Scope is the name scope where the node was created.
func (n *Node) Scope() string { return n.scope }

// Name of the node: its scope, type and id, e.g.: "foldl/While#12".
func (n *Node) Name() string {
	name := fmt.Sprintf("%s#%d", n.Type(), n.id)
	if n.scope == "" {
		return name
	}
	return n.scope + "/" + name
}

// Shape of the Node's output. It is invalid for buffer nodes.
func (n *Node) Shape() shapes.Shape {
	if n == nil {
		return shapes.Invalid()
	}
	return n.shape
}

// DType returns the DType of the node's shape, or of the elements of a buffer node.
func (n *Node) DType() dtypes.DType {
	if n.IsBuffer() {
		return n.bufferType.DType
	}
	return n.Shape().DType
}

// Rank returns the rank of the node's shape.
func (n *Node) Rank() int { return n.Shape().Rank() }

// IsScalar returns whether the node's shape is a scalar.
func (n *Node) IsScalar() bool { return n.Shape().IsScalar() }

// IsBuffer returns whether the node holds a sequence buffer.
func (n *Node) IsBuffer() bool { return n != nil && n.bufferType != nil }

// BufferType returns the static type of the buffer, or nil if it is not a buffer node.
// Don't change it.
func (n *Node) BufferType() *BufferType { return n.bufferType }

// AssertValid panics if n is nil, or if its graph is invalid.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	if n.graph == nil || n.graph.finalized {
		exceptions.Panicf("Node %d belongs to an invalid or finalized graph", n.id)
	}
}

// String implements fmt.Stringer.
func (n *Node) String() (str string) {
	if n == nil {
		return "Node(nil)"
	}
	if n.inputs == nil {
		return fmt.Sprintf("%s: ???(invalid)", n.Name())
	}
	var valueType string
	switch {
	case n.IsBuffer():
		valueType = n.bufferType.String()
	case n.shape.Ok():
		valueType = n.shape.String()
	default:
		valueType = fmt.Sprintf("(%d outputs)", len(n.outputNodes))
	}
	return fmt.Sprintf("%s: %s -> %s", n.Name(), n.inputs.String(), valueType)
}

// newNode creates a node in the current function of g, and registers it.
//
// Input nodes from the parent functions of the current function are captured by it (see Function.Captured).
// Input nodes from any other function raise an error.
func newNode(g *Graph, inputs NodeInputs, inputNodes []*Node, shape shapes.Shape, bufferType *BufferType) *Node {
	g.AssertBuilding()
	assertSameGraph(g, inputNodes...)
	f := g.currentFunc
	for _, input := range inputNodes {
		if input.function == f {
			continue
		}
		if !input.function.IsAncestorOf(f) {
			exceptions.Panicf("cannot use node %s, created in function %q, in function %q: only nodes of "+
				"the current function or its parents can be used", input, input.function.Path(), f.Path())
		}
		f.capture(input)
	}
	n := &Node{
		graph:      g,
		function:   f,
		shape:      shape,
		bufferType: bufferType,
		inputNodes: inputNodes,
		inputs:     inputs,
		scope:      g.Scope(),
	}
	n.id = g.registerNode(n)
	return n
}

// splitNode splits a multi-output node into one node per output, with the given value types: each
// is either a shapes.Shape or a *BufferType.
func splitNode(multiOutputNode *Node, valueTypes []any) []*Node {
	g := multiOutputNode.graph
	multiOutputNode.outputNodes = xslices.Map(xslices.Iota(0, len(valueTypes)), func(ii int) *Node {
		inputs := &nodeInputsSplit{multi: multiOutputNode, index: ii}
		switch vt := valueTypes[ii].(type) {
		case shapes.Shape:
			return newNode(g, inputs, []*Node{multiOutputNode}, vt, nil)
		case *BufferType:
			return newNode(g, inputs, []*Node{multiOutputNode}, shapes.Invalid(), vt)
		default:
			exceptions.Panicf("splitNode: invalid value type %T", vt)
			return nil
		}
	})
	return multiOutputNode.outputNodes
}

// valueTypeOf returns the shape (shapes.Shape) or buffer type (*BufferType) of the node.
func valueTypeOf(n *Node) any {
	if n.IsBuffer() {
		return n.bufferType
	}
	return n.shape
}

// nodeInputsSplit selects one of the outputs of a multi-output node.
type nodeInputsSplit struct {
	multi *Node
	index int
}

func (ni *nodeInputsSplit) Type() NodeType { return NodeTypeSplit }

func (ni *nodeInputsSplit) String() string {
	return fmt.Sprintf("%s(#%d, index=%d)", ni.Type(), ni.multi.id, ni.index)
}

// nodesIdsString prints the ids of the given nodes, e.g.: "[#1, #3]".
func nodesIdsString(nodes []*Node) string {
	return "[" + strings.Join(xslices.Map(nodes, func(n *Node) string { return fmt.Sprintf("#%d", n.id) }), ", ") + "]"
}
