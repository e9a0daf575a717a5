// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Graph operations on sequence buffers (see package seqbuf for their values).
//
// Buffers are values: BufferWrite returns a new buffer node, and the input buffer node still holds the
// previous value. Errors that can be detected at graph building time (constant indices out of range,
// dtype or shape mismatches) panic with the corresponding sentinel errors (ErrIndex, ErrType, ErrShape,
// ErrIncomplete). Everything else is checked at execution time.

// nodeInputsAllocateBuffer holds the inputs of AllocateBuffer and AllocateBufferWithShape.
type nodeInputsAllocateBuffer struct {
	size         *Node
	dtype        dtypes.DType
	elementShape shapes.Shape
	dynamicSize  bool
}

func (ni *nodeInputsAllocateBuffer) Type() NodeType { return NodeTypeAllocateBuffer }

func (ni *nodeInputsAllocateBuffer) String() string {
	return fmt.Sprintf("%s(size=#%d, dtype=%s, elementShape=%s, dynamicSize=%v)",
		ni.Type(), ni.size.id, ni.dtype, ni.elementShape, ni.dynamicSize)
}

// AllocateBuffer creates an empty buffer with size slots, for elements of the given dtype.
// The element shape is fixed by the first BufferWrite.
//
// size must be a scalar integer. If dynamicSize is true, writing past the size grows the buffer.
func AllocateBuffer(size *Node, dtype dtypes.DType, dynamicSize bool) *Node {
	if !dtype.IsADType() {
		panic(errors.Wrapf(ErrType, "AllocateBuffer: invalid dtype %s", dtype))
	}
	return allocateBuffer(size, dtype, shapes.Invalid(), dynamicSize)
}

// AllocateBufferWithShape is like AllocateBuffer, but with the element shape fixed.
// It is required to pack buffers that may have no element written.
func AllocateBufferWithShape(size *Node, elementShape shapes.Shape, dynamicSize bool) *Node {
	if !elementShape.Ok() || !elementShape.IsFullyDefined() {
		panic(errors.Wrapf(ErrShape, "AllocateBufferWithShape: element shape %s must be fully defined", elementShape))
	}
	return allocateBuffer(size, elementShape.DType, elementShape, dynamicSize)
}

func allocateBuffer(size *Node, dtype dtypes.DType, elementShape shapes.Shape, dynamicSize bool) *Node {
	g := validateBuildingGraphFromInputs(size)
	assertIndex(NodeTypeAllocateBuffer, size)
	capacity := -1
	if value, ok := constantIndex(size); ok {
		if value < 0 {
			panic(errors.Wrapf(ErrIndex, "AllocateBuffer: negative size %d", value))
		}
		capacity = value
	}
	bufferType := &BufferType{DType: dtype, ElementShape: elementShape.Clone(), Capacity: capacity, DynamicSize: dynamicSize}
	inputs := &nodeInputsAllocateBuffer{size: size, dtype: dtype, elementShape: elementShape, dynamicSize: dynamicSize}
	return newNode(g, inputs, []*Node{size}, shapes.Invalid(), bufferType)
}

// UnpackBuffer returns a buffer with one slot per index of the leading dimension of value, all written:
// slot i holds value[i].
//
// It panics with ErrShape if value is a scalar.
func UnpackBuffer(value *Node) *Node {
	g := validateBuildingGraphFromInputs(value)
	assertTensor(NodeTypeUnpackBuffer, value)
	if value.Rank() == 0 {
		panic(errors.Wrapf(ErrShape, "UnpackBuffer: cannot unpack scalar %s", value))
	}
	bufferType := &BufferType{
		DType:        value.DType(),
		ElementShape: value.shape.ElementShape(),
		Capacity:     value.shape.Dimensions[0],
	}
	if bufferType.Capacity == shapes.UnknownDim {
		bufferType.Capacity = -1
	}
	return newNode(g, &nodeInputsUnary{op: NodeTypeUnpackBuffer, x: value}, []*Node{value}, shapes.Invalid(), bufferType)
}

// nodeInputsBuffer is used by the buffer ops that take a buffer, and optionally an index and a value.
type nodeInputsBuffer struct {
	op     NodeType
	buffer *Node
	index  *Node // Only for BufferRead and BufferWrite.
	value  *Node // Only for BufferWrite.
}

func (ni *nodeInputsBuffer) Type() NodeType { return ni.op }

func (ni *nodeInputsBuffer) String() string {
	switch {
	case ni.value != nil:
		return fmt.Sprintf("%s(buffer=#%d, index=#%d, value=#%d)", ni.op, ni.buffer.id, ni.index.id, ni.value.id)
	case ni.index != nil:
		return fmt.Sprintf("%s(buffer=#%d, index=#%d)", ni.op, ni.buffer.id, ni.index.id)
	default:
		return fmt.Sprintf("%s(buffer=#%d)", ni.op, ni.buffer.id)
	}
}

// BufferRead returns the value stored in the slot index of the buffer.
//
// It panics with ErrIndex if index is a constant known to be out of range.
// At execution time, reading an index out of range or an unwritten slot fails with ErrIndex.
func BufferRead(buffer, index *Node) *Node {
	g := validateBuildingGraphFromInputs(buffer, index)
	assertBuffer(NodeTypeBufferRead, buffer)
	assertIndex(NodeTypeBufferRead, index)
	bt := buffer.bufferType
	if value, ok := constantIndex(index); ok {
		if value < 0 || (bt.Capacity >= 0 && value >= bt.Capacity) {
			panic(errors.Wrapf(ErrIndex, "BufferRead: index %d out of range for %s", value, bt))
		}
	}
	if !bt.HasElementShape() {
		panic(errors.Wrapf(ErrIncomplete, "BufferRead: element shape of %s unknown, nothing was written to it", bt))
	}
	inputs := &nodeInputsBuffer{op: NodeTypeBufferRead, buffer: buffer, index: index}
	return newNode(g, inputs, []*Node{buffer, index}, bt.ElementShape.Clone(), nil)
}

// BufferWrite returns a new buffer with slot index set to value. The input buffer node is not affected.
//
// It panics with ErrType if value's dtype is different from the buffer's, with ErrShape if value's shape differs
// from the element shape already established, and with ErrIndex if index is a constant known to be out of range.
// At execution time, writing out of range (if the buffer is not dynamically sized) or writing a slot
// already written fails with ErrIndex.
func BufferWrite(buffer, index, value *Node) *Node {
	g := validateBuildingGraphFromInputs(buffer, index, value)
	assertBuffer(NodeTypeBufferWrite, buffer)
	assertIndex(NodeTypeBufferWrite, index)
	assertTensor(NodeTypeBufferWrite, value)
	bt := buffer.bufferType
	if value.DType() != bt.DType {
		panic(errors.Wrapf(ErrType, "BufferWrite: cannot write %s to %s", value.shape, bt))
	}
	if bt.HasElementShape() && !bt.ElementShape.Equal(value.shape) {
		panic(errors.Wrapf(ErrShape, "BufferWrite: cannot write %s to %s", value.shape, bt))
	}
	if !value.shape.IsFullyDefined() {
		panic(errors.Wrapf(ErrShape, "BufferWrite: value shape %s is not fully defined", value.shape))
	}
	if idx, ok := constantIndex(index); ok {
		if idx < 0 || (!bt.DynamicSize && bt.Capacity >= 0 && idx >= bt.Capacity) {
			panic(errors.Wrapf(ErrIndex, "BufferWrite: index %d out of range for %s", idx, bt))
		}
	}
	outputType := bt.Clone()
	outputType.ElementShape = value.shape.Clone()
	if bt.DynamicSize {
		outputType.Capacity = -1
	}
	inputs := &nodeInputsBuffer{op: NodeTypeBufferWrite, buffer: buffer, index: index, value: value}
	return newNode(g, inputs, []*Node{buffer, index, value}, shapes.Invalid(), outputType)
}

// BufferPack stacks all the slots of the buffer along a new leading axis.
//
// It panics with ErrIncomplete if the element shape is not known. At execution time, packing a buffer with
// unwritten slots fails with ErrIncomplete.
func BufferPack(buffer *Node) *Node {
	g := validateBuildingGraphFromInputs(buffer)
	assertBuffer(NodeTypeBufferPack, buffer)
	bt := buffer.bufferType
	if !bt.HasElementShape() {
		panic(errors.Wrapf(ErrIncomplete, "BufferPack: element shape of %s unknown, nothing was written to it", bt))
	}
	leadingDim := bt.Capacity
	if leadingDim < 0 {
		leadingDim = shapes.UnknownDim
	}
	inputs := &nodeInputsBuffer{op: NodeTypeBufferPack, buffer: buffer}
	return newNode(g, inputs, []*Node{buffer}, bt.ElementShape.PrependDim(leadingDim), nil)
}

// BufferSize returns the current number of slots of the buffer, as a scalar of IndexDType.
//
// If the size is known at graph building time, it returns a constant.
func BufferSize(buffer *Node) *Node {
	g := validateBuildingGraphFromInputs(buffer)
	assertBuffer(NodeTypeBufferSize, buffer)
	if bt := buffer.bufferType; bt.Capacity >= 0 && !bt.DynamicSize {
		return Scalar(g, IndexDType, float64(bt.Capacity))
	}
	inputs := &nodeInputsBuffer{op: NodeTypeBufferSize, buffer: buffer}
	return newNode(g, inputs, []*Node{buffer}, scalarShape.Clone(), nil)
}

func assertBuffer(op NodeType, x *Node) {
	if !x.IsBuffer() {
		exceptions.Panicf("%s: operand %s is not a buffer", op, x)
	}
}

func assertIndex(op NodeType, x *Node) {
	if !x.shape.Ok() || !x.IsScalar() || !x.DType().IsInt() {
		exceptions.Panicf("%s: index/size %s must be a scalar integer", op, x)
	}
}

// constantIndex returns the value of the index if it's a constant.
func constantIndex(index *Node) (int, bool) {
	value, ok := ConstantValue(index)
	if !ok {
		return 0, false
	}
	idx, err := scalarIndex(value)
	return idx, err == nil
}
