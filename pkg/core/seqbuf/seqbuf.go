// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package seqbuf implements Buffer, a persistent, randomly indexable sequence of tensors where each
// slot can be written once.
//
// A Buffer is a value: Write returns a new Buffer and leaves the receiver untouched, so every
// snapshot can be safely shared (e.g.: carried across the iterations of a loop, or retained for a
// later reverse pass), and concurrent readers need no locking.
//
// Slots are stored in fixed size chunks. A Write copies only the chunk it modifies and the list of
// chunk pointers; all other chunks are shared with the previous snapshot.
//
// Typical usage:
//
//	elems := must.M1(seqbuf.Unpack(tensors.FromValue([]float32{1, 2, 3})))
//	out := must.M1(seqbuf.Allocate(dtypes.Float32, elems.Size(), false))
//	for i := range elems.Size() {
//		x := must.M1(elems.Read(i))
//		out = must.M1(out.Write(i, x))
//	}
//	packed := must.M1(out.Pack())
package seqbuf

import (
	"fmt"
	"iter"

	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/pkg/errors"
)

var (
	// ErrIndex is returned when reading or writing an index outside of [0, capacity), reading a slot not yet
	// written, or writing a slot already written.
	ErrIndex = errors.New("sequence buffer index error")

	// ErrType is returned when writing a value whose dtype differs from the buffer's element dtype.
	ErrType = errors.New("sequence buffer element type mismatch")

	// ErrShape is returned when unpacking a scalar, or writing a value whose shape differs from the
	// shape of the elements previously written.
	ErrShape = errors.New("sequence buffer shape error")

	// ErrIncomplete is returned when packing a buffer with unwritten slots.
	ErrIncomplete = errors.New("sequence buffer incomplete")
)

const (
	chunkBits = 5
	chunkSize = 1 << chunkBits
	chunkMask = chunkSize - 1
)

type chunk [chunkSize]*tensors.Tensor

// Buffer is an immutable snapshot of a sequence of slots, each either empty or holding a tensor.
//
// All written tensors share the element dtype and the element shape. The element shape is fixed by
// Unpack, AllocateWithShape or by the first Write.
type Buffer struct {
	dtype        dtypes.DType
	elementShape shapes.Shape // Invalid until known.
	capacity     int
	dynamicSize  bool
	numWritten   int
	chunks       []*chunk // nil entries are chunks with no written slots.
}

// Allocate returns an empty Buffer with capacity slots for elements of the given dtype.
//
// If dynamicSize is true, writing past the capacity grows it instead of failing.
func Allocate(dtype dtypes.DType, capacity int, dynamicSize bool) (*Buffer, error) {
	if !dtype.IsADType() {
		return nil, errors.Wrapf(ErrType, "seqbuf.Allocate: invalid dtype %s", dtype)
	}
	if capacity < 0 {
		return nil, errors.Wrapf(ErrIndex, "seqbuf.Allocate: negative capacity %d", capacity)
	}
	return &Buffer{
		dtype:        dtype,
		elementShape: shapes.Invalid(),
		capacity:     capacity,
		dynamicSize:  dynamicSize,
		chunks:       make([]*chunk, numChunks(capacity)),
	}, nil
}

// AllocateWithShape is like Allocate, but it also fixes the shape of the elements, which is required to
// Pack a buffer with zero capacity.
func AllocateWithShape(elementShape shapes.Shape, capacity int, dynamicSize bool) (*Buffer, error) {
	b, err := Allocate(elementShape.DType, capacity, dynamicSize)
	if err != nil {
		return nil, err
	}
	if !elementShape.IsFullyDefined() {
		return nil, errors.Wrapf(ErrShape, "seqbuf.AllocateWithShape: element shape %s is not fully defined", elementShape)
	}
	b.elementShape = elementShape.Clone()
	return b, nil
}

// Unpack returns a Buffer with one slot per index of the leading dimension of value, all written.
// Slot i holds value[i].
//
// It fails with ErrShape if value is a scalar.
func Unpack(value *tensors.Tensor) (*Buffer, error) {
	if err := value.CheckValid(); err != nil {
		return nil, errors.WithMessage(err, "seqbuf.Unpack")
	}
	if value.Rank() == 0 {
		return nil, errors.Wrapf(ErrShape, "seqbuf.Unpack: cannot unpack scalar of shape %s", value.Shape())
	}
	parts, err := tensors.Unstack(value)
	if err != nil {
		return nil, errors.WithMessage(err, "seqbuf.Unpack")
	}
	b, err := AllocateWithShape(value.Shape().ElementShape(), len(parts), false)
	if err != nil {
		return nil, err
	}
	for ii, part := range parts {
		c := b.chunks[ii>>chunkBits]
		if c == nil {
			c = new(chunk)
			b.chunks[ii>>chunkBits] = c
		}
		c[ii&chunkMask] = part
	}
	b.numWritten = len(parts)
	return b, nil
}

func numChunks(capacity int) int {
	return (capacity + chunkMask) >> chunkBits
}

// DType of the elements of the buffer.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Size returns the current capacity of the buffer: the number of slots, written or not.
func (b *Buffer) Size() int { return b.capacity }

// DynamicSize returns whether the buffer grows when written past its capacity.
func (b *Buffer) DynamicSize() bool { return b.dynamicSize }

// NumWritten returns the number of slots written.
func (b *Buffer) NumWritten() int { return b.numWritten }

// ElementShape returns the shape of the elements and whether it is already known.
func (b *Buffer) ElementShape() (shape shapes.Shape, known bool) {
	return b.elementShape, b.elementShape.Ok()
}

func (b *Buffer) slot(index int) *tensors.Tensor {
	c := b.chunks[index>>chunkBits]
	if c == nil {
		return nil
	}
	return c[index&chunkMask]
}

// IsWritten returns whether the slot at index is written. It returns false for indices out of range.
func (b *Buffer) IsWritten(index int) bool {
	if index < 0 || index >= b.capacity {
		return false
	}
	return b.slot(index) != nil
}

// Read returns the tensor stored at index.
//
// It fails with ErrIndex if index is out of [0, Size()) or if the slot hasn't been written.
func (b *Buffer) Read(index int) (*tensors.Tensor, error) {
	if index < 0 || index >= b.capacity {
		return nil, errors.Wrapf(ErrIndex, "seqbuf.Read: index %d out of range for buffer of size %d", index, b.capacity)
	}
	value := b.slot(index)
	if value == nil {
		return nil, errors.Wrapf(ErrIndex, "seqbuf.Read: slot %d of buffer of size %d was not written", index, b.capacity)
	}
	return value, nil
}

// Write returns a new Buffer with the slot at index set to value. The receiver is not changed.
//
// It fails with:
//
//   - ErrIndex if index is negative, if index >= Size() and the buffer is not dynamically sized, or if the
//     slot was already written in this snapshot.
//   - ErrType if the value's dtype is not the buffer's dtype.
//   - ErrShape if the value's shape differs from the element shape previously established.
func (b *Buffer) Write(index int, value *tensors.Tensor) (*Buffer, error) {
	if err := value.CheckValid(); err != nil {
		return nil, errors.WithMessage(err, "seqbuf.Write")
	}
	if index < 0 || (index >= b.capacity && !b.dynamicSize) {
		return nil, errors.Wrapf(ErrIndex, "seqbuf.Write: index %d out of range for buffer of size %d", index, b.capacity)
	}
	if value.DType() != b.dtype {
		return nil, errors.Wrapf(ErrType, "seqbuf.Write: cannot write value of dtype %s to buffer of %s", value.DType(), b.dtype)
	}
	if b.elementShape.Ok() && !b.elementShape.Equal(value.Shape()) {
		return nil, errors.Wrapf(ErrShape, "seqbuf.Write: cannot write value of shape %s to buffer of elements shaped %s",
			value.Shape(), b.elementShape)
	}
	if b.IsWritten(index) {
		return nil, errors.Wrapf(ErrIndex, "seqbuf.Write: slot %d was already written", index)
	}

	newB := &Buffer{
		dtype:        b.dtype,
		elementShape: b.elementShape,
		capacity:     b.capacity,
		dynamicSize:  b.dynamicSize,
		numWritten:   b.numWritten + 1,
	}
	if !newB.elementShape.Ok() {
		newB.elementShape = value.Shape().Clone()
	}
	if index >= newB.capacity {
		newB.capacity = index + 1
	}
	newB.chunks = make([]*chunk, numChunks(newB.capacity))
	copy(newB.chunks, b.chunks)
	chunkIdx := index >> chunkBits
	newChunk := new(chunk)
	if oldChunk := newB.chunks[chunkIdx]; oldChunk != nil {
		*newChunk = *oldChunk
	}
	newChunk[index&chunkMask] = value
	newB.chunks[chunkIdx] = newChunk
	return newB, nil
}

// Pack stacks slots 0 to Size()-1 into a tensor, along a new leading axis.
//
// It fails with ErrIncomplete if any slot is unwritten, or if the buffer is empty and its element
// shape is unknown.
func (b *Buffer) Pack() (*tensors.Tensor, error) {
	if b.numWritten != b.capacity {
		for ii := range b.capacity {
			if b.slot(ii) == nil {
				return nil, errors.Wrapf(ErrIncomplete, "seqbuf.Pack: slot %d of %d not written", ii, b.capacity)
			}
		}
	}
	if !b.elementShape.Ok() {
		return nil, errors.Wrapf(ErrIncomplete, "seqbuf.Pack: empty buffer of %s with unknown element shape", b.dtype)
	}
	parts := make([]*tensors.Tensor, b.capacity)
	for ii := range parts {
		parts[ii] = b.slot(ii)
	}
	packed, err := tensors.StackWithShape(b.elementShape, parts)
	if err != nil {
		return nil, errors.WithMessage(err, "seqbuf.Pack")
	}
	return packed, nil
}

// Slots iterates over the written slots, in index order.
func (b *Buffer) Slots() iter.Seq2[int, *tensors.Tensor] {
	return func(yield func(int, *tensors.Tensor) bool) {
		for ii := range b.capacity {
			value := b.slot(ii)
			if value == nil {
				continue
			}
			if !yield(ii, value) {
				return
			}
		}
	}
}

// Memory returns the number of bytes used by the written slots.
// Slots shared with other snapshots are counted in each snapshot.
func (b *Buffer) Memory() uintptr {
	var total uintptr
	for _, value := range b.Slots() {
		total += value.Memory()
	}
	return total
}

// String implements fmt.Stringer.
func (b *Buffer) String() string {
	dynamic := ""
	if b.dynamicSize {
		dynamic = ", dynamic"
	}
	elementShape := "?"
	if b.elementShape.Ok() {
		elementShape = b.elementShape.String()
	}
	return fmt.Sprintf("SequenceBuffer[%s, size=%d, written=%d%s]", elementShape, b.capacity, b.numWritten, dynamic)
}
