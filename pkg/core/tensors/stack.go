// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"reflect"

	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/pkg/errors"
)

// LeadingDimension returns the size of axis 0 of the tensor.
// It returns an error for scalars.
func (t *Tensor) LeadingDimension() (int, error) {
	if err := t.CheckValid(); err != nil {
		return 0, err
	}
	return t.shape.LeadingDimension()
}

// Unstack splits t along its leading dimension, returning one tensor per slice of axis 0.
// Each returned tensor has the shape of t without the leading axis.
//
// It returns an error for scalars. A tensor with a leading dimension of 0 returns an empty list.
func Unstack(t *Tensor) ([]*Tensor, error) {
	n, err := t.LeadingDimension()
	if err != nil {
		return nil, errors.WithMessage(err, "tensors.Unstack")
	}
	elementShape := t.shape.ElementShape()
	stride := elementShape.Size()
	flatV := reflect.ValueOf(t.flat)
	parts := make([]*Tensor, n)
	for ii := range n {
		partV := reflect.MakeSlice(flatV.Type(), stride, stride)
		reflect.Copy(partV, flatV.Slice(ii*stride, (ii+1)*stride))
		parts[ii] = &Tensor{shape: elementShape.Clone(), flat: partV.Interface()}
	}
	return parts, nil
}

// Stack concatenates the given tensors along a new leading axis. All tensors must have the same shape.
// The result has shape `[len(parts)] + parts[0].Shape().Dimensions`.
//
// Stacking an empty list requires the element shape, given by StackWithShape.
func Stack(parts []*Tensor) (*Tensor, error) {
	if len(parts) == 0 {
		return nil, errors.New("tensors.Stack: cannot infer the shape of an empty list of tensors, use StackWithShape")
	}
	if err := parts[0].CheckValid(); err != nil {
		return nil, errors.WithMessage(err, "tensors.Stack: part #0")
	}
	return StackWithShape(parts[0].shape, parts)
}

// StackWithShape is like Stack, but the element shape is given explicitly, which allows stacking an
// empty list into a tensor with leading dimension 0.
func StackWithShape(elementShape shapes.Shape, parts []*Tensor) (*Tensor, error) {
	stride := elementShape.Size()
	if stride < 0 {
		return nil, errors.Errorf("tensors.Stack: element shape %s is not fully defined", elementShape)
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(elementShape.DType.GoType()), 0, stride*len(parts))
	for ii, part := range parts {
		if err := part.CheckValid(); err != nil {
			return nil, errors.WithMessagef(err, "tensors.Stack: part #%d", ii)
		}
		if !part.shape.Equal(elementShape) {
			return nil, errors.Errorf("tensors.Stack: part #%d has shape %s, but wanted %s", ii, part.shape, elementShape)
		}
		flatV = reflect.AppendSlice(flatV, reflect.ValueOf(part.flat))
	}
	return &Tensor{shape: elementShape.PrependDim(len(parts)), flat: flatV.Interface()}, nil
}
