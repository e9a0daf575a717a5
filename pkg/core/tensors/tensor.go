// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, an immutable representation of a multidimensional array.
//
// Tensors are multidimensional arrays (from scalar with 0 dimensions, to arbitrarily large dimensions), defined
// by their shape (a data type and its axes' dimensions) and their actual content.
//
// They are the values fed to and returned from the execution of a computation graph, and the values stored
// in the slots of a sequence buffer (see package seqbuf).
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromScalar[T dtypes.Supported](value T): creates a scalar Tensor.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]int32{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromValue[S MultiDimensionSlice](value S): Generic conversion works with the scalar supported `DType`s
//     as well as with any arbitrary multidimensional slice of them. Slices of rank > 1 must be regular, that is
//     all the sub-slices must have the same shape. Example:
//
//     t := FromValue([][]float32{{1,2}, {3, 5}, {7, 11}})`
//
//   - FromAnyValue(value any): same as FromValue but non-generic.
//
// A Tensor never changes after it is created: every operation that "modifies" a tensor returns a new one.
// This makes it safe to share tensors across goroutines and across snapshots of sequence buffers.
package tensors

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Tensor represents a multidimensional array (from scalar with 0 dimensions, to arbitrarily large dimensions),
// stored as a flat Go slice of the underlying dtype in row-major order.
type Tensor struct {
	shape shapes.Shape

	// flat is a slice of the Go type corresponding to shape.DType, with shape.Size() elements.
	// It is never modified after the Tensor is created.
	flat any
}

// MultiDimensionSlice lists the Go types a Tensor can be converted to/from. There are no other
// constraints on the values.
type MultiDimensionSlice interface {
	bool | float16.Float16 | float32 | float64 | int | int32 | int64 |
		[]bool | []float16.Float16 | []float32 | []float64 | []int | []int32 | []int64 |
		[][]bool | [][]float16.Float16 | [][]float32 | [][]float64 | [][]int | [][]int32 | [][]int64 |
		[][][]bool | [][][]float32 | [][][]float64 | [][][]int | [][][]int32 | [][][]int64
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used to store the tensor data.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Ok returns whether the tensor is valid.
func (t *Tensor) Ok() bool {
	return t != nil && t.shape.Ok() && t.flat != nil
}

// CheckValid returns an error if the tensor is nil or invalid.
func (t *Tensor) CheckValid() error {
	if t == nil {
		return errors.New("tensor is nil")
	}
	if !t.shape.Ok() || t.flat == nil {
		return errors.Errorf("tensor with shape %s is invalid", t.shape)
	}
	return nil
}

// AssertValid panics if the tensor is nil or invalid.
func (t *Tensor) AssertValid() {
	if err := t.CheckValid(); err != nil {
		panic(err)
	}
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	if !shape.IsFullyDefined() {
		exceptions.Panicf("tensors.FromShape(%s): shape is not fully defined", shape)
	}
	size := shape.Size()
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size)
	return &Tensor{shape: shape.Clone(), flat: flatV.Interface()}
}

// FromShapeAndFlat creates a tensor that takes ownership of the given flat slice, which must have the
// Go type matching shape.DType and shape.Size() elements.
//
// The caller must not modify flat afterwards.
func FromShapeAndFlat(shape shapes.Shape, flat any) (*Tensor, error) {
	if !shape.Ok() || !shape.IsFullyDefined() {
		return nil, errors.Errorf("tensors.FromShapeAndFlat(%s): invalid or not fully defined shape", shape)
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice || flatV.Type().Elem() != shape.DType.GoType() {
		return nil, errors.Errorf("tensors.FromShapeAndFlat(%s): flat data is %T, wanted []%s",
			shape, flat, shape.DType.GoType())
	}
	if flatV.Len() != shape.Size() {
		return nil, errors.Errorf("tensors.FromShapeAndFlat(%s): flat data has %d elements, wanted %d",
			shape, flatV.Len(), shape.Size())
	}
	return &Tensor{shape: shape.Clone(), flat: flat}, nil
}

// FromScalar creates a scalar tensor with the given value.
// The `DType` is inferred from the value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromAnyValue(value)
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf(
			"FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	flatV := reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), len(data), len(data))
	copyConverted(flatV, reflect.ValueOf(data))
	return &Tensor{shape: shape, flat: flatV.Interface()}
}

// FromValue returns a tensor constructed from the given multi-dimension slice (or scalar).
// If the rank of the `value` is larger than 1, the shape of all sub-slices must be the same.
//
// It panics if the shape is not regular.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is a non-generic version of FromValue.
// The input is expected to be either a scalar or a slice of slices with homogeneous dimensions.
// If the input is a tensor already, it is simply returned.
//
// It panics with an error if the value type is unsupported or the shape is not regular.
func FromAnyValue(value any) *Tensor {
	if valueT, ok := value.(*Tensor); ok {
		return valueT
	}
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	size := shape.Size()
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), 0, size)
	flatV = appendFlattened(flatV, reflect.ValueOf(value))
	return &Tensor{shape: shape, flat: flatV.Interface()}
}

// appendFlattened appends the leaf values of the multi-dimensional slice mdSlice to flatV, converting
// each element to the flat element type (needed for Go's `int`, stored as int32 or int64).
func appendFlattened(flatV reflect.Value, mdSlice reflect.Value) reflect.Value {
	if mdSlice.Kind() != reflect.Slice {
		return reflect.Append(flatV, mdSlice.Convert(flatV.Type().Elem()))
	}
	for ii := range mdSlice.Len() {
		flatV = appendFlattened(flatV, mdSlice.Index(ii))
	}
	return flatV
}

// copyConverted copies src to dst element by element, converting the element type if needed.
func copyConverted(dst, src reflect.Value) {
	if dst.Type() == src.Type() {
		reflect.Copy(dst, src)
		return
	}
	elemT := dst.Type().Elem()
	for ii := range src.Len() {
		dst.Index(ii).Set(src.Index(ii).Convert(elemT))
	}
}

func shapeForValue(v any) (shapes.Shape, error) {
	var shape shapes.Shape
	err := shapeForValueRecursive(&shape, reflect.ValueOf(v), reflect.TypeOf(v))
	return shape, err
}

func shapeForValueRecursive(shape *shapes.Shape, v reflect.Value, t reflect.Type) error {
	if t == nil {
		return errors.New("cannot convert nil to a tensor")
	}
	switch t.Kind() {
	case reflect.Slice:
		t = t.Elem()
		shape.Dimensions = append(shape.Dimensions, v.Len())
		if v.Len() == 0 {
			return errors.Errorf("value with empty slice not valid for Tensor conversion: %T -- use FromShape "+
				"for tensors with zero-dimension axes", v.Interface())
		}
		shapePrefix := shape.Clone()
		if err := shapeForValueRecursive(shape, v.Index(0), t); err != nil {
			return err
		}

		// Test that other elements have the same shape as the first one.
		for ii := 1; ii < v.Len(); ii++ {
			shapeTest := shapePrefix.Clone()
			if err := shapeForValueRecursive(&shapeTest, v.Index(ii), t); err != nil {
				return err
			}
			if !shape.Equal(shapeTest) {
				return errors.Errorf("sub-slices have irregular shapes, found shapes %q, and %q", shape, shapeTest)
			}
		}

	case reflect.Pointer:
		return errors.Errorf("cannot convert Pointer (%s) to a concrete value for tensors", t)

	default:
		shape.DType = dtypes.FromGoType(t)
		if shape.DType == dtypes.InvalidDType {
			return errors.Errorf("cannot convert type %s to a value concrete tensor type", t)
		}
	}
	return nil
}

// ConstFlatData calls accessFn with the flat data of the tensor, a slice of the Go type corresponding to the DType.
// accessFn must not modify the data, nor keep a reference to it that is modified later.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	accessFn(t.flat)
}

// CopyFlatData returns a copy of the flat data of the tensor.
//
// It panics if T doesn't match the tensor DType.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	t.AssertValid()
	if dtypes.FromGenericsType[T]() != t.DType() {
		var dummy T
		exceptions.Panicf("CopyFlatData[%T]: tensor has dtype %s", dummy, t.DType())
	}
	flatV := reflect.ValueOf(t.flat)
	out := make([]T, flatV.Len())
	copyConverted(reflect.ValueOf(out), flatV)
	return out
}

// ToScalar returns the scalar value of a tensor. It panics if the tensor is not a scalar or if T doesn't
// match its DType.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	if !t.IsScalar() {
		exceptions.Panicf("ToScalar: tensor is not a scalar, shape=%s", t.Shape())
	}
	return CopyFlatData[T](t)[0]
}

// Value returns a multidimensional slice (except if the shape is a scalar) containing a copy of the values stored
// in the tensor.
// This is expensive and usually only used for smaller tensors in tests and to print results.
func (t *Tensor) Value() any {
	t.AssertValid()
	flatV := reflect.ValueOf(t.flat)
	if t.shape.IsScalar() {
		return flatV.Index(0).Interface()
	}
	flatCopyV := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
	reflect.Copy(flatCopyV, flatV)
	if t.shape.Rank() == 1 {
		return flatCopyV.Interface()
	}
	return convertDataToSlices(flatCopyV, t.shape.Dimensions...).Interface()
}

// convertDataToSlices takes data as a flat slice and creates a multidimensional slice with the given dimensions that
// points to the given data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	strides := shapes.Make(dtypes.Bool, dimensions...).Strides()
	return createSlicesRecursively(resultT, dataV, dimensions, strides)
}

func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		return data
	}
	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)
	for ii := 0; ii < numElements; ii++ {
		subData := data.Slice(ii*strides[0], (ii+1)*strides[0])
		slice.Index(ii).Set(createSlicesRecursively(resultT.Elem(), subData, dimensions[1:], strides[1:]))
	}
	return slice
}

// Equal checks weather t == otherTensor.
// If they are the same pointer, they are considered equal.
// If the shapes are different, it returns false.
// If either side is invalid (nil), it panics.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	t0V := reflect.ValueOf(t.flat)
	t1V := reflect.ValueOf(otherTensor.flat)
	for ii := range t0V.Len() {
		if !t0V.Index(ii).Equal(t1V.Index(ii)) {
			return false
		}
	}
	return true
}

// InDelta checks weather Abs(t - otherTensor) < delta for every element.
// If the shapes are different, it returns false.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	t0V := reflect.ValueOf(t.flat)
	t1V := reflect.ValueOf(otherTensor.flat)
	for ii := range t0V.Len() {
		d := asFloat64(t0V.Index(ii)) - asFloat64(t1V.Index(ii))
		if d > delta || d < -delta {
			return false
		}
	}
	return true
}

func asFloat64(v reflect.Value) float64 {
	if v.Type() == float16Type {
		return float64(v.Interface().(float16.Float16).Float32())
	}
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	default:
		return v.Float()
	}
}

var float16Type = reflect.TypeOf(float16.Float16(0))

// MaxSizeToPrint is the largest tensor size printed in full by String.
const MaxSizeToPrint = 100

// String converts to string, if not too large.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	if !t.Ok() {
		return fmt.Sprintf("<invalid tensor %s>", t.shape)
	}
	if t.Size() > MaxSizeToPrint {
		return fmt.Sprintf("%s (%s)", t.shape, humanizeBytes(t.Memory()))
	}
	value := t.Value()
	if t.DType() == dtypes.Float16 {
		return fmt.Sprintf("%s: %s", t.shape, float16ToString(value))
	}
	return fmt.Sprintf("%s: %v", t.shape, value)
}

func float16ToString(value any) string {
	switch v := value.(type) {
	case float16.Float16:
		return strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32)
	default:
		rv := reflect.ValueOf(value)
		s := "["
		for ii := range rv.Len() {
			if ii > 0 {
				s += " "
			}
			s += float16ToString(rv.Index(ii).Interface())
		}
		return s + "]"
	}
}
