// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Reference kernels used by the interpreter (and for constant folding): they operate on the flat data of the
// tensors, with scalars broadcast to the shape of the other operand.

// isComparison returns whether the binary op outputs booleans.
func isComparison(op NodeType) bool {
	switch op {
	case NodeTypeEqual, NodeTypeNotEqual, NodeTypeLessThan, NodeTypeLessOrEqual, NodeTypeGreaterThan,
		NodeTypeGreaterOrEqual:
		return true
	}
	return false
}

// isLogical returns whether the op only takes booleans.
func isLogical(op NodeType) bool {
	return op == NodeTypeLogicalAnd || op == NodeTypeLogicalOr || op == NodeTypeLogicalNot
}

// execBinary executes the binary op. outputShape must have been validated at graph building time.
func execBinary(op NodeType, lhs, rhs *tensors.Tensor, outputShape shapes.Shape) (*tensors.Tensor, error) {
	size := outputShape.Size()
	if size < 0 {
		// Unknown dimensions are resolved at execution time: take the larger operand.
		size = max(lhs.Size(), rhs.Size())
		outputShape = lhs.Shape().WithDType(outputShape.DType)
		if rhs.Size() > lhs.Size() {
			outputShape = rhs.Shape().WithDType(outputShape.DType)
		}
	}
	var result any
	var err error
	lhs.ConstFlatData(func(lhsFlat any) {
		rhs.ConstFlatData(func(rhsFlat any) {
			switch l := lhsFlat.(type) {
			case []int32:
				result, err = binaryNumeric(op, l, rhsFlat.([]int32), size)
			case []int64:
				result, err = binaryNumeric(op, l, rhsFlat.([]int64), size)
			case []float32:
				result, err = binaryNumeric(op, l, rhsFlat.([]float32), size)
			case []float64:
				result, err = binaryNumeric(op, l, rhsFlat.([]float64), size)
			case []float16.Float16:
				result, err = binaryNumeric(op, float16ToFloat32(l), float16ToFloat32(rhsFlat.([]float16.Float16)), size)
				if f32, ok := result.([]float32); ok {
					result = float32ToFloat16(f32)
				}
			case []bool:
				result, err = binaryBool(op, l, rhsFlat.([]bool), size)
			default:
				err = errors.Errorf("%s not implemented for dtype %s", op, lhs.DType())
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return tensors.FromShapeAndFlat(outputShape, result)
}

// broadcastAt returns the element ii of flat, or its only element if it holds a scalar.
func broadcastAt[T any](flat []T, ii int) T {
	if len(flat) == 1 {
		return flat[0]
	}
	return flat[ii]
}

func binaryNumeric[T dtypes.Number](op NodeType, lhs, rhs []T, size int) (any, error) {
	if isComparison(op) {
		output := make([]bool, size)
		for ii := range output {
			l, r := broadcastAt(lhs, ii), broadcastAt(rhs, ii)
			switch op {
			case NodeTypeEqual:
				output[ii] = l == r
			case NodeTypeNotEqual:
				output[ii] = l != r
			case NodeTypeLessThan:
				output[ii] = l < r
			case NodeTypeLessOrEqual:
				output[ii] = l <= r
			case NodeTypeGreaterThan:
				output[ii] = l > r
			case NodeTypeGreaterOrEqual:
				output[ii] = l >= r
			}
		}
		return output, nil
	}

	output := make([]T, size)
	for ii := range output {
		l, r := broadcastAt(lhs, ii), broadcastAt(rhs, ii)
		switch op {
		case NodeTypeAdd:
			output[ii] = l + r
		case NodeTypeSub:
			output[ii] = l - r
		case NodeTypeMul:
			output[ii] = l * r
		case NodeTypeDiv:
			if r == 0 && isInteger[T]() {
				return nil, errors.Errorf("integer division by zero")
			}
			output[ii] = l / r
		case NodeTypeMax:
			output[ii] = max(l, r)
		case NodeTypeMin:
			output[ii] = min(l, r)
		default:
			return nil, errors.Errorf("%s is not a numeric binary operation", op)
		}
	}
	return output, nil
}

func isInteger[T dtypes.Number]() bool {
	var one T = 1
	return one/2 == 0
}

func binaryBool(op NodeType, lhs, rhs []bool, size int) (any, error) {
	output := make([]bool, size)
	for ii := range output {
		l, r := broadcastAt(lhs, ii), broadcastAt(rhs, ii)
		switch op {
		case NodeTypeLogicalAnd:
			output[ii] = l && r
		case NodeTypeLogicalOr:
			output[ii] = l || r
		case NodeTypeEqual:
			output[ii] = l == r
		case NodeTypeNotEqual:
			output[ii] = l != r
		default:
			return nil, errors.Errorf("%s not implemented for booleans", op)
		}
	}
	return output, nil
}

// execUnary executes Neg, Abs and LogicalNot.
func execUnary(op NodeType, operand *tensors.Tensor) (*tensors.Tensor, error) {
	var result any
	var err error
	operand.ConstFlatData(func(flat any) {
		switch f := flat.(type) {
		case []int32:
			result, err = unarySigned(op, f)
		case []int64:
			result, err = unarySigned(op, f)
		case []float32:
			result, err = unarySigned(op, f)
		case []float64:
			result, err = unarySigned(op, f)
		case []float16.Float16:
			// Negation and absolute value only touch the sign bit.
			output := make([]float16.Float16, len(f))
			for ii, v := range f {
				switch op {
				case NodeTypeNeg:
					output[ii] = v ^ 0x8000
				case NodeTypeAbs:
					output[ii] = v &^ 0x8000
				default:
					err = errors.Errorf("%s not implemented for dtype %s", op, operand.DType())
				}
			}
			result = output
		case []bool:
			if op != NodeTypeLogicalNot {
				err = errors.Errorf("%s not implemented for booleans", op)
				return
			}
			output := make([]bool, len(f))
			for ii, v := range f {
				output[ii] = !v
			}
			result = output
		}
	})
	if err != nil {
		return nil, err
	}
	return tensors.FromShapeAndFlat(operand.Shape(), result)
}

func unarySigned[T constraints.Signed | constraints.Float](op NodeType, flat []T) (any, error) {
	output := make([]T, len(flat))
	for ii, v := range flat {
		switch op {
		case NodeTypeNeg:
			output[ii] = -v
		case NodeTypeAbs:
			if v < 0 {
				v = -v
			}
			output[ii] = v
		default:
			return nil, errors.Errorf("%s not implemented for numbers", op)
		}
	}
	return output, nil
}

// execConvertDType converts the tensor to the given dtype.
//
// Values are converted directly with Go conversions, so integers never go through a float: narrowing an
// integer wraps around, as in Go.
func execConvertDType(operand *tensors.Tensor, dtype dtypes.DType) (*tensors.Tensor, error) {
	if operand.DType() == dtype {
		return operand, nil
	}
	var result any
	switch dtype {
	case dtypes.Bool:
		result = toBool(operand)
	case dtypes.Int32:
		result = convertTo[int32](operand)
	case dtypes.Int64:
		result = convertTo[int64](operand)
	case dtypes.Float32:
		result = convertTo[float32](operand)
	case dtypes.Float64:
		result = convertTo[float64](operand)
	case dtypes.Float16:
		result = float32ToFloat16(convertTo[float32](operand))
	default:
		return nil, errors.Errorf("ConvertDType to %s not implemented", dtype)
	}
	return tensors.FromShapeAndFlat(operand.Shape().WithDType(dtype), result)
}

// convertTo returns the flat values of t converted to To.
func convertTo[To dtypes.Number](t *tensors.Tensor) []To {
	var values []To
	t.ConstFlatData(func(flat any) {
		switch f := flat.(type) {
		case []bool:
			values = make([]To, len(f))
			for ii, v := range f {
				if v {
					values[ii] = 1
				}
			}
		case []int32:
			values = convertNumbers[int32, To](f)
		case []int64:
			values = convertNumbers[int64, To](f)
		case []float32:
			values = convertNumbers[float32, To](f)
		case []float64:
			values = convertNumbers[float64, To](f)
		case []float16.Float16:
			values = convertNumbers[float32, To](float16ToFloat32(f))
		default:
			exceptions.Panicf("convertTo: unsupported flat type %T", flat)
		}
	})
	return values
}

func convertNumbers[From, To dtypes.Number](flat []From) []To {
	output := make([]To, len(flat))
	for ii, v := range flat {
		output[ii] = To(v)
	}
	return output
}

func toBool(t *tensors.Tensor) []bool {
	return xslices.Map(convertTo[float64](t), func(v float64) bool { return v != 0 })
}

func float16ToFloat32(flat []float16.Float16) []float32 {
	output := make([]float32, len(flat))
	for ii, v := range flat {
		output[ii] = v.Float32()
	}
	return output
}

func float32ToFloat16(flat []float32) []float16.Float16 {
	output := make([]float16.Float16, len(flat))
	for ii, v := range flat {
		output[ii] = float16.Fromfloat32(v)
	}
	return output
}

// scalarIndex returns the value of a scalar integer tensor used as index or size.
func scalarIndex(t *tensors.Tensor) (int, error) {
	if !t.IsScalar() || !t.DType().IsInt() {
		return 0, errors.Errorf("index must be a scalar integer, got %s", t.Shape())
	}
	return int(convertTo[int64](t)[0]), nil
}
