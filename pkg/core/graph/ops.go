// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
)

// nodeInputsConstant holds the tensor of a Const node.
type nodeInputsConstant struct {
	tensor *tensors.Tensor
}

func (ni *nodeInputsConstant) Type() NodeType { return NodeTypeConstant }

func (ni *nodeInputsConstant) String() string {
	return fmt.Sprintf("%s(%s)", ni.Type(), ni.tensor)
}

// Const creates a constant node in the current function of g, with the given value.
// The value can be a *tensors.Tensor or anything accepted by tensors.FromAnyValue.
func Const(g *Graph, value any) *Node {
	g.AssertBuilding()
	var t *tensors.Tensor
	if tt, ok := value.(*tensors.Tensor); ok {
		t = tt
	} else {
		t = tensors.FromAnyValue(value)
	}
	t.AssertValid()
	return newNode(g, &nodeInputsConstant{tensor: t}, nil, t.Shape(), nil)
}

// Scalar returns a constant scalar with the given dtype and value, converted from float64.
func Scalar(g *Graph, dtype dtypes.DType, value float64) *Node {
	t, err := execConvertDType(tensors.FromScalar(value), dtype)
	if err != nil {
		panic(err)
	}
	return Const(g, t)
}

// ConstantValue returns the tensor of a constant node, and whether it is a constant.
func ConstantValue(n *Node) (*tensors.Tensor, bool) {
	if ni, ok := n.inputs.(*nodeInputsConstant); ok {
		return ni.tensor, true
	}
	return nil, false
}

// nodeInputsUnary is used by unary ops.
type nodeInputsUnary struct {
	op NodeType
	x  *Node
}

func (ni *nodeInputsUnary) Type() NodeType { return ni.op }

func (ni *nodeInputsUnary) String() string {
	return fmt.Sprintf("%s(x=#%d)", ni.op, ni.x.id)
}

// Identity returns a node with the same value as x. It works for tensors and buffers.
func Identity(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return newNode(g, &nodeInputsUnary{op: NodeTypeIdentity, x: x}, []*Node{x}, x.shape, x.bufferType)
}

func unaryOp(op NodeType, x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	assertTensor(op, x)
	if isLogical(op) != (x.DType() == dtypes.Bool) {
		exceptions.Panicf("%s: invalid dtype %s for operand %s", op, x.DType(), x)
	}
	if value, ok := ConstantValue(x); ok {
		if folded, err := execUnary(op, value); err == nil {
			return Const(g, folded)
		}
	}
	return newNode(g, &nodeInputsUnary{op: op, x: x}, []*Node{x}, x.shape.Clone(), nil)
}

// Neg returns -x.
func Neg(x *Node) *Node { return unaryOp(NodeTypeNeg, x) }

// Abs returns |x|.
func Abs(x *Node) *Node { return unaryOp(NodeTypeAbs, x) }

// LogicalNot returns !x, for boolean x.
func LogicalNot(x *Node) *Node { return unaryOp(NodeTypeLogicalNot, x) }

// nodeInputsConvertDType holds the inputs of ConvertDType.
type nodeInputsConvertDType struct {
	x     *Node
	dtype dtypes.DType
}

func (ni *nodeInputsConvertDType) Type() NodeType { return NodeTypeConvertDType }

func (ni *nodeInputsConvertDType) String() string {
	return fmt.Sprintf("%s(x=#%d, dtype=%s)", ni.Type(), ni.x.id, ni.dtype)
}

// ConvertDType converts x to the given dtype. If x already has the dtype, it is returned.
func ConvertDType(x *Node, dtype dtypes.DType) *Node {
	g := validateBuildingGraphFromInputs(x)
	assertTensor(NodeTypeConvertDType, x)
	if !dtype.IsADType() {
		exceptions.Panicf("ConvertDType: invalid dtype %s", dtype)
	}
	if x.DType() == dtype {
		return x
	}
	if value, ok := ConstantValue(x); ok {
		if folded, err := execConvertDType(value, dtype); err == nil {
			return Const(g, folded)
		}
	}
	return newNode(g, &nodeInputsConvertDType{x: x, dtype: dtype}, []*Node{x}, x.shape.WithDType(dtype), nil)
}

// nodeInputsBinary is used by binary ops.
type nodeInputsBinary struct {
	op       NodeType
	lhs, rhs *Node
}

func (ni *nodeInputsBinary) Type() NodeType { return ni.op }

func (ni *nodeInputsBinary) String() string {
	return fmt.Sprintf("%s(lhs=#%d, rhs=#%d)", ni.op, ni.lhs.id, ni.rhs.id)
}

// binaryOp creates the binary node. Operands must have the same dtype, and the same shape, or one of them must be
// a scalar, which is broadcast.
//
// Binary ops on constants are folded into a constant.
func binaryOp(op NodeType, lhs, rhs *Node) *Node {
	g := validateBuildingGraphFromInputs(lhs, rhs)
	assertTensor(op, lhs)
	assertTensor(op, rhs)
	if lhs.DType() != rhs.DType() {
		exceptions.Panicf("%s: operands have different dtypes: %s and %s", op, lhs.shape, rhs.shape)
	}
	dtype := lhs.DType()
	if isLogical(op) && dtype != dtypes.Bool {
		exceptions.Panicf("%s: operands must be booleans, got %s", op, dtype)
	}
	if !isLogical(op) && !isComparison(op) && dtype == dtypes.Bool {
		exceptions.Panicf("%s: not defined for booleans", op)
	}
	var outputShape shapes.Shape
	switch {
	case lhs.shape.Compatible(rhs.shape):
		outputShape = lhs.shape.Clone()
	case lhs.IsScalar():
		outputShape = rhs.shape.Clone()
	case rhs.IsScalar():
		outputShape = lhs.shape.Clone()
	default:
		exceptions.Panicf("%s: incompatible shapes %s and %s: they must be equal or one must be a scalar",
			op, lhs.shape, rhs.shape)
	}
	if isComparison(op) {
		outputShape.DType = dtypes.Bool
	}
	lhsValue, lhsIsConst := ConstantValue(lhs)
	rhsValue, rhsIsConst := ConstantValue(rhs)
	if lhsIsConst && rhsIsConst {
		if folded, err := execBinary(op, lhsValue, rhsValue, outputShape); err == nil {
			return Const(g, folded)
		}
	}
	return newNode(g, &nodeInputsBinary{op: op, lhs: lhs, rhs: rhs}, []*Node{lhs, rhs}, outputShape, nil)
}

// Add returns lhs + rhs.
func Add(lhs, rhs *Node) *Node { return binaryOp(NodeTypeAdd, lhs, rhs) }

// Sub returns lhs - rhs.
func Sub(lhs, rhs *Node) *Node { return binaryOp(NodeTypeSub, lhs, rhs) }

// Mul returns lhs * rhs.
func Mul(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMul, lhs, rhs) }

// Div returns lhs / rhs. Integer division by zero fails at execution time.
func Div(lhs, rhs *Node) *Node { return binaryOp(NodeTypeDiv, lhs, rhs) }

// Max returns the element-wise maximum.
func Max(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMax, lhs, rhs) }

// Min returns the element-wise minimum.
func Min(lhs, rhs *Node) *Node { return binaryOp(NodeTypeMin, lhs, rhs) }

// Equal returns lhs == rhs, element-wise.
func Equal(lhs, rhs *Node) *Node { return binaryOp(NodeTypeEqual, lhs, rhs) }

// NotEqual returns lhs != rhs, element-wise.
func NotEqual(lhs, rhs *Node) *Node { return binaryOp(NodeTypeNotEqual, lhs, rhs) }

// LessThan returns lhs < rhs, element-wise.
func LessThan(lhs, rhs *Node) *Node { return binaryOp(NodeTypeLessThan, lhs, rhs) }

// LessOrEqual returns lhs <= rhs, element-wise.
func LessOrEqual(lhs, rhs *Node) *Node { return binaryOp(NodeTypeLessOrEqual, lhs, rhs) }

// GreaterThan returns lhs > rhs, element-wise.
func GreaterThan(lhs, rhs *Node) *Node { return binaryOp(NodeTypeGreaterThan, lhs, rhs) }

// GreaterOrEqual returns lhs >= rhs, element-wise.
func GreaterOrEqual(lhs, rhs *Node) *Node { return binaryOp(NodeTypeGreaterOrEqual, lhs, rhs) }

// LogicalAnd returns lhs && rhs, for booleans.
func LogicalAnd(lhs, rhs *Node) *Node { return binaryOp(NodeTypeLogicalAnd, lhs, rhs) }

// LogicalOr returns lhs || rhs, for booleans.
func LogicalOr(lhs, rhs *Node) *Node { return binaryOp(NodeTypeLogicalOr, lhs, rhs) }

// Square returns x*x.
func Square(x *Node) *Node { return Mul(x, x) }

// OnePlus returns x+1.
func OnePlus(x *Node) *Node { return Add(x, Scalar(x.graph, x.DType(), 1)) }

// validateBuildingGraphFromInputs checks that all inputs are valid and from the same graph, and that the graph
// is still being built. It returns the graph.
func validateBuildingGraphFromInputs(inputs ...*Node) (g *Graph) {
	if len(inputs) == 0 {
		exceptions.Panicf("no input nodes given")
	}
	for ii, n := range inputs {
		if n == nil {
			exceptions.Panicf("input #%d is nil", ii)
		}
		n.AssertValid()
		if g == nil {
			g = n.graph
		} else if n.graph != g {
			exceptions.Panicf("combining nodes from different graphs not allowed: input #%d is from graph %q, "+
				"previous inputs are from graph %q", ii, n.graph.name, g.name)
		}
	}
	g.AssertBuilding()
	return
}

func assertTensor(op NodeType, x *Node) {
	if !x.shape.Ok() {
		exceptions.Panicf("%s: operand %s is not a tensor", op, x)
	}
}
