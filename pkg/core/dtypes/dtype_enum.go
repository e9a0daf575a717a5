// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import "strconv"

// DType is an enum that represents the data type of the elements of a tensor, a graph node or
// of a sequence buffer slot.
//
// The numeric values follow the PJRT buffer type numbering, so they are stable across versions.
type DType int32

const (
	// InvalidDType is the zero value, used to flag missing or undefined dtypes.
	InvalidDType DType = 0

	// Bool is a two-state boolean.
	Bool DType = 1

	// Int32 is a signed 32 bits integer.
	Int32 DType = 4

	// Int64 is a signed 64 bits integer.
	Int64 DType = 5

	// Float16 is the IEEE half precision float, stored as github.com/x448/float16.Float16.
	Float16 DType = 10

	// Float32 is the IEEE single precision float.
	Float32 DType = 11

	// Float64 is the IEEE double precision float.
	Float64 DType = 12
)

// Aliases.
const (
	F16 = Float16
	F32 = Float32
	F64 = Float64
	S32 = Int32
	S64 = Int64
)

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int32:        "Int32",
	Int64:        "Int64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
}

// MapOfNames maps the names (and its lower-case version) to the corresponding DType.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"Int32":        Int32,
	"Int64":        Int64,
	"Float16":      Float16,
	"Float32":      Float32,
	"Float64":      Float64,
	"F16":          Float16,
	"F32":          Float32,
	"F64":          Float64,
	"S32":          Int32,
	"S64":          Int64,
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "DType(" + strconv.Itoa(int(dtype)) + ")"
}

// IsADType returns whether dtype is one of the values known to this package.
func (dtype DType) IsADType() bool {
	_, found := dtypeNames[dtype]
	return found && dtype != InvalidDType
}
