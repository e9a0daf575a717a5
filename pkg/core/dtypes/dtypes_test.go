// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"reflect"
	"testing"

	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	if MapOfNames["Float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"Float16\"] to be Float16, got %v", MapOfNames["Float16"])
	}
	if MapOfNames["float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"float16\"] to be Float16, got %v", MapOfNames["float16"])
	}
	if MapOfNames["f32"] != Float32 {
		t.Fatalf("expected MapOfNames[\"f32\"] to be Float32, got %v", MapOfNames["f32"])
	}
	if _, err := FromName("complex64"); err == nil {
		t.Fatal("expected FromName(\"complex64\") to fail")
	}
	if dtype, err := FromName("INT32"); err != nil || dtype != Int32 {
		t.Fatalf("expected FromName(\"INT32\") to be Int32, got %v (err=%v)", dtype, err)
	}
}

func TestFromGoType(t *testing.T) {
	if FromGenericsType[float16.Float16]() != Float16 {
		t.Fatal("expected float16.Float16 to map to Float16")
	}
	if FromGoType(reflect.TypeOf(int32(0))) != Int32 {
		t.Fatal("expected int32 to map to Int32")
	}
	if FromAny("string") != InvalidDType {
		t.Fatal("expected string to map to InvalidDType")
	}
	for _, dtype := range []DType{Bool, Int32, Int64, Float16, Float32, Float64} {
		if FromGoType(dtype.GoType()) != dtype {
			t.Errorf("GoType round trip failed for %s", dtype)
		}
	}
	if Float16.Size() != 2 || Float64.Memory() != 8 {
		t.Fatalf("unexpected sizes: Float16=%d, Float64=%d", Float16.Size(), Float64.Memory())
	}
}
