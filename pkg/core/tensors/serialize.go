// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"encoding/gob"
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/pkg/errors"
)

// GobSerialize Tensor in binary format.
//
// It returns an error for I/O errors or invalid tensors.
func (t *Tensor) GobSerialize(encoder *gob.Encoder) error {
	if err := t.CheckValid(); err != nil {
		return err
	}
	if err := t.shape.GobSerialize(encoder); err != nil {
		return err
	}
	if err := encoder.Encode(t.flat); err != nil {
		return errors.Wrapf(err, "failed to write tensor data")
	}
	return nil
}

// GobDeserialize a Tensor from the reader.
func GobDeserialize(decoder *gob.Decoder) (*Tensor, error) {
	shape, err := shapes.GobDeserialize(decoder)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to deserialize Tensor shape data")
	}
	flatPtrV := reflect.New(reflect.SliceOf(shape.DType.GoType()))
	if err = decoder.Decode(flatPtrV.Interface()); err != nil {
		return nil, errors.Wrapf(err, "failed to deserialize Tensor data")
	}
	flatV := flatPtrV.Elem()
	if flatV.IsNil() {
		// gob doesn't transmit empty slices.
		flatV = reflect.MakeSlice(flatV.Type(), 0, 0)
	}
	return FromShapeAndFlat(shape, flatV.Interface())
}

func humanizeBytes(n uintptr) string {
	return humanize.IBytes(uint64(n))
}
