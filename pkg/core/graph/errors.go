// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/funcops/pkg/core/seqbuf"
	"github.com/pkg/errors"
)

// Errors raised (with panic) while building a graph, or returned by Exec when executing it.
//
// Use errors.Is to match them: they are always wrapped with the context of the failure.
var (
	// ErrIndex is raised when reading or writing a buffer slot out of range, reading an unwritten slot or
	// writing a slot twice. Same as seqbuf.ErrIndex.
	ErrIndex = seqbuf.ErrIndex

	// ErrType is raised when writing to a buffer a value with the wrong dtype. Same as seqbuf.ErrType.
	ErrType = seqbuf.ErrType

	// ErrShape is raised when unpacking a scalar, or writing to a buffer a value with a different shape than
	// the elements previously written. Same as seqbuf.ErrShape.
	ErrShape = seqbuf.ErrShape

	// ErrIncomplete is raised when packing a buffer with unwritten slots, or with an unknown element shape.
	// Same as seqbuf.ErrIncomplete.
	ErrIncomplete = seqbuf.ErrIncomplete

	// ErrTypeMismatch is raised when the loop body returns values with a different arity or types than the
	// loop state, or the loop condition doesn't return one scalar boolean.
	ErrTypeMismatch = errors.New("loop state type mismatch")

	// ErrNonTerminationGuard is returned when a loop executes more than LoopConfig.MaxIterations iterations.
	ErrNonTerminationGuard = errors.New("loop exceeded maximum number of iterations")
)
