// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/funcops/pkg/core/seqbuf"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/support/sets"
	"github.com/gomlx/funcops/pkg/support/xslices"
	"github.com/gomlx/funcops/pkg/support/xsync"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// LoopTrace is the record of one execution of a While loop, created when LoopConfig.RetainForReverse is set.
//
// It holds the inputs and outputs (tensors or buffers) of every iteration of the body, and the values captured
// by the loop closures. A reverse pass uses it to compute gradients (see LoopTrace.Reverse), and any iteration
// can be recomputed with LoopTrace.Replay.
//
// If the loop was configured with AllowMemorySpill, the retained tensors are stored in files, and read back on
// access: call LoopTrace.Release when done with the trace to remove them.
type LoopTrace struct {
	node   *Node
	config LoopConfig

	captured       []*Node
	capturedValues []any

	mu         sync.Mutex
	iterations []*iterationRecord

	// Asynchronous retention work: at most config.ParallelIterations in flight.
	spill     *spillStore
	semaphore *xsync.Semaphore
	group     errgroup.Group

	duration time.Duration
	released bool
}

type iterationRecord struct {
	inputs, outputs []*retainedValue
}

func newLoopTrace(node *Node, config LoopConfig, capturedValues []any) (*LoopTrace, error) {
	ni := node.inputs.(*nodeInputsWhile)
	trace := &LoopTrace{
		node:           node,
		config:         config,
		captured:       ni.captured,
		capturedValues: capturedValues,
		semaphore:      xsync.NewSemaphore(config.ParallelIterations),
	}
	if config.AllowMemorySpill {
		var err error
		trace.spill, err = newSpillStore(config.SpillDir)
		if err != nil {
			return nil, err
		}
	}
	return trace, nil
}

// record retains the inputs and outputs of an iteration. The inputs of an iteration are the outputs of the
// previous one, and they share the same retained values.
//
// If spilling, the values are written to disk asynchronously: it blocks while there are already
// config.ParallelIterations iterations being spilled.
func (lt *LoopTrace) record(inputs, outputs []any) {
	retain := func(values []any) []*retainedValue {
		return xslices.Map(values, func(v any) *retainedValue { return &retainedValue{value: v} })
	}
	rec := &iterationRecord{outputs: retain(outputs)}
	lt.mu.Lock()
	iteration := len(lt.iterations)
	if iteration > 0 {
		rec.inputs = lt.iterations[iteration-1].outputs
	} else {
		rec.inputs = retain(inputs)
	}
	lt.iterations = append(lt.iterations, rec)
	lt.mu.Unlock()
	if lt.spill == nil {
		return
	}
	lt.semaphore.Acquire()
	lt.group.Go(func() error {
		defer lt.semaphore.Release()
		for _, value := range slices.Concat(rec.inputs, rec.outputs) {
			if err := value.spill(lt.spill); err != nil {
				return errors.WithMessagef(err, "loop %s, iteration %d", lt.node.Name(), iteration)
			}
		}
		return nil
	})
}

// finish waits for the pending retention work.
func (lt *LoopTrace) finish(start time.Time) error {
	err := lt.group.Wait()
	lt.duration = time.Since(start)
	klog.V(1).Infof("Loop %s finished: %d iterations in %s", lt.node.Name(), lt.NumIterations(), lt.duration)
	return err
}

// Name of the While node that created the trace.
func (lt *LoopTrace) Name() string { return lt.node.Name() }

// Config used by the loop.
func (lt *LoopTrace) Config() LoopConfig { return lt.config }

// Duration of the loop execution, including the retention work.
func (lt *LoopTrace) Duration() time.Duration { return lt.duration }

// NumIterations returns the number of iterations executed.
func (lt *LoopTrace) NumIterations() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.iterations)
}

// PeakInFlight returns the largest number of iterations being spilled at the same time.
// It's never larger than LoopConfig.ParallelIterations, and it's 0 if the loop didn't spill.
func (lt *LoopTrace) PeakInFlight() int { return lt.semaphore.Peak() }

// SpilledBytes returns the number of bytes of the tensors spilled to disk.
func (lt *LoopTrace) SpilledBytes() uint64 {
	if lt.spill == nil {
		return 0
	}
	return lt.spill.spilledBytes.Load()
}

// SpilledFiles returns the number of files written to the spill directory, one per spilled tensor.
func (lt *LoopTrace) SpilledFiles() int {
	if lt.spill == nil {
		return 0
	}
	return int(lt.spill.numFiles.Load())
}

// Memory returns the number of bytes of the retained values kept in memory.
func (lt *LoopTrace) Memory() uintptr {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	var total uintptr
	seen := sets.Make[*retainedValue]()
	for _, rec := range lt.iterations {
		for _, value := range slices.Concat(rec.inputs, rec.outputs) {
			if seen.Has(value) {
				continue
			}
			seen.Insert(value)
			total += value.inMemory()
		}
	}
	return total
}

// Captured returns the nodes of the enclosing functions used by the loop closures, and CapturedValues
// their values during the loop execution, in the same order.
func (lt *LoopTrace) Captured() []*Node { return lt.captured }

// CapturedValues returns the values of Captured nodes, during the loop execution.
func (lt *LoopTrace) CapturedValues() []any { return lt.capturedValues }

func (lt *LoopTrace) iteration(k int) (*iterationRecord, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.released {
		return nil, errors.Errorf("LoopTrace %s was released", lt.node.Name())
	}
	if k < 0 || k >= len(lt.iterations) {
		return nil, errors.Wrapf(ErrIndex, "LoopTrace %s: iteration %d out of range, loop executed %d iterations",
			lt.node.Name(), k, len(lt.iterations))
	}
	return lt.iterations[k], nil
}

func (lt *LoopTrace) load(values []*retainedValue) ([]any, error) {
	loaded := make([]any, len(values))
	for ii, value := range values {
		var err error
		loaded[ii], err = value.get(lt.spill)
		if err != nil {
			return nil, err
		}
	}
	return loaded, nil
}

// Inputs returns the state values given to the body at iteration k.
func (lt *LoopTrace) Inputs(k int) ([]any, error) {
	rec, err := lt.iteration(k)
	if err != nil {
		return nil, err
	}
	return lt.load(rec.inputs)
}

// Outputs returns the state values returned by the body at iteration k.
func (lt *LoopTrace) Outputs(k int) ([]any, error) {
	rec, err := lt.iteration(k)
	if err != nil {
		return nil, err
	}
	return lt.load(rec.outputs)
}

// Replay recomputes the body of the loop for iteration k, from its retained inputs and the captured values.
// The result is always the same as Outputs(k).
func (lt *LoopTrace) Replay(k int) ([]any, error) {
	inputs, err := lt.Inputs(k)
	if err != nil {
		return nil, err
	}
	capturedEnv := &env{values: make(map[*Node]any, len(lt.captured))}
	for ii, node := range lt.captured {
		capturedEnv.values[node] = lt.capturedValues[ii]
	}
	interp := newInterpreter(lt.node.graph)
	interp.discardTraces = true
	body := lt.node.inputs.(*nodeInputsWhile).body
	outputs, err := interp.callFunctionSafe(body, capturedEnv, inputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "LoopTrace %s: replaying iteration %d", lt.node.Name(), k)
	}
	return outputs, nil
}

// IterationVJP computes the vector-Jacobian product of one iteration of the loop body.
//
// Given the inputs and outputs of the iteration, and the gradients of the final result with respect to the
// outputs (outputGrads, one per state value), it returns the gradients with respect to the inputs (inputGrads,
// one per state value) and with respect to the captured values (capturedGrads, one per LoopTrace.Captured node).
//
// nil gradients stand for zero, and are used for non-differentiable values, like buffers and integer counters.
type IterationVJP func(iteration int, inputs, outputs []any, outputGrads []*tensors.Tensor) (
	inputGrads, capturedGrads []*tensors.Tensor, err error)

// ReverseResult holds the gradients computed by LoopTrace.Reverse.
type ReverseResult struct {
	// StateGrads are the gradients with respect to the initial state of the loop.
	StateGrads []*tensors.Tensor

	// CapturedGrads are the gradients with respect to the captured values (see LoopTrace.Captured), summed over
	// all iterations.
	CapturedGrads []*tensors.Tensor
}

// Reverse walks the iterations of the loop in reverse order, calling vjp for each, starting with seed as the
// gradients of the final state.
//
// The state gradients returned by vjp for iteration k are given as output gradients of iteration k-1. The
// gradients of the captured values are summed in reverse iteration order, so results are deterministic.
func (lt *LoopTrace) Reverse(seed []*tensors.Tensor, vjp IterationVJP) (*ReverseResult, error) {
	numState := len(lt.node.outputNodes)
	if len(seed) != numState {
		return nil, errors.Wrapf(ErrTypeMismatch, "LoopTrace %s: %d seed gradients given, but the loop has %d state values",
			lt.node.Name(), len(seed), numState)
	}
	if vjp == nil {
		return nil, errors.Errorf("LoopTrace %s: nil IterationVJP given to Reverse", lt.node.Name())
	}
	grads := seed
	capturedGrads := make([]*tensors.Tensor, len(lt.captured))
	for k := lt.NumIterations() - 1; k >= 0; k-- {
		inputs, err := lt.Inputs(k)
		if err != nil {
			return nil, err
		}
		outputs, err := lt.Outputs(k)
		if err != nil {
			return nil, err
		}
		inputGrads, iterCapturedGrads, err := vjp(k, inputs, outputs, grads)
		if err != nil {
			return nil, errors.WithMessagef(err, "LoopTrace %s: VJP of iteration %d", lt.node.Name(), k)
		}
		if len(inputGrads) != numState {
			return nil, errors.Wrapf(ErrTypeMismatch, "LoopTrace %s: VJP of iteration %d returned %d input gradients, wanted %d",
				lt.node.Name(), k, len(inputGrads), numState)
		}
		if iterCapturedGrads != nil && len(iterCapturedGrads) != len(lt.captured) {
			return nil, errors.Wrapf(ErrTypeMismatch, "LoopTrace %s: VJP of iteration %d returned %d captured gradients, wanted %d",
				lt.node.Name(), k, len(iterCapturedGrads), len(lt.captured))
		}
		for ii, grad := range iterCapturedGrads {
			capturedGrads[ii], err = accumulateGrad(capturedGrads[ii], grad)
			if err != nil {
				return nil, errors.WithMessagef(err, "LoopTrace %s: accumulating gradient of captured value #%d",
					lt.node.Name(), ii)
			}
		}
		grads = inputGrads
	}
	return &ReverseResult{StateGrads: grads, CapturedGrads: capturedGrads}, nil
}

func accumulateGrad(total, grad *tensors.Tensor) (*tensors.Tensor, error) {
	if grad == nil {
		return total, nil
	}
	if total == nil {
		return grad, nil
	}
	if !total.Shape().Equal(grad.Shape()) {
		return nil, errors.Wrapf(ErrShape, "gradient shapes differ: %s and %s", total.Shape(), grad.Shape())
	}
	return execBinary(NodeTypeAdd, total, grad, total.Shape())
}

// Release frees the retained values, and removes the spilled files. The trace can't be used afterwards.
func (lt *LoopTrace) Release() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.released {
		return
	}
	lt.released = true
	lt.iterations = nil
	if lt.spill != nil {
		_ = lt.group.Wait()
		lt.spill.release()
	}
}

// String implements fmt.Stringer.
func (lt *LoopTrace) String() string {
	spilled := ""
	if lt.spill != nil {
		spilled = fmt.Sprintf(", spilled %s", humanize.IBytes(lt.SpilledBytes()))
	}
	return fmt.Sprintf("LoopTrace(%s: %d iterations, %s in memory%s, peak in-flight %d/%d, %s)",
		lt.node.Name(), lt.NumIterations(), humanize.IBytes(uint64(lt.Memory())), spilled,
		lt.PeakInFlight(), lt.config.ParallelIterations, lt.duration)
}

// valueMemory returns the bytes used by a tensor or buffer value.
func valueMemory(value any) uintptr {
	switch v := value.(type) {
	case *tensors.Tensor:
		return v.Memory()
	case *seqbuf.Buffer:
		return v.Memory()
	}
	return 0
}
