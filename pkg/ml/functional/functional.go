// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package functional implements higher-order combinators over the leading axis of a tensor: Foldl, Foldr,
// Map and Scan.
//
// Each combinator builds a While loop over a sequence buffer holding the slices of its input, so the
// whole computation is part of the graph, and it can be traced for a reverse pass (see graph.LoopTrace).
//
// The combinators return a Config for optional settings, and the result is built with Config.Done. Example:
//
//	sum := functional.Foldl(x, func(acc, elem *Node) *Node { return Add(acc, elem) }).Done()
//	running := functional.Scan(x, Add).Initializer(Scalar(g, dtypes.Float32, 10)).Done()
//	squares := functional.Map(x, Square).ParallelIterations(32).Done()
package functional

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/dtypes"
	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrNotCallable is raised (with panic) when a combinator is given a nil function.
var ErrNotCallable = errors.New("fn must be callable")

// AccumulatorFn is the function applied by Foldl, Foldr and Scan: it takes the accumulated value and the
// next element, and returns the new accumulated value.
type AccumulatorFn func(acc, elem *Node) *Node

// ElementFn is the function applied by Map to each element.
type ElementFn func(elem *Node) *Node

type combinator int

//go:generate go tool enumer -type=combinator -trimprefix=combinator -transform=lower -output=gen_combinator_enumer.go functional.go

const (
	combinatorFoldl combinator = iota
	combinatorFoldr
	combinatorMap
	combinatorScan
)

// Config holds the settings of one combinator invocation. Create it with Foldl, Foldr, Map or Scan, set the
// optional settings, and call Done to build the computation.
type Config struct {
	kind  combinator
	elems *Node

	accFn  AccumulatorFn
	elemFn ElementFn

	initializer *Node
	dtype       dtypes.DType
	name        string
	loopConfig  LoopConfig
}

func newConfig(kind combinator, elems *Node) *Config {
	if elems == nil {
		exceptions.Panicf("%s: elems is nil", kind)
	}
	elems.AssertValid()
	return &Config{
		kind:       kind,
		elems:      elems,
		name:       kind.String(),
		loopConfig: DefaultLoopConfig(),
	}
}

// Foldl applies fn to the slices of elems along its leading axis, from first to last:
// fn(...fn(fn(initializer, elems[0]), elems[1])..., elems[n-1]).
//
// If no initializer is set, elems[0] is used as the initial accumulator and the fold starts at elems[1]:
// elems must have at least one element then, or Done panics with graph.ErrIndex.
//
// The accumulator may have a different shape than the elements, but fn must always return the shape of the
// initializer.
//
// It panics with ErrNotCallable if fn is nil.
func Foldl(elems *Node, fn AccumulatorFn) *Config {
	if fn == nil {
		panic(errors.Wrap(ErrNotCallable, "Foldl"))
	}
	c := newConfig(combinatorFoldl, elems)
	c.accFn = fn
	return c
}

// Foldr is like Foldl, but applies fn from last to first:
// fn(...fn(fn(initializer, elems[n-1]), elems[n-2])..., elems[0]).
//
// If no initializer is set, elems[n-1] is used as the initial accumulator.
//
// It panics with ErrNotCallable if fn is nil.
func Foldr(elems *Node, fn AccumulatorFn) *Config {
	if fn == nil {
		panic(errors.Wrap(ErrNotCallable, "Foldr"))
	}
	c := newConfig(combinatorFoldr, elems)
	c.accFn = fn
	return c
}

// Map applies fn to each slice of elems along its leading axis, and stacks the results.
//
// The results must have the dtype of elems, unless a different one is set with Config.DType.
//
// It panics with ErrNotCallable if fn is nil.
func Map(elems *Node, fn ElementFn) *Config {
	if fn == nil {
		panic(errors.Wrap(ErrNotCallable, "Map"))
	}
	c := newConfig(combinatorMap, elems)
	c.elemFn = fn
	return c
}

// Scan is like Foldl, but returns all the intermediary accumulated values stacked: the result has the same
// leading dimension as elems, and its last element is the result of Foldl.
//
// If no initializer is set, the first element of the result is elems[0].
//
// It panics with ErrNotCallable if fn is nil.
func Scan(elems *Node, fn AccumulatorFn) *Config {
	if fn == nil {
		panic(errors.Wrap(ErrNotCallable, "Scan"))
	}
	c := newConfig(combinatorScan, elems)
	c.accFn = fn
	return c
}

// Initializer sets the initial value of the accumulator. It can be a *Node or any value accepted by Const.
// Not used by Map.
func (c *Config) Initializer(value any) *Config {
	if c.kind == combinatorMap {
		exceptions.Panicf("%s: Initializer not supported", c.kind)
	}
	if node, ok := value.(*Node); ok {
		c.initializer = node
	} else {
		c.initializer = Const(c.elems.Graph(), value)
	}
	return c
}

// DType sets the dtype of the results of the function given to Map. It defaults to the dtype of elems.
// Only used by Map.
func (c *Config) DType(dtype dtypes.DType) *Config {
	if c.kind != combinatorMap {
		exceptions.Panicf("%s: DType is only supported by Map", c.kind)
	}
	c.dtype = dtype
	return c
}

// ParallelIterations sets the maximum number of iterations whose spilling to disk can be in flight at the
// same time, so it's only used with SwapMemory. It doesn't change the results.
// Default is graph.DefaultParallelIterations.
func (c *Config) ParallelIterations(n int) *Config {
	c.loopConfig.ParallelIterations = n
	return c
}

// BackProp sets whether the iterations are retained for a reverse pass (see graph.LoopTrace).
// Default is true.
func (c *Config) BackProp(enabled bool) *Config {
	c.loopConfig.RetainForReverse = enabled
	return c
}

// SwapMemory sets whether the iterations retained for the reverse pass can be spilled from memory to disk.
// Default is false.
func (c *Config) SwapMemory(enabled bool) *Config {
	c.loopConfig.AllowMemorySpill = enabled
	return c
}

// MaxIterations sets a limit to the number of iterations of the loop, see graph.LoopConfig.MaxIterations.
// Default is 0, no limit.
func (c *Config) MaxIterations(n int) *Config {
	c.loopConfig.MaxIterations = n
	return c
}

// LoopConfig replaces all the loop settings at once.
func (c *Config) LoopConfig(config LoopConfig) *Config {
	c.loopConfig = config
	return c
}

// Name sets the name scope of the nodes created. It defaults to the name of the combinator ("foldl",
// "foldr", "map" or "scan").
func (c *Config) Name(name string) *Config {
	c.name = name
	return c
}

// Done builds the computation and returns its result.
//
// It panics with graph.ErrIndex if no initializer was set and elems is empty, and with the errors of the
// graph package if fn returns values that don't match the accumulator or the output dtype.
func (c *Config) Done() *Node {
	g := c.elems.Graph()
	if err := c.loopConfig.Validate(); err != nil {
		panic(errors.WithMessagef(err, "%s", c.kind))
	}
	var result *Node
	g.WithScope(c.name, func() {
		elemsBuffer := UnpackBuffer(c.elems)
		n := BufferSize(elemsBuffer)
		switch c.kind {
		case combinatorFoldl:
			result = c.foldl(elemsBuffer, n)
		case combinatorFoldr:
			result = c.foldr(elemsBuffer, n)
		case combinatorMap:
			result = c.mapElements(elemsBuffer, n)
		case combinatorScan:
			result = c.scan(elemsBuffer, n)
		}
	})
	klog.V(1).Infof("%s built: %s -> %s", c.kind, c.elems.Shape(), result.Shape())
	return result
}

func index(g *Graph, i int) *Node { return Const(g, int32(i)) }

// start returns the initial accumulator and index of a left-to-right traversal.
func (c *Config) start(elemsBuffer *Node) (acc, i *Node) {
	g := c.elems.Graph()
	if c.initializer != nil {
		return c.initializer, index(g, 0)
	}
	return BufferRead(elemsBuffer, index(g, 0)), index(g, 1)
}

func (c *Config) foldl(elemsBuffer, n *Node) *Node {
	g := c.elems.Graph()
	acc, i := c.start(elemsBuffer)
	results := WhileLoop(g, c.loopConfig,
		func(state []*Node) *Node { return LessThan(state[0], n) },
		func(state []*Node) []*Node {
			i, acc := state[0], state[1]
			return []*Node{OnePlus(i), c.accFn(acc, BufferRead(elemsBuffer, i))}
		},
		i, acc)
	return results[1]
}

func (c *Config) foldr(elemsBuffer, n *Node) *Node {
	g := c.elems.Graph()
	var acc, i *Node
	if c.initializer != nil {
		acc, i = c.initializer, n
	} else {
		i = Sub(n, index(g, 1))
		acc = BufferRead(elemsBuffer, i)
	}
	results := WhileLoop(g, c.loopConfig,
		func(state []*Node) *Node { return GreaterThan(state[0], index(g, 0)) },
		func(state []*Node) []*Node {
			i := Sub(state[0], index(g, 1))
			return []*Node{i, c.accFn(state[1], BufferRead(elemsBuffer, i))}
		},
		i, acc)
	return results[1]
}

func (c *Config) mapElements(elemsBuffer, n *Node) *Node {
	g := c.elems.Graph()
	dtype := c.dtype
	if dtype == dtypes.InvalidDType {
		dtype = c.elems.DType()
	}
	outputs := AllocateBuffer(n, dtype, false)
	results := WhileLoop(g, c.loopConfig,
		func(state []*Node) *Node { return LessThan(state[0], n) },
		func(state []*Node) []*Node {
			i := state[0]
			return []*Node{OnePlus(i), BufferWrite(state[1], i, c.elemFn(BufferRead(elemsBuffer, i)))}
		},
		index(g, 0), outputs)
	return BufferPack(results[1])
}

func (c *Config) scan(elemsBuffer, n *Node) *Node {
	g := c.elems.Graph()
	acc, i := c.start(elemsBuffer)
	outputs := AllocateBuffer(n, acc.DType(), false)
	if c.initializer == nil {
		outputs = BufferWrite(outputs, index(g, 0), acc)
	}
	results := WhileLoop(g, c.loopConfig,
		func(state []*Node) *Node { return LessThan(state[0], n) },
		func(state []*Node) []*Node {
			i, acc := state[0], state[1]
			acc = c.accFn(acc, BufferRead(elemsBuffer, i))
			return []*Node{OnePlus(i), acc, BufferWrite(state[2], i, acc)}
		},
		i, acc, outputs)
	return BufferPack(results[2])
}
