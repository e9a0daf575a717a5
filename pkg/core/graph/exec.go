// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/funcops/pkg/core/shapes"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/gomlx/funcops/pkg/support/xsync"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ExecGraphFn is a type parameter for accepted function types for NewExec constructor.
type ExecGraphFn interface {
	func(*Graph) *Node |
		func(*Node) *Node |
		func(*Node, *Node) *Node |
		func(*Node, *Node, *Node) *Node |
		func(*Node, *Node, *Node, *Node) *Node |
		func([]*Node) *Node |

		// With 2 outputs
		func(*Graph) (*Node, *Node) |
		func(*Node) (*Node, *Node) |
		func(*Node, *Node) (*Node, *Node) |
		func(*Node, *Node, *Node) (*Node, *Node) |
		func([]*Node) (*Node, *Node) |

		// With slice of nodes as output.
		func(*Graph) []*Node |
		func(*Node) []*Node |
		func(*Node, *Node) []*Node |
		func(*Node, *Node, *Node) []*Node |
		func([]*Node) []*Node
}

// Exec creates and executes computation graphs as needed, based on the inputs shapes.
//
// It simplifies the process of executing a graph building function with real values. For example:
//
//	sumExec := NewExec(func(x *Node) *Node {
//		return functional.Foldl(x, func(a, e *Node) *Node { return Add(a, e) }).Done()
//	})
//	outputs, err := sumExec.Exec([]float32{1, 2, 3, 4, 5, 6})
//
// A graph is built for each different combination of input shapes, and cached. If the same shapes are used
// again, the cached graph is reused. For safety there is a maximum number of different instantiations of the
// graph, see SetMaxCache.
//
// Errors raised (panics) while building the graph, and errors while executing it, are returned as errors.
// It's safe for concurrent use.
type Exec struct {
	graphFn                     any
	numInputs                   int
	inputAsSlice, outputAsSlice bool
	inputIsGraph                bool
	name                        string

	// maxCacheSize: if more than these different graph instantiations are
	// created, Exec starts returning errors.
	maxCacheSize int

	// buildMu serializes the building of new graphs.
	buildMu   sync.Mutex
	cache     xsync.SyncMap[string, *execCacheEntry]
	cacheSize int
}

// execCacheEntry holds the graph built for one combination of input shapes, or the error that prevented
// it from being built.
type execCacheEntry struct {
	graph *Graph
	err   error
}

// DefaultExecMaxCacheSize is the default number of graphs an Exec will build, for different input shapes.
const DefaultExecMaxCacheSize = 32

// NewExecAny constructs an Exec object that uses the given graphFn to build computation graphs.
// graphFn take only *Node parameters as input and return one or more *Node. Except if there are no inputs,
// in which case graphFn needs to take a *Graph as the first parameter.
//
// If any input or output parameter of graphFn is not a *Node (or *Graph is there are no inputs),
// or if there are no inputs or outputs, it returns an error.
func NewExecAny(graphFn any) (*Exec, error) {
	if graphFn == nil {
		return nil, errors.New("graphFn is nil")
	}
	graphFnT := reflect.TypeOf(graphFn)
	if graphFnT.Kind() != reflect.Func {
		return nil, errors.Errorf("graphFn must be a function, got %T", graphFn)
	}
	funcName := runtime.FuncForPC(reflect.ValueOf(graphFn).Pointer()).Name()
	e := &Exec{
		graphFn:      graphFn,
		name:         fmt.Sprintf("Exec:%s", funcName),
		numInputs:    graphFnT.NumIn(),
		maxCacheSize: DefaultExecMaxCacheSize,
	}

	nodeType := reflect.TypeOf((*Node)(nil))
	graphType := reflect.TypeOf((*Graph)(nil))
	if graphFnT.NumIn() < 1 || graphFnT.NumOut() < 1 {
		return nil, errors.Errorf("not enough input (%d)/output (%d) parameters, both need to be > 0",
			graphFnT.NumIn(), graphFnT.NumOut())
	}
	for ii := 0; ii < graphFnT.NumIn(); ii++ {
		in := graphFnT.In(ii)
		if in.Kind() == reflect.Slice && in.Elem() == nodeType {
			if graphFnT.NumIn() != 1 {
				return nil, errors.Errorf("[]*Node parameters are only accepted as input if they are the only input, got function type %s instead", graphFnT)
			}
			e.inputAsSlice = true
			break
		}
		if in == graphType {
			if graphFnT.NumIn() != 1 {
				return nil, errors.Errorf("*Graph parameter only accepted as input if they are the only input, got function type %s instead", graphFnT)
			}
			e.inputIsGraph = true
			e.numInputs = 0
			break
		}
		if in != nodeType {
			return nil, errors.Errorf("input parameter %d is not of type *Node or []*Node", ii)
		}
	}
	for ii := 0; ii < graphFnT.NumOut(); ii++ {
		out := graphFnT.Out(ii)
		if out.Kind() == reflect.Slice && out.Elem() == nodeType {
			if graphFnT.NumOut() != 1 {
				return nil, errors.Errorf("[]*Node parameters are only accepted as output if they are the only output, got function type %s instead", graphFnT)
			}
			e.outputAsSlice = true
			break
		}
		if out != nodeType {
			return nil, errors.Errorf("output parameter %d is not of type *Node", ii)
		}
	}
	return e, nil
}

// NewExec constructs an Exec object that uses the given graphFn to build computation graphs.
// It's a wrapper for NewExecAny, but uses generics to type check that graphFn is valid.
func NewExec[F ExecGraphFn](graphFn F) *Exec {
	e, err := NewExecAny(graphFn)
	if err != nil {
		// This shouldn't happen for known types.
		exceptions.Panicf("invalid graphFn of type %T, resulted in error: %+v", graphFn, err)
	}
	return e
}

// SetName sets the name of Exec, used to provide the name to graphs created.
// This should be called before any execution.
// It returns a reference to itself so calls can be cascaded.
func (e *Exec) SetName(name string) *Exec {
	e.name = name
	return e
}

// Name returns the Exec name, a prefix of the names of the graphs it creates.
func (e *Exec) Name() string { return e.name }

// SetMaxCache sets the maximum number of graphs (one per different input shapes) the Exec will build.
// A value <= 0 means unlimited.
// It returns a reference to itself so calls can be cascaded.
func (e *Exec) SetMaxCache(maxCacheSize int) *Exec {
	e.maxCacheSize = maxCacheSize
	return e
}

// Exec parses the arguments into tensors (if they are not yet) and executes the graph corresponding to the shapes
// of the arguments. If a graph does not yet exist one is built, compiled and cached for the shapes.
//
// It returns the outputs in a slice, even if there is only one output. The traces of loops that retain
// their iterations are released before returning, see ExecWithTraces to use them.
func (e *Exec) Exec(args ...any) ([]*tensors.Tensor, error) {
	outputs, traces, err := e.ExecWithTraces(args...)
	for _, trace := range traces {
		trace.Release()
	}
	return outputs, err
}

// MustExec is like Exec, but panics on error.
func (e *Exec) MustExec(args ...any) []*tensors.Tensor {
	outputs, err := e.Exec(args...)
	if err != nil {
		panic(err)
	}
	return outputs
}

// ExecWithTraces is like Exec, but it also returns the traces of the executed loops configured to retain their
// iterations (see LoopConfig.RetainForReverse). The caller owns them and should call LoopTrace.Release when done.
func (e *Exec) ExecWithTraces(args ...any) ([]*tensors.Tensor, []*LoopTrace, error) {
	g, err := e.GraphFor(args...)
	if err != nil {
		return nil, nil, err
	}
	return g.Run(args...)
}

// GraphFor returns the compiled graph that Exec uses for the given arguments, building it if needed.
func (e *Exec) GraphFor(args ...any) (*Graph, error) {
	if !e.inputAsSlice && len(args) != e.numInputs {
		return nil, errors.Errorf("# of arguments to call (%d) don't match # arguments to graph function (%d) for %q",
			len(args), e.numInputs, e.Name())
	}
	argsShapes := make([]shapes.Shape, len(args))
	for ii, arg := range args {
		var t *tensors.Tensor
		err := exceptions.TryCatch[error](func() { t = tensors.FromAnyValue(arg) })
		if err != nil {
			return nil, errors.WithMessagef(err, "%q: converting argument #%d", e.Name(), ii)
		}
		argsShapes[ii] = t.Shape()
	}
	entry, err := e.findCacheEntry(argsShapes)
	if err != nil {
		return nil, err
	}
	if entry.err != nil {
		return nil, errors.WithMessagef(entry.err, "failed to build %q computation graph", e.Name())
	}
	return entry.graph, nil
}

func shapesSignature(argsShapes []shapes.Shape) string {
	parts := make([]string, len(argsShapes))
	for ii, shape := range argsShapes {
		parts[ii] = shape.String()
	}
	return strings.Join(parts, ";")
}

// findCacheEntry returns the entry for the given arguments shapes, building it if it doesn't exist yet.
func (e *Exec) findCacheEntry(argsShapes []shapes.Shape) (*execCacheEntry, error) {
	key := shapesSignature(argsShapes)
	if entry, found := e.cache.Load(key); found {
		return entry, nil
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	if entry, found := e.cache.Load(key); found {
		return entry, nil
	}
	if e.maxCacheSize > 0 && e.cacheSize >= e.maxCacheSize {
		return nil, errors.Errorf(
			"maximum cache size (%d) reached for %q, cannot create another graph: a new computation graph needs "+
				"to be built for each different shape of the input, consider changing the cache size with Exec.SetMaxCache()",
			e.maxCacheSize, e.Name())
	}
	entry := e.createGraph(argsShapes)
	e.cache.Store(key, entry)
	e.cacheSize++
	return entry, nil
}

// createGraph builds and compiles the graph for the arguments with the given shapes.
// Panics while building are stored as the entry error.
func (e *Exec) createGraph(argsShapes []shapes.Shape) *execCacheEntry {
	entry := &execCacheEntry{graph: NewGraph(fmt.Sprintf("%s#%d", e.name, e.cacheSize))}
	g := entry.graph
	entry.err = exceptions.TryCatch[error](func() {
		var argsV []reflect.Value
		args := make([]*Node, 0, len(argsShapes))
		for ii, shape := range argsShapes {
			args = append(args, Parameter(g, fmt.Sprintf("arg#%d", ii), shape))
		}
		switch {
		case e.inputIsGraph:
			argsV = []reflect.Value{reflect.ValueOf(g)}
		case e.inputAsSlice:
			argsV = []reflect.Value{reflect.ValueOf(args)}
		default:
			argsV = make([]reflect.Value, len(args))
			for ii, arg := range args {
				argsV[ii] = reflect.ValueOf(arg)
			}
		}

		outputsV := reflect.ValueOf(e.graphFn).Call(argsV)
		var outputs []*Node
		if e.outputAsSlice {
			outputs = outputsV[0].Interface().([]*Node)
		} else {
			outputs = make([]*Node, 0, len(outputsV))
			for _, outV := range outputsV {
				outputs = append(outputs, outV.Interface().(*Node))
			}
		}
		g.Compile(outputs...)
	})
	if entry.err != nil {
		klog.V(1).Infof("%q: failed to build graph for shapes %v: %v", e.name, argsShapes, entry.err)
		g.Finalize()
		entry.graph = nil
	}
	return entry
}

// Finalize clears the cache, finalizing the graphs. The Exec object shouldn't be used after that.
func (e *Exec) Finalize() {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	e.cache.Range(func(key string, entry *execCacheEntry) bool {
		if entry.graph != nil {
			entry.graph.Finalize()
		}
		e.cache.Delete(key)
		return true
	})
	e.cacheSize = 0
}
