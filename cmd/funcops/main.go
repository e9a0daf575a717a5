// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// funcops runs one of the functional combinators (foldl, foldr, map or scan) over a list of values, and
// reports the result and the loop traces.
//
// Example:
//
//	funcops -op=scan -fn=add -values=1,2,3,4 -init=10 -trace
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/gomlx/funcops/pkg/core/dtypes"
	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/ml/functional"
	"github.com/gomlx/funcops/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagOp = flag.String("op", "foldl", "Combinator to run: one of foldl, foldr, map or scan.")
	flagFn = flag.String("fn", "add",
		"Function applied by the combinator. For foldl, foldr and scan: add, mul, max, min or sub. "+
			"For map: square, neg or identity.")
	flagValues = xslices.Flag("values", []float64{1, 2, 3, 4, 5, 6},
		"Comma-separated list of values the combinator iterates over.", parseFloat)
	flagInit     = flag.String("init", "", "Initial value of the accumulator. If empty, the first element is used.")
	flagDType    = flag.String("dtype", "float32", "DType used for the computation.")
	flagParallel = flag.Int("parallel", DefaultParallelIterations,
		"Maximum number of iterations whose spilling to disk can be in flight at the same time. "+
			"Only used with -spill.")
	flagSpill  = flag.Bool("spill", false, "Spill the iterations retained for the reverse pass to disk.")
	flagTrace  = flag.Bool("trace", false, "Report the loop traces of the execution.")
	flagRepeat = flag.Int("repeat", 0, "If > 0, benchmark the combinator by executing it this number of times.")
)

func parseFloat(value string) (float64, error) {
	return strconv.ParseFloat(value, 64)
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(); err != nil {
		klog.Errorf("funcops failed: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	dtype, err := dtypes.FromName(*flagDType)
	if err != nil {
		return err
	}
	var initValue *float64
	if *flagInit != "" {
		v, err := parseFloat(*flagInit)
		if err != nil {
			return errors.Wrapf(err, "invalid -init=%q", *flagInit)
		}
		initValue = &v
	}
	build, err := newCombinator(*flagOp, *flagFn, dtype, initValue)
	if err != nil {
		return err
	}
	exec := NewExec(build).SetName(*flagOp)
	defer exec.Finalize()

	values := *flagValues
	outputs, traces, err := exec.ExecWithTraces(values)
	if err != nil {
		return err
	}
	defer func() {
		for _, trace := range traces {
			trace.Release()
		}
	}()
	reportResult(values, outputs[0])
	if *flagTrace {
		reportTraces(traces)
	}
	if *flagRepeat > 0 {
		return benchmark(exec, values, *flagRepeat)
	}
	return nil
}

// newCombinator returns the graph function that converts the input values to dtype and applies the
// combinator op with the function fnName.
func newCombinator(op, fnName string, dtype dtypes.DType, initValue *float64) (func(x *Node) *Node, error) {
	if op == "map" {
		if initValue != nil {
			return nil, errors.New("-init is not supported by map")
		}
		fn, found := elementFns[fnName]
		if !found {
			return nil, errors.Errorf("unknown -fn=%q for map, valid values are %v", fnName, fnNames(elementFns))
		}
		return func(x *Node) *Node {
			return functional.Map(ConvertDType(x, dtype), fn).
				ParallelIterations(*flagParallel).
				SwapMemory(*flagSpill).
				Done()
		}, nil
	}

	var newConfig func(elems *Node, fn functional.AccumulatorFn) *functional.Config
	switch op {
	case "foldl":
		newConfig = functional.Foldl
	case "foldr":
		newConfig = functional.Foldr
	case "scan":
		newConfig = functional.Scan
	default:
		return nil, errors.Errorf("unknown -op=%q, valid values are foldl, foldr, map and scan", op)
	}
	fn, found := accumulatorFns[fnName]
	if !found {
		return nil, errors.Errorf("unknown -fn=%q for %s, valid values are %v", fnName, op, fnNames(accumulatorFns))
	}
	return func(x *Node) *Node {
		elems := ConvertDType(x, dtype)
		config := newConfig(elems, fn).
			ParallelIterations(*flagParallel).
			SwapMemory(*flagSpill)
		if initValue != nil {
			config.Initializer(Scalar(x.Graph(), dtype, *initValue))
		}
		return config.Done()
	}, nil
}

var accumulatorFns = map[string]functional.AccumulatorFn{
	"add": Add,
	"mul": Mul,
	"max": Max,
	"min": Min,
	"sub": Sub,
}

var elementFns = map[string]functional.ElementFn{
	"square":   Square,
	"neg":      Neg,
	"identity": Identity,
}

func fnNames[F any](fns map[string]F) []string { return xslices.SortedKeys(fns) }

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags]\n\nRuns a functional combinator over a list of values.\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
}
