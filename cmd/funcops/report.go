// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	. "github.com/gomlx/funcops/pkg/core/graph"
	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == lgtable.HeaderRow {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func reportResult(values []float64, result *tensors.Tensor) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s(%s)", *flagOp, *flagFn)))
	table := newPlainTable(false)
	table.Row("values", fmt.Sprintf("%v", values))
	if *flagInit != "" {
		table.Row("initializer", *flagInit)
	}
	table.Row("result", fmt.Sprintf("%v", result.Value()))
	table.Row("shape", result.Shape().String())
	fmt.Println(table.Render())
}

func reportTraces(traces []*LoopTrace) {
	fmt.Println(titleStyle.Render("Loop traces"))
	if len(traces) == 0 {
		fmt.Println("No loop iterations retained.")
		return
	}
	table := newPlainTable(true).
		Headers("Loop", "Iterations", "Spills in-flight", "Memory", "Spilled", "Duration")
	for _, trace := range traces {
		inFlight := "-" // Only spilling runs in parallel.
		if trace.Config().AllowMemorySpill {
			inFlight = fmt.Sprintf("%d / %d", trace.PeakInFlight(), trace.Config().ParallelIterations)
		}
		table.Row(
			trace.Name(),
			humanize.Comma(int64(trace.NumIterations())),
			inFlight,
			humanize.IBytes(uint64(trace.Memory())),
			humanize.IBytes(trace.SpilledBytes()),
			trace.Duration().Round(time.Microsecond).String(),
		)
	}
	fmt.Println(table.Render())
}

// benchmark executes exec numRuns times with a progress bar, and reports the execution rate.
func benchmark(exec *Exec, values []float64, numRuns int) error {
	out := termenv.NewOutput(os.Stdout)
	out.HideCursor()
	defer out.ShowCursor()

	bar := progressbar.NewOptions(numRuns,
		progressbar.OptionSetDescription(exec.Name()),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("runs"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionClearOnFinish(),
	)
	start := time.Now()
	for range numRuns {
		if _, err := exec.Exec(values); err != nil {
			return err
		}
		_ = bar.Add(1)
	}
	elapsed := time.Since(start)
	_ = bar.Finish()

	fmt.Println(titleStyle.Render("Benchmark"))
	table := newPlainTable(false)
	table.Row("runs", humanize.Comma(int64(numRuns)))
	table.Row("elements", humanize.Comma(int64(len(values))))
	table.Row("total", elapsed.Round(time.Millisecond).String())
	table.Row("per run", (elapsed / time.Duration(numRuns)).String())
	table.Row("rate", humanize.SIWithDigits(float64(numRuns)/elapsed.Seconds(), 2, "runs/s"))
	fmt.Println(table.Render())
	return nil
}
