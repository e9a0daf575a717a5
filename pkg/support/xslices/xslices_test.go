// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlices(t *testing.T) {
	assert.Equal(t, []float64{3, 4, 5}, Iota(3.0, 3))
	assert.Empty(t, Iota(int32(0), 0))
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
	assert.Len(t, Keys(map[int]bool{1: true, 2: false}), 2)
}

func TestFlag(t *testing.T) {
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	values := FlagSet(flagSet, "values", []int{1, 2}, "list of ints", strconv.Atoi)
	assert.Equal(t, []int{1, 2}, *values)

	require.NoError(t, flagSet.Parse([]string{"-values=3, 4,5"}))
	assert.Equal(t, []int{3, 4, 5}, *values)
	assert.Equal(t, "3,4,5", flagSet.Lookup("values").Value.String())

	require.NoError(t, flagSet.Set("values", ""))
	assert.Empty(t, *values)

	require.Error(t, flagSet.Set("values", "1,x"))
}
