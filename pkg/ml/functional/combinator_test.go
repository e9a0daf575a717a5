// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package functional

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinatorNames(t *testing.T) {
	assert.Equal(t, []string{"foldl", "foldr", "map", "scan"}, combinatorStrings())
	for _, c := range combinatorValues() {
		assert.True(t, c.IsAcombinator())
		parsed, err := combinatorString(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	assert.Equal(t, "combinator(7)", combinator(7).String())
}
