// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := Make[string](10)
	assert.Empty(t, s)

	s.Insert("foldl", "scan")
	s.Insert("foldl")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("foldl"))
	assert.True(t, s.Has("scan"))
	assert.False(t, s.Has("map"))

	delete(s, "scan")
	assert.False(t, s.Has("scan"))

	type node struct{ id int }
	a, b := &node{1}, &node{1}
	nodes := Make[*node]()
	nodes.Insert(a)
	assert.True(t, nodes.Has(a))
	assert.False(t, nodes.Has(b), "pointers are compared by identity")
}
