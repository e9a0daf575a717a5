// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemaphore(t *testing.T) {
	const capacity = 3
	s := NewSemaphore(capacity)
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Acquire()
			require.LessOrEqual(t, s.InUse(), capacity)
			s.Release()
		}()
	}
	wg.Wait()
	require.Equal(t, 0, s.InUse())
	require.LessOrEqual(t, s.Peak(), capacity)
	require.GreaterOrEqual(t, s.Peak(), 1)
	require.Panics(t, s.Release)
}

func TestSyncMap(t *testing.T) {
	var m SyncMap[int, string]
	m.Store(1, "one")
	m.Store(2, "two")
	v, ok := m.Load(1)
	require.True(t, ok)
	require.Equal(t, "one", v)
	m.Delete(1)
	_, ok = m.Load(1)
	require.False(t, ok)
	count := 0
	m.Range(func(key int, value string) bool {
		count++
		return true
	})
	require.Equal(t, 1, count)
}
