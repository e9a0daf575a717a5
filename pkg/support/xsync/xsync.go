// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements some extra synchronization tools.
package xsync

import "sync"

// Semaphore limits the number of simultaneous acquisitions of a resource, and keeps track of the peak
// number of acquisitions.
//
// It uses a sync.Cond, so it will be slower than a pure channel version of a semaphore. This shouldn't matter
// for more coarse resource control.
type Semaphore struct {
	cond                    sync.Cond
	capacity, current, peak int
}

// NewSemaphore returns a Semaphore that allows at most capacity simultaneous acquisitions.
// If capacity <= 0, there is no limit on acquisitions.
func NewSemaphore(capacity int) *Semaphore {
	return &Semaphore{
		cond:     sync.Cond{L: &sync.Mutex{}},
		capacity: capacity,
	}
}

// Acquire resource observing current semaphore capacity.
// It must be matched by exactly one call to Semaphore.Release after the reservation is no longer needed.
func (s *Semaphore) Acquire() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	for s.capacity > 0 && s.current >= s.capacity {
		s.cond.Wait()
	}
	s.current++
	s.peak = max(s.peak, s.current)
}

// Release resource previously allocated with Semaphore.Acquire.
func (s *Semaphore) Release() {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.current <= 0 {
		panic("xsync.Semaphore.Release() called without a matching Acquire()")
	}
	s.current--
	s.cond.Signal()
}

// InUse returns the number of current acquisitions.
func (s *Semaphore) InUse() int {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.current
}

// Peak returns the largest number of simultaneous acquisitions so far.
func (s *Semaphore) Peak() int {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	return s.peak
}

// SyncMap is a trivial wrapper to sync.Map that casts the key and value types accordingly.
//
// As sync.Map, it can be created ready to go, but should not be copied once it is used.
type SyncMap[K comparable, V any] struct {
	Map sync.Map
}

// Load returns the value stored in the map for a key, or nil if no value is present.
// The ok result indicates whether value was found in the map.
func (m *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	v, ok := m.Map.Load(key)
	if !ok {
		return value, false
	}
	return v.(V), true
}

// Store sets the value for a key.
func (m *SyncMap[K, V]) Store(key K, value V) {
	m.Map.Store(key, value)
}

// Range calls f sequentially for each key and value present in the map. If f returns false, range stops.
func (m *SyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.Map.Range(func(key, value any) bool {
		return f(key.(K), value.(V))
	})
}

// Delete deletes the value for a key.
func (m *SyncMap[K, V]) Delete(key K) {
	m.Map.Delete(key)
}
