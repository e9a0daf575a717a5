// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bufio"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gomlx/funcops/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// spillStore holds the files of the tensors spilled by one loop trace.
type spillStore struct {
	dir          string
	spilledBytes atomic.Uint64
	numFiles     atomic.Int64
}

func newSpillStore(baseDir string) (*spillStore, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	dir, err := os.MkdirTemp(baseDir, "funcops-spill-")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create spill directory in %q", baseDir)
	}
	klog.V(1).Infof("Spilling loop iterations to %q", dir)
	return &spillStore{dir: dir}, nil
}

// write encodes the tensor to a new file, and returns its path.
func (s *spillStore) write(t *tensors.Tensor) (path string, err error) {
	path = filepath.Join(s.dir, uuid.NewString()+".gob")
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create spill file")
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.Wrapf(closeErr, "failed to close spill file %q", path)
		}
	}()
	w := bufio.NewWriter(f)
	if err = t.GobSerialize(gob.NewEncoder(w)); err != nil {
		return "", errors.WithMessagef(err, "failed to spill tensor %s", t.Shape())
	}
	if err = w.Flush(); err != nil {
		return "", errors.Wrapf(err, "failed to write spill file %q", path)
	}
	s.spilledBytes.Add(uint64(t.Memory()))
	s.numFiles.Add(1)
	return path, nil
}

// read decodes the tensor stored in path.
func (s *spillStore) read(path string) (*tensors.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open spill file")
	}
	defer func() { _ = f.Close() }()
	t, err := tensors.GobDeserialize(gob.NewDecoder(bufio.NewReader(f)))
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read spill file %q", path)
	}
	return t, nil
}

// release removes all spilled files.
func (s *spillStore) release() {
	if err := os.RemoveAll(s.dir); err != nil {
		klog.Warningf("Failed to remove spill directory %q: %+v", s.dir, err)
	}
}

// retainedValue is a value (tensor or buffer) of a loop iteration retained for the reverse pass.
// Tensors may be spilled to a file, in which case they are read back on access.
type retainedValue struct {
	mu        sync.Mutex
	value     any    // nil once spilled.
	spillPath string // Set once spilled.
}

// get returns the retained value, reading it back from the spill store if needed.
func (r *retainedValue) get(store *spillStore) (any, error) {
	r.mu.Lock()
	value, path := r.value, r.spillPath
	r.mu.Unlock()
	if value != nil {
		return value, nil
	}
	return store.read(path)
}

// spill moves the value to the store, if it's a tensor. Buffers are kept in memory.
// It's a no-op if the value was already spilled.
func (r *retainedValue) spill(store *spillStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.value.(*tensors.Tensor)
	if !ok {
		return nil
	}
	path, err := store.write(t)
	if err != nil {
		return err
	}
	r.value = nil
	r.spillPath = path
	return nil
}

// inMemory returns the bytes used by the value, if it's not spilled.
func (r *retainedValue) inMemory() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return valueMemory(r.value)
}
