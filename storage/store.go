// Package storage defines the object-store collaborator consumed by the
// host API's put_object, get_object and put_result operations: a simple
// name-or-content addressed byte-blob store returning identifier strings.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/lfedgeai/spear-hostapi/errors"
)

// Store is the blob-store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put stores a named blob and returns its identifier.
	Put(name string, data []byte) (string, error)

	// Get retrieves a blob by identifier.
	Get(id string) ([]byte, error)

	// PutResult stores a task result with metadata and returns an opaque
	// result identifier.
	PutResult(taskID string, data []byte, metadata map[string]string) (string, error)
}

// MemoryStore is an in-memory, content-addressed Store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		meta:    make(map[string]map[string]string),
	}
}

// Put stores data under a sha256 content address. The name is recorded as
// metadata; identical content maps to the same identifier.
func (s *MemoryStore) Put(name string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	id := "sha256:" + hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = append([]byte(nil), data...)
	s.meta[id] = map[string]string{"name": name}
	return id, nil
}

// Get retrieves a blob by identifier.
func (s *MemoryStore) Get(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[id]
	if !ok {
		return nil, errors.NotFound(errors.PhaseStorage, "object", id)
	}
	return append([]byte(nil), data...), nil
}

// PutResult stores a task result and returns an identifier embedding the
// task id and a content-hash prefix.
func (s *MemoryStore) PutResult(taskID string, data []byte, metadata map[string]string) (string, error) {
	if taskID == "" {
		return "", errors.InvalidInput("put_result", "empty task id")
	}
	sum := sha256.Sum256(data)
	id := fmt.Sprintf("result:%s:%s", taskID, hex.EncodeToString(sum[:4]))

	m := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		m[k] = v
	}
	m["task_id"] = taskID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[id] = append([]byte(nil), data...)
	s.meta[id] = m
	return id, nil
}

// Metadata returns the metadata recorded for an identifier.
func (s *MemoryStore) Metadata(id string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[id]
	return m, ok
}
