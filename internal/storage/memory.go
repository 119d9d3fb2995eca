package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// MemoryStore keeps blobs in process memory. Containers are created on first Put.
type MemoryStore struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{containers: make(map[string]map[string][]byte)}
}

// Get returns a copy of the blob content
func (m *MemoryStore) Get(_ context.Context, container, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blobs, ok := m.containers[container]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "container %s", container)
	}
	data, ok := blobs[name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "%s/%s", container, name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores a copy of data
func (m *MemoryStore) Put(_ context.Context, container, name string, data []byte) error {
	if err := ValidateName(container, name); err != nil {
		return err
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containers[container] == nil {
		m.containers[container] = make(map[string][]byte)
	}
	m.containers[container][name] = stored
	return nil
}

// List returns the blobs in a container sorted by name
func (m *MemoryStore) List(_ context.Context, container string) ([]BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blobs, ok := m.containers[container]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "container %s", container)
	}
	out := make([]BlobInfo, 0, len(blobs))
	for name, data := range blobs {
		out = append(out, BlobInfo{Name: name, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
