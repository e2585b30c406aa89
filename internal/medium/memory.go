package medium

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"redun-go/internal/redun"
)

// MemoryMedium is an in-memory implementation of the redun.Medium interface.
// It is useful for testing. This implementation is safe for concurrent use.
type MemoryMedium struct {
	name    string
	objects map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryMedium creates a new in-memory medium with the given name.
func NewMemoryMedium(name string) *MemoryMedium {
	return &MemoryMedium{
		name:    name,
		objects: make(map[string][]byte),
	}
}

func (m *MemoryMedium) Name() string { return m.name }

// Put stores the object. Stored slices are never modified in place, so views
// handed out by Open stay valid after a replace.
func (m *MemoryMedium) Put(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[name] = data
	return nil
}

func (m *MemoryMedium) get(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("%s on %s: %w", name, m.name, redun.ErrNotFound)
	}
	return data, nil
}

func (m *MemoryMedium) Open(name string) (redun.Object, error) {
	data, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return bytesObject(data), nil
}

func (m *MemoryMedium) ReadAt(name string, p []byte, off int64) (int, error) {
	data, err := m.get(name)
	if err != nil {
		return 0, err
	}
	return bytes.NewReader(data).ReadAt(p, off)
}

func (m *MemoryMedium) Stat(name string) (int64, error) {
	data, err := m.get(name)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (m *MemoryMedium) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, name)
	return nil
}

func (m *MemoryMedium) List(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup always succeeds for an in-memory medium.
func (m *MemoryMedium) ValidateSetup() error {
	return nil
}

// bytesObject is an Object over a byte slice that needs no release.
type bytesObject []byte

func (b bytesObject) Bytes() []byte { return b }
func (b bytesObject) Close() error  { return nil }

var _ redun.Medium = (*MemoryMedium)(nil)
