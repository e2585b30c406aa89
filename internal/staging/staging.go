package staging

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"redun-go/internal/redun"
)

// ErrStagingFull is returned by writes that would exceed the size budget.
var ErrStagingFull = errors.New("staging area full")

// tempStorage implements redun.TempStorage using a pluggable stagingStore
// for the storage mechanics. The size budget is enforced here.
type tempStorage struct {
	store   stagingStore
	maxSize int64
	size    int64
	open    map[string]bool
	mu      sync.Mutex
}

var _ redun.TempStorage = (*tempStorage)(nil)

func newTempStorage(store stagingStore, maxSize int64) *tempStorage {
	return &tempStorage{
		store:   store,
		maxSize: maxSize,
		open:    make(map[string]bool),
	}
}

// Create opens a new empty scratch file under key.
func (s *tempStorage) Create(key string) (redun.TempFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open[key] {
		return nil, fmt.Errorf("temporary file already open: %s", key)
	}
	f, err := s.store.Create()
	if err != nil {
		return nil, fmt.Errorf("creating temporary file %s: %w", key, err)
	}
	s.open[key] = true
	return &tempFile{storage: s, key: key, file: f}, nil
}

// Size returns the total bytes held by open files.
func (s *tempStorage) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// tempFile is a budgeted scratch file.
type tempFile struct {
	storage *tempStorage
	key     string
	file    storeFile
	size    int64
	closed  bool
}

func (f *tempFile) Key() string { return f.key }

func (f *tempFile) Size() int64 {
	f.storage.mu.Lock()
	defer f.storage.mu.Unlock()
	return f.size
}

// Write appends p, or fails without writing if p does not fit the budget.
func (f *tempFile) Write(p []byte) (int, error) {
	s := f.storage
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.closed {
		return 0, fmt.Errorf("temporary file %s is discarded", f.key)
	}
	if s.size+int64(len(p)) > s.maxSize {
		return 0, fmt.Errorf("%w: would exceed max size of %d bytes", ErrStagingFull, s.maxSize)
	}

	n, err := f.file.Write(p)
	f.size += int64(n)
	s.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing temporary file %s: %w", f.key, err)
	}
	return n, nil
}

func (f *tempFile) Open() (io.ReadCloser, error) {
	f.storage.mu.Lock()
	defer f.storage.mu.Unlock()

	if f.closed {
		return nil, fmt.Errorf("temporary file %s is discarded", f.key)
	}
	return f.file.Open()
}

// Discard removes the file and returns its bytes to the budget. It is safe to
// call more than once.
func (f *tempFile) Discard() error {
	s := f.storage
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	s.size -= f.size
	delete(s.open, f.key)
	return f.file.Remove()
}
