package staging

import (
	"bytes"
	"io"

	"redun-go/internal/redun"
)

// memoryStore keeps scratch files in memory.
type memoryStore struct{}

func (memoryStore) Create() (storeFile, error) {
	return &memoryFile{}, nil
}

type memoryFile struct {
	buf bytes.Buffer
}

func (f *memoryFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

// Open returns a reader over a snapshot of the current contents.
func (f *memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.buf.Bytes())), nil
}

func (f *memoryFile) Remove() error {
	f.buf = bytes.Buffer{}
	return nil
}

// NewMemoryTempStorage creates in-memory temporary storage.
// maxSize is the maximum total size in bytes; must be positive.
func NewMemoryTempStorage(maxSize int64) redun.TempStorage {
	return newTempStorage(memoryStore{}, maxSize)
}
