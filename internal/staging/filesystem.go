package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"redun-go/internal/redun"
)

// filesystemStore keeps scratch files in a directory:
//
//	<staging_dir>/
//	  files/
//	    <random>    (one per open scratch file)
type filesystemStore struct {
	filesDir string
}

func (s *filesystemStore) Create() (storeFile, error) {
	f, err := os.CreateTemp(s.filesDir, "redun-*")
	if err != nil {
		return nil, err
	}
	return &filesystemFile{f: f}, nil
}

type filesystemFile struct {
	f *os.File
}

func (f *filesystemFile) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

func (f *filesystemFile) Open() (io.ReadCloser, error) {
	if err := f.f.Sync(); err != nil {
		return nil, fmt.Errorf("syncing %s: %w", f.f.Name(), err)
	}
	return os.Open(f.f.Name())
}

func (f *filesystemFile) Remove() error {
	f.f.Close()
	if err := os.Remove(f.f.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// NewFileSystemTempStorage creates temporary storage backed by stagingDir.
// Files left behind by an interrupted run are removed.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemTempStorage(stagingDir string, maxSize int64) (redun.TempStorage, error) {
	filesDir := filepath.Join(stagingDir, "files")
	if err := os.RemoveAll(filesDir); err != nil {
		return nil, fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return newTempStorage(&filesystemStore{filesDir: filesDir}, maxSize), nil
}
