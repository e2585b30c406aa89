package medium

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/disk"

	"redun-go/internal/redun"
)

// tempPrefix marks in-flight writes; List never reports them.
const tempPrefix = ".tmp-"

// FileSystemMedium is a filesystem-based implementation of the redun.Medium
// interface. Object names map to paths below root:
//
//	<root>/
//	  <set>/<file>           (data copies)
//	  <set>/<file>.meta      (meta files)
//	  <generation>.r/<n>     (redundancy segments)
//	  <generation>.r.meta
type FileSystemMedium struct {
	name string
	root string
}

// NewFileSystemMedium creates a new filesystem medium rooted at the given path.
func NewFileSystemMedium(name, root string) (*FileSystemMedium, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create medium root: %w", err)
	}
	return &FileSystemMedium{name: name, root: root}, nil
}

func (m *FileSystemMedium) Name() string { return m.name }

// Root returns the directory the medium is rooted at.
func (m *FileSystemMedium) Root() string { return m.root }

func (m *FileSystemMedium) path(name string) (string, error) {
	p := filepath.FromSlash(name)
	if !filepath.IsLocal(p) {
		return "", fmt.Errorf("invalid object name: %q", name)
	}
	return filepath.Join(m.root, p), nil
}

// notFound wraps a missing-file error as redun.ErrNotFound.
func (m *FileSystemMedium) notFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s on %s: %w", name, m.name, redun.ErrNotFound)
	}
	return err
}

func (m *FileSystemMedium) Put(name string, r io.Reader, size int64) error {
	destPath, err := m.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return writeFile(destPath, r, size)
}

// Open maps the object into memory read-only.
func (m *FileSystemMedium) Open(name string) (redun.Object, error) {
	p, err := m.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, m.notFound(name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.Size() == 0 {
		return bytesObject(nil), nil
	}
	obj, err := mapFile(f, info.Size())
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (m *FileSystemMedium) ReadAt(name string, p []byte, off int64) (int, error) {
	path, err := m.path(name)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, m.notFound(name, err)
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

func (m *FileSystemMedium) Stat(name string) (int64, error) {
	p, err := m.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, m.notFound(name, err)
	}
	return info.Size(), nil
}

func (m *FileSystemMedium) Remove(name string) error {
	p, err := m.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

func (m *FileSystemMedium) List(prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(m.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(m.root, p)
		if err != nil {
			return err
		}
		if name := filepath.ToSlash(rel); strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", m.name, err)
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup verifies that the medium root is an accessible, writable directory.
func (m *FileSystemMedium) ValidateSetup() error {
	info, err := os.Stat(m.root)
	if err != nil {
		return fmt.Errorf("medium root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("medium root is not a directory: %s", m.root)
	}

	f, err := os.CreateTemp(m.root, tempPrefix+"setup-*")
	if err != nil {
		return fmt.Errorf("medium root not writable: %w", err)
	}
	f.Close()
	return os.Remove(f.Name())
}

// Usage returns the total and free bytes of the filesystem holding the medium.
func (m *FileSystemMedium) Usage() (total, free uint64, err error) {
	u, err := disk.Usage(m.root)
	if err != nil {
		return 0, 0, fmt.Errorf("disk usage of %s: %w", m.root, err)
	}
	return u.Total, u.Free, nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ redun.Medium = (*FileSystemMedium)(nil)
