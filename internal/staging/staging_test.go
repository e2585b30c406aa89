package staging

import (
	"errors"
	"io"
	"testing"

	"redun-go/internal/config"
	"redun-go/internal/redun"
)

func storages(t *testing.T, maxSize int64) map[string]redun.TempStorage {
	t.Helper()
	fsStorage, err := NewFileSystemTempStorage(t.TempDir(), maxSize)
	if err != nil {
		t.Fatalf("NewFileSystemTempStorage() error = %v", err)
	}
	return map[string]redun.TempStorage{
		"memory":     NewMemoryTempStorage(maxSize),
		"filesystem": fsStorage,
	}
}

func TestTempStorage_WriteAndOpen(t *testing.T) {
	for name, s := range storages(t, 1024) {
		t.Run(name, func(t *testing.T) {
			f, err := s.Create("set/a")
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			io.WriteString(f, "hello ")
			io.WriteString(f, "world")

			if f.Size() != 11 || s.Size() != 11 {
				t.Errorf("sizes = %d, %d, want 11", f.Size(), s.Size())
			}

			r, err := f.Open()
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			data, _ := io.ReadAll(r)
			r.Close()
			if string(data) != "hello world" {
				t.Errorf("content = %q", data)
			}

			if err := f.Discard(); err != nil {
				t.Fatalf("Discard() error = %v", err)
			}
			if s.Size() != 0 {
				t.Errorf("Size() after Discard = %d, want 0", s.Size())
			}
			if err := f.Discard(); err != nil {
				t.Errorf("second Discard() error = %v", err)
			}
		})
	}
}

func TestTempStorage_SizeLimit(t *testing.T) {
	for name, s := range storages(t, 10) {
		t.Run(name, func(t *testing.T) {
			a, _ := s.Create("a")
			b, _ := s.Create("b")
			defer a.Discard()
			defer b.Discard()

			if _, err := a.Write(make([]byte, 6)); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			_, err := b.Write(make([]byte, 5))
			if !errors.Is(err, ErrStagingFull) {
				t.Fatalf("Write() over budget error = %v, want ErrStagingFull", err)
			}
			if b.Size() != 0 || s.Size() != 6 {
				t.Errorf("failed write changed sizes: file %d, storage %d", b.Size(), s.Size())
			}

			a.Discard()
			if _, err := b.Write(make([]byte, 5)); err != nil {
				t.Errorf("Write() after freeing budget error = %v", err)
			}
		})
	}
}

func TestTempStorage_DuplicateKey(t *testing.T) {
	s := NewMemoryTempStorage(100)
	f, _ := s.Create("k")
	if _, err := s.Create("k"); err == nil {
		t.Error("Create() accepted a key that is already open")
	}
	f.Discard()
	if _, err := s.Create("k"); err != nil {
		t.Errorf("Create() after Discard error = %v", err)
	}
}

func TestNewTempStorageFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StagingConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.StagingConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.StagingConfig{Type: "filesystem", StagingDir: t.TempDir(), MaxSize: 10}},
		{name: "filesystem without dir", cfg: config.StagingConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.StagingConfig{Type: "tape"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTempStorageFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTempStorageFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
