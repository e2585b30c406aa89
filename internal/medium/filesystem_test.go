package medium

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemMedium_Layout(t *testing.T) {
	root := t.TempDir()
	m, err := NewFileSystemMedium("fs", root)
	if err != nil {
		t.Fatalf("NewFileSystemMedium() error = %v", err)
	}

	if err := m.Put("photos/a.jpg.meta", strings.NewReader("meta"), 4); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "photos", "a.jpg.meta"))
	if err != nil {
		t.Fatalf("object not stored at expected path: %v", err)
	}
	if string(data) != "meta" {
		t.Errorf("stored content = %q", data)
	}
}

func TestFileSystemMedium_RejectsEscapingNames(t *testing.T) {
	m, _ := NewFileSystemMedium("fs", t.TempDir())

	for _, name := range []string{"../outside", "/abs", "a/../../b"} {
		if err := m.Put(name, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Put(%q) expected error", name)
		}
	}
}

func TestFileSystemMedium_ListSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	m, _ := NewFileSystemMedium("fs", root)

	if err := m.Put("a", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, tempPrefix+"123"), []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err := m.List("")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 1 || names[0] != "a" {
		t.Errorf("List() = %v, want [a]", names)
	}
}

func TestFileSystemMedium_OpenEmpty(t *testing.T) {
	m, _ := NewFileSystemMedium("fs", t.TempDir())
	if err := m.Put("empty", strings.NewReader(""), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	obj, err := m.Open("empty")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer obj.Close()
	if len(obj.Bytes()) != 0 {
		t.Errorf("Bytes() = %q, want empty", obj.Bytes())
	}
}

func TestFileSystemMedium_OpenSurvivesReplace(t *testing.T) {
	m, _ := NewFileSystemMedium("fs", t.TempDir())
	m.Put("obj", strings.NewReader("old"), 3)

	obj, err := m.Open("obj")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer obj.Close()

	if err := m.Put("obj", strings.NewReader("new!"), 4); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if string(obj.Bytes()) != "old" {
		t.Errorf("open view changed to %q after replace", obj.Bytes())
	}
}

func TestFileSystemMedium_Usage(t *testing.T) {
	m, _ := NewFileSystemMedium("fs", t.TempDir())

	total, free, err := m.Usage()
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if total == 0 || free > total {
		t.Errorf("Usage() = total %d, free %d", total, free)
	}
}
