package medium

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"redun-go/internal/redun"
)

// testMediumContract exercises the behavior every redun.Medium must share.
func testMediumContract(t *testing.T, m redun.Medium) {
	t.Helper()

	put := func(name, data string) {
		t.Helper()
		if err := m.Put(name, strings.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put(%q) error = %v", name, err)
		}
	}

	t.Run("put then open", func(t *testing.T) {
		put("set/a", "hello world")

		obj, err := m.Open("set/a")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer obj.Close()
		if got := string(obj.Bytes()); got != "hello world" {
			t.Errorf("Bytes() = %q, want %q", got, "hello world")
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		put("set/b", "first")
		put("set/b", "second!")

		size, err := m.Stat("set/b")
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if size != 7 {
			t.Errorf("Stat() = %d, want 7", size)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		if err := m.Put("set/c", strings.NewReader("short"), 100); err == nil {
			t.Error("Put() expected error for size mismatch")
		}
		if _, err := m.Stat("set/c"); !errors.Is(err, redun.ErrNotFound) {
			t.Errorf("Stat() after failed Put error = %v, want ErrNotFound", err)
		}
	})

	t.Run("read at", func(t *testing.T) {
		put("set/d", "0123456789")

		p := make([]byte, 4)
		n, err := m.ReadAt("set/d", p, 3)
		if err != nil || n != 4 || string(p) != "3456" {
			t.Errorf("ReadAt(3) = %d, %v, %q", n, err, p)
		}

		n, err = m.ReadAt("set/d", p, 8)
		if n != 2 || !errors.Is(err, io.EOF) {
			t.Errorf("ReadAt(8) = %d, %v, want 2, EOF", n, err)
		}
		if !bytes.Equal(p[:n], []byte("89")) {
			t.Errorf("ReadAt(8) read %q", p[:n])
		}
	})

	t.Run("missing object", func(t *testing.T) {
		if _, err := m.Open("nope"); !errors.Is(err, redun.ErrNotFound) {
			t.Errorf("Open() error = %v, want ErrNotFound", err)
		}
		if _, err := m.ReadAt("nope", make([]byte, 1), 0); !errors.Is(err, redun.ErrNotFound) {
			t.Errorf("ReadAt() error = %v, want ErrNotFound", err)
		}
		if err := m.Remove("nope"); err != nil {
			t.Errorf("Remove() of missing object error = %v", err)
		}
	})

	t.Run("list and remove", func(t *testing.T) {
		put("gen.r/0000000001", "y")
		put("gen.r/0000000000", "x")
		put("gen.r.meta", "m")

		names, err := m.List("gen.r/")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{"gen.r/0000000000", "gen.r/0000000001"}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("List() = %v, want %v", names, want)
		}

		if err := m.Remove("gen.r/0000000000"); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}
		names, _ = m.List("gen.r/")
		if len(names) != 1 {
			t.Errorf("List() after Remove = %v", names)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := m.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryMedium(t *testing.T) {
	testMediumContract(t, NewMemoryMedium("mem"))
}

func TestFileSystemMedium(t *testing.T) {
	m, err := NewFileSystemMedium("fs", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemMedium() error = %v", err)
	}
	testMediumContract(t, m)
}

func TestS3Medium(t *testing.T) {
	fake := newFakeS3()
	testMediumContract(t, NewS3Medium("s3", "bucket", "redun/", fake, fake))

	if _, ok := fake.objects["redun/set/a"]; !ok {
		t.Error("objects are not stored under the configured prefix")
	}
}
