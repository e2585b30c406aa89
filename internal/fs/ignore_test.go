package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		logical  string
		want     bool
	}{
		{"base name glob at the root", []string{"*.tmp"}, "a.tmp", true},
		{"base name glob at depth", []string{"*.tmp"}, "raw/2019/a.tmp", true},
		{"base name glob other extension", []string{"*.tmp"}, "raw/a.jpg", false},
		{"anchored pattern", []string{"raw/cache"}, "raw/cache", true},
		{"anchored pattern only from the root", []string{"raw/cache"}, "old/raw/cache", false},
		{"leading slash anchors", []string{"/build"}, "build", true},
		{"leading slash not at depth", []string{"/build"}, "src/build", false},
		{"comments and blanks are skipped", []string{"# *.jpg", "", "   "}, "a.jpg", false},
		{"ignore file itself", nil, IgnoreFileName, true},
		{"ignore file in a subdirectory", nil, "raw/" + IgnoreFileName, true},
		{"malformed glob never matches", []string{"[a"}, "[a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.logical); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.logical, got, tt.want)
			}
		})
	}
}

func TestReadIgnoreFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		lines, err := ReadIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ReadIgnoreFile() error = %v", err)
		}
		if lines != nil {
			t.Errorf("ReadIgnoreFile() = %v, want nil", lines)
		}
	})

	t.Run("lines in order", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(p, []byte("# scratch\n*.tmp\ncache/index\n"), 0644); err != nil {
			t.Fatal(err)
		}
		lines, err := ReadIgnoreFile(p)
		if err != nil {
			t.Fatalf("ReadIgnoreFile() error = %v", err)
		}
		want := []string{"# scratch", "*.tmp", "cache/index"}
		if len(lines) != len(want) {
			t.Fatalf("ReadIgnoreFile() = %v, want %v", lines, want)
		}
		for i := range want {
			if lines[i] != want[i] {
				t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
			}
		}
	})
}
