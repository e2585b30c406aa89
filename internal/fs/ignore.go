package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// IgnoreFileName is the per-directory-tree ignore file read by directory puts.
// It is never archived itself.
const IgnoreFileName = ".redunignore"

type ignorePattern struct {
	glob     string
	anchored bool // matched against the whole logical path instead of the base name
}

// IgnoreMatcher decides which files of a tree are left out of a put.
// Patterns without '/' match the base name at any depth. Patterns with '/'
// match the logical path from the root of the tree.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher compiles raw patterns. Blank lines and '#' comments are
// skipped.
func NewIgnoreMatcher(raw []string) *IgnoreMatcher {
	m := &IgnoreMatcher{patterns: []ignorePattern{{glob: IgnoreFileName}}}
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, ignorePattern{
			glob:     strings.TrimPrefix(line, "/"),
			anchored: strings.Contains(line, "/"),
		})
	}
	return m
}

// Match reports whether the file or directory at the slash-separated logical
// path is ignored.
func (m *IgnoreMatcher) Match(logical string) bool {
	base := path.Base(logical)
	for _, p := range m.patterns {
		subject := base
		if p.anchored {
			subject = logical
		}
		// A malformed glob never matches.
		if ok, err := path.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ReadIgnoreFile returns the lines of an ignore file, or nil when it does not
// exist.
func ReadIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
