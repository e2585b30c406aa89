// Package fs reads a local directory tree into the units that a directory
// put stores, and plans how they are laid out over the two data copies.
package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// File is a regular file found by Walk.
type File struct {
	Path    string // location on disk
	Logical string // slash-separated path relative to the tree root
	Size    int64
}

// Unit is a directory together with its immediate files. Units are the
// smallest piece of a tree that is placed on one data copy.
type Unit struct {
	Dir    string // logical path of the directory, "." for the root
	Parent int    // index of the parent unit, -1 for the root
	Files  []File
	Size   int64
}

// Small reports whether no visible file of the unit exceeds
// SmallFileUpperBound.
func (u *Unit) Small() bool {
	for _, f := range u.Files {
		if strings.HasPrefix(path.Base(f.Logical), ".") {
			continue
		}
		if f.Size > SmallFileUpperBound {
			return false
		}
	}
	return true
}

// Skip is an entry Walk left out of the tree.
type Skip struct {
	Logical string
	Reason  string
}

// Tree is a directory read by Walk. Units are in depth-first order with the
// root first; entries within a directory are in name order.
type Tree struct {
	Root    string
	Units   []*Unit
	Skipped []Skip
}

// Size returns the total bytes of all files.
func (t *Tree) Size() int64 {
	var n int64
	for _, u := range t.Units {
		n += u.Size
	}
	return n
}

// Files returns every file of the tree in archive order.
func (t *Tree) Files() []File {
	var files []File
	for _, u := range t.Units {
		files = append(files, u.Files...)
	}
	return files
}

// Walk reads the directory at root. Symlinks are followed; broken ones and
// links back to a directory already being walked are recorded in Skipped.
// Entries matched by ignore are left out silently.
func Walk(root string, ignore *IgnoreMatcher) (*Tree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", abs)
	}
	if ignore == nil {
		ignore = NewIgnoreMatcher(nil)
	}

	w := &walker{tree: &Tree{Root: abs}, ignore: ignore}
	if err := w.dir(abs, ".", -1, nil); err != nil {
		return nil, err
	}
	return w.tree, nil
}

type walker struct {
	tree   *Tree
	ignore *IgnoreMatcher
}

func (w *walker) skip(logical, reason string) {
	w.tree.Skipped = append(w.tree.Skipped, Skip{Logical: logical, Reason: reason})
}

// dir adds the unit for the directory at p and then walks its
// subdirectories. ancestors holds the resolved paths of the directories
// above p.
func (w *walker) dir(p, logical string, parent int, ancestors []string) error {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", p, err)
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", p, err)
	}

	index := len(w.tree.Units)
	unit := &Unit{Dir: logical, Parent: parent}
	w.tree.Units = append(w.tree.Units, unit)
	ancestors = append(ancestors, resolved)

	type subdir struct{ path, logical string }
	var subdirs []subdir
	for _, e := range entries {
		full := filepath.Join(p, e.Name())
		rel := path.Join(logical, e.Name())
		if w.ignore.Match(rel) {
			continue
		}

		info, err := os.Stat(full)
		if err != nil {
			if e.Type()&fs.ModeSymlink != 0 && errors.Is(err, fs.ErrNotExist) {
				w.skip(rel, "broken symlink")
				continue
			}
			return fmt.Errorf("stat %s: %w", full, err)
		}

		switch {
		case info.IsDir():
			if e.Type()&fs.ModeSymlink != 0 {
				target, err := filepath.EvalSymlinks(full)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", full, err)
				}
				if cycles(target, ancestors) {
					w.skip(rel, "symlink cycle")
					continue
				}
			}
			subdirs = append(subdirs, subdir{full, rel})
		case info.Mode().IsRegular():
			unit.Files = append(unit.Files, File{Path: full, Logical: rel, Size: info.Size()})
			unit.Size += info.Size()
		default:
			w.skip(rel, "not a regular file")
		}
	}

	for _, sd := range subdirs {
		if err := w.dir(sd.path, sd.logical, index, ancestors); err != nil {
			return err
		}
	}
	return nil
}

// cycles reports whether walking target would revisit one of ancestors:
// target is one of them or contains one of them.
func cycles(target string, ancestors []string) bool {
	for _, a := range ancestors {
		if a == target || strings.HasPrefix(a, strings.TrimSuffix(target, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
