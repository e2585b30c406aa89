package redun

import "io"

// Medium is a storage target holding one copy of a data set. Objects are
// addressed by slash-separated names. Implementations must be safe for
// concurrent use.
type Medium interface {
	// Name identifies the medium in logs and reports.
	Name() string

	// Put stores size bytes read from r under name, replacing any existing
	// object atomically: readers see either the old or the new object.
	Put(name string, r io.Reader, size int64) error

	// Open returns a read-only view of the whole object. The view is valid
	// until Close.
	Open(name string) (Object, error)

	// ReadAt reads len(p) bytes of the object starting at off, with the
	// semantics of io.ReaderAt.
	ReadAt(name string, p []byte, off int64) (int, error)

	// Stat returns the object's size.
	Stat(name string) (int64, error)

	// Remove deletes the object. Removing a missing object is not an error.
	Remove(name string) error

	// List returns the names of all objects starting with prefix, sorted.
	List(prefix string) ([]string, error)

	// ValidateSetup verifies that the medium is reachable and writable.
	ValidateSetup() error
}

// Object is an opened medium object.
type Object interface {
	Bytes() []byte
	Close() error
}

// Media groups the three media of a data set.
type Media struct {
	Primary    Medium
	Secondary  Medium
	Redundancy Medium
}
