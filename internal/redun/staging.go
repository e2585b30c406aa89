package redun

import "io"

// TempStorage provides scratch files for data that is assembled before being
// promoted to a medium. Implementations enforce a total size budget shared by
// all open files.
type TempStorage interface {
	// Create opens a new empty scratch file. key must be unique among the
	// files currently open.
	Create(key string) (TempFile, error)

	// Size returns the number of bytes currently held.
	Size() int64
}

// TempFile is an append-only scratch file.
type TempFile interface {
	// Write appends p. A write that would exceed the storage budget fails
	// without writing anything.
	io.Writer

	Key() string
	Size() int64

	// Open returns a reader over everything written so far.
	Open() (io.ReadCloser, error)

	// Discard deletes the file and returns its bytes to the budget.
	Discard() error
}
