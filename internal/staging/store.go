package staging

import "io"

// stagingStore abstracts the storage mechanics for temporary storage.
// Concurrency is managed by the caller (tempStorage.mu), so stores do not
// need to be safe for concurrent use.
type stagingStore interface {
	// Create opens a new empty file.
	Create() (storeFile, error)
}

// storeFile is one scratch file held by a stagingStore.
type storeFile interface {
	io.Writer

	// Open returns a reader over everything written so far.
	Open() (io.ReadCloser, error)

	// Remove deletes the file (best-effort).
	Remove() error
}
