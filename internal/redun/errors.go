package redun

import (
	"errors"
	"fmt"
	"strings"

	"redun-go/internal/block"
	"redun-go/internal/metadata"
)

var (
	// ErrNotFound is wrapped by media when an object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrCapacityExhausted is returned by RedunFile.Accumulate once the file
	// holds its maximum number of blocks. The caller flushes and rotates.
	ErrCapacityExhausted = errors.New("redundancy file is full")

	// ErrNotIntact is matched by every *NotIntactError.
	ErrNotIntact = errors.New("copy is not intact")

	// ErrUnrecoverable is matched by every *UnrecoverableError.
	ErrUnrecoverable = errors.New("data set is unrecoverable")

	// ErrLocked is returned when encrypted redundancy data is needed but no
	// decryption context was supplied.
	ErrLocked = errors.New("redundancy data is encrypted and locked")
)

// NotIntactError reports a copy whose block stream has a damaged block.
type NotIntactError struct {
	Role   metadata.Role
	Offset int
	State  block.State
}

func (e *NotIntactError) Error() string {
	return fmt.Sprintf("%s copy has an %s block at offset %d", e.Role, e.State, e.Offset)
}

func (e *NotIntactError) Is(target error) bool {
	return target == ErrNotIntact
}

// UnrecoverableError reports a block lost from more than one copy.
type UnrecoverableError struct {
	Index uint64
	Lost  []metadata.Role
}

func (e *UnrecoverableError) Error() string {
	names := make([]string, len(e.Lost))
	for i, r := range e.Lost {
		names[i] = r.String()
	}
	return fmt.Sprintf("block %d lost from %s copies", e.Index, strings.Join(names, " and "))
}

func (e *UnrecoverableError) Is(target error) bool {
	return target == ErrUnrecoverable
}
