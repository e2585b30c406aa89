package testutil

import (
	"redun-go/internal/redun"
	"redun-go/internal/staging"
)

// DefaultStagingMaxSize is the default max size for test temporary storage (10MB).
const DefaultStagingMaxSize = 10 * 1024 * 1024

// NewTestTempStorage creates in-memory temporary storage for testing.
func NewTestTempStorage() redun.TempStorage {
	return staging.NewMemoryTempStorage(DefaultStagingMaxSize)
}

// NewTestTempStorageWithSize creates in-memory temporary storage with a custom max size.
func NewTestTempStorageWithSize(maxSize int64) redun.TempStorage {
	return staging.NewMemoryTempStorage(maxSize)
}
