package staging

import (
	"fmt"

	"redun-go/internal/config"
	"redun-go/internal/redun"
)

// DefaultMaxSize is the default temporary storage budget (1GB). Whole data
// streams are assembled here before they reach a medium.
const DefaultMaxSize int64 = 1024 * 1024 * 1024

// NewTempStorageFromConfig creates a TempStorage implementation based on the config type.
func NewTempStorageFromConfig(cfg config.StagingConfig) (redun.TempStorage, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryTempStorage(maxSize), nil
	case "filesystem":
		if cfg.StagingDir == "" {
			return nil, fmt.Errorf("filesystem staging area requires staging_dir to be set")
		}
		return NewFileSystemTempStorage(cfg.StagingDir, maxSize)
	default:
		return nil, fmt.Errorf("unknown staging area type: %s", cfg.Type)
	}
}
