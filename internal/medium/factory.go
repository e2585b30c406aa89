package medium

import (
	"context"
	"fmt"

	"redun-go/internal/config"
	"redun-go/internal/redun"
)

// NewMediumFromConfig creates a Medium implementation based on the medium config type.
func NewMediumFromConfig(cfg config.MediumConfig) (redun.Medium, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryMedium(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 medium requires s3_bucket to be set")
		}
		return NewS3MediumFromConfig(context.Background(), cfg)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem medium requires fs_root to be set")
		}
		return NewFileSystemMedium(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown medium type: %s", cfg.Type)
	}
}

// NewMediaFromConfig creates the primary, secondary, and redundancy media.
func NewMediaFromConfig(cfg config.MediaConfig) (redun.Media, error) {
	var media redun.Media
	var err error
	if media.Primary, err = NewMediumFromConfig(cfg.Primary); err != nil {
		return media, fmt.Errorf("primary medium: %w", err)
	}
	if media.Secondary, err = NewMediumFromConfig(cfg.Secondary); err != nil {
		return media, fmt.Errorf("secondary medium: %w", err)
	}
	if media.Redundancy, err = NewMediumFromConfig(cfg.Redundancy); err != nil {
		return media, fmt.Errorf("redundancy medium: %w", err)
	}
	return media, nil
}

// Usager is implemented by media that can report their capacity.
type Usager interface {
	Usage() (total, free uint64, err error)
}
