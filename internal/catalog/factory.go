package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"redun-go/internal/config"
	"redun-go/internal/redun"
)

// FilePath returns the catalog file of hostID under dataDir.
func FilePath(dataDir, hostID string) string {
	return filepath.Join(dataDir, hostID+".db")
}

// NewCatalogFromConfig opens the catalog named by cfg and brings its schema
// up to date.
func NewCatalogFromConfig(cfg config.CatalogConfig, hostID string, clock redun.Clock) (*SQLiteCatalog, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite catalog")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
		path = FilePath(cfg.DataDir, hostID)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown catalog type: %s", cfg.Type)
	}

	c, err := NewSQLiteCatalog(path, clock)
	if err != nil {
		return nil, err
	}
	if err := c.Migrate(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
