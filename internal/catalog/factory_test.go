package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"redun-go/internal/config"
)

func TestNewCatalogFromConfig(t *testing.T) {
	t.Run("memory catalog is migrated", func(t *testing.T) {
		c, err := NewCatalogFromConfig(config.CatalogConfig{Type: "memory"}, "host-1", nil)
		if err != nil {
			t.Fatalf("NewCatalogFromConfig() error = %v", err)
		}
		defer c.Close()

		if err := c.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite catalog is created under data_dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "catalog")
		c, err := NewCatalogFromConfig(config.CatalogConfig{Type: "sqlite", DataDir: dir}, "host-1", nil)
		if err != nil {
			t.Fatalf("NewCatalogFromConfig() error = %v", err)
		}
		defer c.Close()

		if c.Path() != FilePath(dir, "host-1") {
			t.Errorf("Path() = %q, want %q", c.Path(), FilePath(dir, "host-1"))
		}
		if _, err := os.Stat(c.Path()); err != nil {
			t.Errorf("catalog file not created: %v", err)
		}
	})

	tests := []struct {
		name string
		cfg  config.CatalogConfig
	}{
		{"sqlite without data_dir", config.CatalogConfig{Type: "sqlite"}},
		{"unknown type", config.CatalogConfig{Type: "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalogFromConfig(tt.cfg, "host-1", nil)
			if err == nil {
				c.Close()
				t.Fatal("NewCatalogFromConfig() expected error")
			}
			if c != nil {
				t.Error("NewCatalogFromConfig() should return nil on error")
			}
		})
	}
}
