package testutil

import (
	"testing"

	"redun-go/internal/catalog"
)

// NewTestCatalog creates a migrated in-memory catalog using the fixed clock.
// The catalog is closed when the test completes.
func NewTestCatalog(t *testing.T) *catalog.SQLiteCatalog {
	t.Helper()

	c, err := catalog.NewSQLiteCatalog(":memory:", FixedClock())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	if err := c.Migrate(); err != nil {
		c.Close()
		t.Fatalf("failed to migrate catalog: %v", err)
	}

	t.Cleanup(func() {
		c.Close()
	})
	return c
}
