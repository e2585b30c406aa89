package app

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"redun-go/internal/config"
	"redun-go/internal/fs"
	"redun-go/internal/metadata"
	"redun-go/internal/redun"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewConfig("test-host", dir)
	cfg.Media = config.MediaConfig{
		Primary:    config.MediumConfig{Type: "memory", Name: "primary"},
		Secondary:  config.MediumConfig{Type: "memory", Name: "secondary"},
		Redundancy: config.MediumConfig{Type: "memory", Name: "redundancy"},
	}
	cfg.Catalog = config.CatalogConfig{Type: "memory"}
	cfg.Staging = config.StagingConfig{Type: "memory", MaxSize: 1 << 20}
	cfg.Redundancy.BlockSize = 64
	cfg.Redundancy.MaxBlocks = 4
	return cfg
}

func filesystemConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig("test-host", t.TempDir())
	cfg.Staging = config.StagingConfig{Type: "memory", MaxSize: 1 << 20}
	cfg.Redundancy.BlockSize = 64
	cfg.Redundancy.MaxBlocks = 4
	return cfg
}

func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	return p
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func TestRedunApp_PutCheckGet(t *testing.T) {
	cfg := memoryConfig(t)
	a, err := NewRedunApp(cfg, "Put")
	if err != nil {
		t.Fatalf("NewRedunApp() error = %v", err)
	}
	defer a.Close()

	data := testData(1000)
	ds, err := a.PutSplit("photos", writeInput(t, "album.tar", data))
	if err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}
	if ds.Size != 1000 || ds.PrimaryPath != "photos/album.tar.part1" {
		t.Errorf("PutSplit() = %+v", ds)
	}
	if !a.op.Persisted() {
		t.Error("Put did not persist its operation")
	}

	report, err := a.Check("photos")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !report.Healthy() {
		t.Errorf("Check() damaged = %v", report.Damaged())
	}

	var buf bytes.Buffer
	if _, err := a.Get("photos", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("Get() returned %d bytes that differ from the input", buf.Len())
	}

	checks, err := a.Checks("photos", 10)
	if err != nil {
		t.Fatalf("Checks() error = %v", err)
	}
	if len(checks) != 1 || !checks[0].Healthy {
		t.Errorf("Checks() = %+v", checks)
	}
}

func TestRedunApp_PutTree(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Ignore = []string{"*.bak"}
	a, err := NewRedunApp(cfg, "Put")
	if err != nil {
		t.Fatalf("NewRedunApp() error = %v", err)
	}
	defer a.Close()

	root := t.TempDir()
	files := map[string][]byte{
		"index.html":      testData(120),
		"img/logo.png":    testData(900),
		"img/icons/a.svg": testData(40),
		"docs/guide.md":   testData(700),
		"docs/old.bak":    testData(10),
		"cache/blob.tmp":  testData(10),
		fs.IgnoreFileName: []byte("*.tmp\n"),
	}
	for name, data := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	ds, err := a.PutTree("site", root)
	if err != nil {
		t.Fatalf("PutTree() error = %v", err)
	}
	if ds.Mode != redun.ModeTree || ds.PrimaryPath != "site/"+filepath.Base(root)+".part1.tar" {
		t.Errorf("PutTree() = %+v", ds)
	}

	var buf bytes.Buffer
	if _, err := a.Get("site", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	total := buf.Len()
	got := map[string][]byte{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("reading archive: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		got[hdr.Name] = data
	}

	for _, name := range []string{"index.html", "img/logo.png", "img/icons/a.svg", "docs/guide.md"} {
		if !bytes.Equal(got[name], files[name]) {
			t.Errorf("%s missing or changed in the archive", name)
		}
	}
	for _, name := range []string{"docs/old.bak", "cache/blob.tmp", fs.IgnoreFileName} {
		if _, ok := got[name]; ok {
			t.Errorf("ignored %s was archived", name)
		}
	}

	var primary bytes.Buffer
	if _, err := a.GetCopy("site", metadata.Primary, &primary); err != nil {
		t.Fatalf("GetCopy(primary) error = %v", err)
	}
	if primary.Len() == 0 || primary.Len() >= total {
		t.Errorf("primary copy is %d bytes, want part of the archive", primary.Len())
	}
}

func TestRedunApp_PutPairRejectsDirectory(t *testing.T) {
	cfg := memoryConfig(t)
	a, err := NewRedunApp(cfg, "Put")
	if err != nil {
		t.Fatalf("NewRedunApp() error = %v", err)
	}
	defer a.Close()

	if _, err := a.PutPair("pair", t.TempDir(), writeInput(t, "b", testData(10))); err == nil {
		t.Fatal("PutPair() expected error for a directory input")
	}
	if a.op.Persisted() {
		t.Error("rejected input persisted an operation")
	}
}

func TestRedunApp_Media(t *testing.T) {
	cfg := filesystemConfig(t)
	a, err := NewRedunApp(cfg, "Media")
	if err != nil {
		t.Fatalf("NewRedunApp() error = %v", err)
	}
	defer a.Close()

	infos := a.Media()
	if len(infos) != 3 {
		t.Fatalf("Media() returned %d entries, want 3", len(infos))
	}
	for i, want := range []string{"primary", "secondary", "redundancy"} {
		if infos[i].Name != want || infos[i].Role.String() != want {
			t.Errorf("Media()[%d] = %s/%s, want %s", i, infos[i].Role, infos[i].Name, want)
		}
		if infos[i].SetupErr != nil {
			t.Errorf("Media()[%d].SetupErr = %v", i, infos[i].SetupErr)
		}
		if !infos[i].HasUsage || infos[i].Total == 0 {
			t.Errorf("Media()[%d] usage = %v %d", i, infos[i].HasUsage, infos[i].Total)
		}
	}
}

func TestRedunApp_CatalogSnapshotAndRestore(t *testing.T) {
	cfg := filesystemConfig(t)
	data := testData(500)

	a, err := NewRedunApp(cfg, "Put")
	if err != nil {
		t.Fatalf("NewRedunApp() error = %v", err)
	}
	if _, err := a.PutSplit("docs", writeInput(t, "docs.tar", data)); err != nil {
		t.Fatalf("PutSplit() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, m := range cfg.MediaList() {
		if _, err := os.Stat(filepath.Join(m.FSRoot, ".redun", "catalog", "test-host.db.zst")); err != nil {
			t.Errorf("no catalog snapshot on %s: %v", m.Name, err)
		}
	}

	// Lose the local catalog.
	if err := os.RemoveAll(cfg.Catalog.DataDir); err != nil {
		t.Fatalf("removing catalog: %v", err)
	}

	_, err = NewRedunApp(cfg, "List")
	if err == nil || !strings.Contains(err.Error(), "behind") {
		t.Fatalf("NewRedunApp() error = %v, want a behind error", err)
	}

	version, err := RestoreCatalog(cfg)
	if err != nil {
		t.Fatalf("RestoreCatalog() error = %v", err)
	}
	if version != 1 {
		t.Errorf("RestoreCatalog() version = %d, want 1", version)
	}

	a, err = NewRedunApp(cfg, "List")
	if err != nil {
		t.Fatalf("NewRedunApp() after restore error = %v", err)
	}
	defer a.Close()

	sets, err := a.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sets) != 1 || sets[0].Name != "docs" {
		t.Fatalf("List() = %+v, want docs", sets)
	}

	var buf bytes.Buffer
	if _, err := a.Get("docs", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("Get() after restore differs from the input")
	}
}

func TestRestoreCatalog_NoSnapshot(t *testing.T) {
	cfg := filesystemConfig(t)
	if _, err := RestoreCatalog(cfg); err == nil {
		t.Fatal("RestoreCatalog() expected error without snapshots")
	}
}
