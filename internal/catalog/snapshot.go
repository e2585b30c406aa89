package catalog

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Snapshot writes a zstd-compressed copy of the catalog to w. tmpDir holds
// the uncompressed VACUUM INTO copy while it is being compressed.
func (c *SQLiteCatalog) Snapshot(tmpDir string, w io.Writer) error {
	f, err := os.CreateTemp(tmpDir, "catalog-*.db")
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	path := f.Name()
	f.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(path)
	defer os.Remove(path)

	if err := c.BackupTo(path); err != nil {
		return err
	}
	return CompressFile(path, w)
}

// CompressFile writes the zstd-compressed contents of path to w.
func CompressFile(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	if _, err := io.Copy(enc, f); err != nil {
		enc.Close()
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("compressing %s: %w", path, err)
	}
	return nil
}

// RestoreFile decompresses a snapshot read from r into path. path is
// replaced only once the whole snapshot has been written.
func RestoreFile(r io.Reader, path string) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating decompressor: %w", err)
	}
	defer dec.Close()

	tmp := path + ".restore"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, dec); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("decompressing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
