package fs

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
)

// WriteArchive writes the files of units to w as tar entries named by their
// logical paths. Without trailer the end-of-archive marker is left off, so
// the output followed by another archive reads as one archive.
func WriteArchive(w io.Writer, units []*Unit, trailer bool) error {
	tw := tar.NewWriter(w)
	for _, u := range units {
		for _, f := range u.Files {
			if err := addFile(tw, f); err != nil {
				return err
			}
		}
	}
	if trailer {
		return tw.Close()
	}
	return tw.Flush()
}

func addFile(tw *tar.Writer, f File) error {
	in, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Logical, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Logical, err)
	}
	if info.Size() != f.Size {
		return fmt.Errorf("%s changed size during put: %d -> %d bytes", f.Logical, f.Size, info.Size())
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %s: %w", f.Logical, err)
	}
	hdr.Name = f.Logical
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", f.Logical, err)
	}
	if _, err := io.CopyN(tw, in, f.Size); err != nil {
		return fmt.Errorf("archiving %s: %w", f.Logical, err)
	}
	return nil
}

// ArchiveReader returns a reader producing WriteArchive's output. A failure
// while archiving surfaces as the reader's error. Closing the reader early
// stops the archiving.
func ArchiveReader(units []*Unit, trailer bool) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(WriteArchive(pw, units, trailer))
	}()
	return pr
}
