package redun

import (
	"errors"
	"fmt"
	"io"

	"redun-go/internal/block"
	"redun-go/internal/digest"
	"redun-go/internal/metadata"
)

// DefaultBlockSize is the payload size used when chunking input into a data
// stream.
const DefaultBlockSize = 64 << 10

// WriteStream chunks r into hashed blocks of at most blockSize payload bytes
// and stores the resulting stream under name on dst. The stream is assembled
// in temporary storage first so that dst only ever sees a complete object.
// It returns the number of payload bytes and blocks written.
func WriteStream(temp TempStorage, dst Medium, name string, r io.Reader, blockSize int, h digest.Hasher) (int64, int64, error) {
	if blockSize <= 0 {
		return 0, 0, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	tf, err := temp.Create(name)
	if err != nil {
		return 0, 0, fmt.Errorf("creating temporary file: %w", err)
	}
	defer tf.Discard()

	var size, blocks int64
	payload := make([]byte, blockSize)
	var encoded []byte
	for {
		n, err := io.ReadFull(r, payload)
		if n > 0 {
			encoded = block.Append(encoded[:0], payload[:n], h)
			if _, werr := tf.Write(encoded); werr != nil {
				return size, blocks, fmt.Errorf("writing block %d: %w", blocks, werr)
			}
			size += int64(n)
			blocks++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return size, blocks, fmt.Errorf("reading input: %w", err)
		}
	}

	rc, err := tf.Open()
	if err != nil {
		return size, blocks, fmt.Errorf("opening temporary file: %w", err)
	}
	defer rc.Close()
	if err := dst.Put(name, rc, tf.Size()); err != nil {
		return size, blocks, fmt.Errorf("storing %s on %s: %w", name, dst.Name(), err)
	}
	return size, blocks, nil
}

// ReadStream verifies the data stream stored under name on m block by block
// and writes the payloads to w. It stops at the first block that is not
// intact with a *NotIntactError for role.
func ReadStream(m Medium, role metadata.Role, name string, h digest.Hasher, w io.Writer) (int64, error) {
	size, err := m.Stat(name)
	if err != nil {
		return 0, err
	}

	var off, written int64
	hdr := make([]byte, block.HeaderSize)
	var buf []byte
	for off < size {
		if n, err := m.ReadAt(name, hdr, off); n < len(hdr) {
			if err == nil || errors.Is(err, io.EOF) {
				return written, &NotIntactError{Role: role, Offset: int(off), State: block.Incomplete}
			}
			return written, err
		}
		header, _ := block.DecodeHeader(hdr)
		if header.Length > uint64(size-off-block.HeaderSize) {
			return written, &NotIntactError{Role: role, Offset: int(off), State: block.Incomplete}
		}

		n := block.HeaderSize + int(header.Length)
		if cap(buf) < n {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		if k, err := m.ReadAt(name, buf, off); k < n {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return written, fmt.Errorf("reading block at offset %d: %w", off, err)
		}
		view := buf
		b, err := block.Parse(&view, h)
		if err != nil || !b.VerifyHash() {
			return written, &NotIntactError{Role: role, Offset: int(off), State: block.Invalid}
		}

		k, err := w.Write(b.Payload())
		written += int64(k)
		if err != nil {
			return written, err
		}
		off += int64(n)
	}
	return written, nil
}

// ReadCopy verifies the data copy stored under name on m against the meta
// file f before writing any of it to w. Every block must be intact, the
// copy must hold the number of blocks the manifest assigns to role, and the
// whole object must hash to the digest in the record. Any mismatch is a
// *NotIntactError and nothing is written.
func ReadCopy(m Medium, role metadata.Role, name string, f *metadata.File, h digest.Hasher, w io.Writer) (int64, error) {
	obj, found, err := readObject(m, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%s copy %s: %w", role, name, ErrNotFound)
	}
	defer obj.Close()
	data := obj.Bytes()

	want := 0
	for _, e := range f.Manifest.Entries {
		if e.Kind.Has(role) {
			want++
		}
	}

	payloads := make([][]byte, 0, want)
	for r := range block.Scan(data, h) {
		if r.State != block.Intact {
			return 0, &NotIntactError{Role: role, Offset: r.Offset, State: r.State}
		}
		payloads = append(payloads, r.Block.Payload())
	}
	if len(payloads) != want {
		return 0, &NotIntactError{Role: role, Offset: len(data), State: block.Incomplete}
	}
	if digest.Sum(h, data) != f.Record.Hash(role) {
		return 0, &NotIntactError{Role: role, Offset: 0, State: block.Invalid}
	}

	var written int64
	for _, p := range payloads {
		n, err := w.Write(p)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
