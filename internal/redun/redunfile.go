package redun

import (
	"errors"
	"fmt"
	"hash"

	"redun-go/internal/block"
	"redun-go/internal/digest"
	"redun-go/internal/metadata"
)

// DefaultMaxBlocks is the number of parity blocks per redundancy file.
const DefaultMaxBlocks = 1000

var errClosed = errors.New("redundancy file is closed")

// RedunFile accumulates parity blocks in temporary storage until it is
// flushed to the redundancy medium or aborted. The stream it writes is
//
//	Version | Block(parity) | Block(parity) ...
type RedunFile struct {
	key     string
	storage TempStorage
	temp    TempFile
	hasher  digest.Hasher
	running hash.Hash
	first   uint64
	used    int
	max     int
	scratch []byte
	closed  bool
}

// OpenRedunFile starts a redundancy file whose first block is block number
// first of the data set.
func OpenRedunFile(storage TempStorage, key string, maxBlocks int, first uint64, hasher digest.Hasher, v metadata.Version) (*RedunFile, error) {
	if maxBlocks <= 0 {
		return nil, fmt.Errorf("redundancy file capacity must be positive, got %d", maxBlocks)
	}

	temp, err := storage.Create(key)
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}

	hdr := make([]byte, metadata.VersionSize)
	v.Encode(hdr)
	if _, err := temp.Write(hdr); err != nil {
		temp.Discard()
		return nil, fmt.Errorf("writing version: %w", err)
	}

	return &RedunFile{
		key:     key,
		storage: storage,
		temp:    temp,
		hasher:  hasher,
		running: hasher.New(),
		first:   first,
		max:     maxBlocks,
	}, nil
}

// Key returns the temporary storage key of the file.
func (f *RedunFile) Key() string { return f.key }

// Len returns the number of blocks accumulated so far.
func (f *RedunFile) Len() int { return f.used }

// Full reports whether the file has reached capacity.
func (f *RedunFile) Full() bool { return f.used >= f.max }

// Accumulate appends payload as one hashed block. It returns
// ErrCapacityExhausted once the file is full.
func (f *RedunFile) Accumulate(payload []byte) (metadata.Extent, error) {
	if f.closed {
		return metadata.Extent{}, errClosed
	}
	if f.Full() {
		return metadata.Extent{}, ErrCapacityExhausted
	}

	f.scratch = block.Append(f.scratch[:0], payload, f.hasher)
	if _, err := f.temp.Write(f.scratch); err != nil {
		return metadata.Extent{}, fmt.Errorf("writing parity block: %w", err)
	}
	f.running.Write(payload)
	f.used++

	h, _ := block.DecodeHeader(f.scratch)
	return metadata.Extent{Length: uint64(len(payload)), Hash: h.Hash}, nil
}

// Flush promotes the file to dst under name, sealing it with enc when enc is
// non-nil, and releases the temporary storage. The returned segment is what
// the caller records in the manifest; nothing is recorded if Flush fails.
func (f *RedunFile) Flush(dst Medium, name string, enc Encryptor) (metadata.Segment, error) {
	if f.closed {
		return metadata.Segment{}, errClosed
	}
	defer f.Abort()

	src := f.temp
	if enc != nil {
		sealed, err := f.storage.Create(f.key + ".sealed")
		if err != nil {
			return metadata.Segment{}, fmt.Errorf("creating sealed file: %w", err)
		}
		defer sealed.Discard()

		r, err := f.temp.Open()
		if err != nil {
			return metadata.Segment{}, fmt.Errorf("opening temporary file: %w", err)
		}
		err = enc.Encrypt(r, sealed)
		r.Close()
		if err != nil {
			return metadata.Segment{}, fmt.Errorf("encrypting segment: %w", err)
		}
		src = sealed
	}

	r, err := src.Open()
	if err != nil {
		return metadata.Segment{}, fmt.Errorf("opening temporary file: %w", err)
	}
	defer r.Close()

	if err := dst.Put(name, r, src.Size()); err != nil {
		return metadata.Segment{}, fmt.Errorf("storing segment %s: %w", name, err)
	}

	return metadata.Segment{
		Name:  name,
		First: f.first,
		Count: uint64(f.used),
		Hash:  digest.Finish(f.running),
	}, nil
}

// Abort discards the file. It is safe to call more than once.
func (f *RedunFile) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.temp.Discard()
}
