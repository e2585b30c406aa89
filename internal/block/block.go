// Package block implements the hashed block format: a 28-byte header holding
// a digest and a payload length, followed by the payload itself.
//
//	hash[20] | length:u64 (little-endian) | payload[length]
//
// Blocks borrow their bytes from a caller-owned buffer and never copy them.
package block

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"redun-go/internal/digest"
)

// HeaderSize is the encoded size of a Header.
const HeaderSize = digest.Size + 8

// ErrInsufficientSpace is matched by every *InsufficientSpaceError.
var ErrInsufficientSpace = errors.New("insufficient space")

// InsufficientSpaceError reports a block that does not fit in the remaining
// buffer. Required includes the header.
type InsufficientSpaceError struct {
	Available uint64
	Required  uint64
}

func (e *InsufficientSpaceError) Error() string {
	return fmt.Sprintf("insufficient space: %d bytes available, %d required", e.Available, e.Required)
}

func (e *InsufficientSpaceError) Is(target error) bool {
	return target == ErrInsufficientSpace
}

// Header describes the payload that follows it.
type Header struct {
	Hash   digest.Hash
	Length uint64
}

// Encode writes h into the first HeaderSize bytes of dst.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	copy(dst[:digest.Size], h.Hash[:])
	binary.LittleEndian.PutUint64(dst[digest.Size:HeaderSize], h.Length)
}

// DecodeHeader reads a Header from the front of src.
func DecodeHeader(src []byte) (Header, error) {
	var h Header
	if len(src) < HeaderSize {
		return h, &InsufficientSpaceError{Available: uint64(len(src)), Required: HeaderSize}
	}
	copy(h.Hash[:], src[:digest.Size])
	h.Length = binary.LittleEndian.Uint64(src[digest.Size:HeaderSize])
	return h, nil
}

// Block is a header and payload region carved from a larger buffer.
type Block struct {
	raw    []byte
	hasher digest.Hasher
}

// Create reserves room for a block with a payloadSize-byte payload at the
// front of *buf and advances *buf past it. The header length is set; the hash
// is left for RecomputeHash once the payload has been filled in.
func Create(buf *[]byte, payloadSize int, hasher digest.Hasher) (*Block, error) {
	if payloadSize < 0 {
		return nil, fmt.Errorf("negative payload size: %d", payloadSize)
	}
	required := uint64(payloadSize) + HeaderSize
	if available := uint64(len(*buf)); available < required {
		return nil, &InsufficientSpaceError{Available: available, Required: required}
	}

	raw := (*buf)[:required:required]
	*buf = (*buf)[required:]

	Header{Length: uint64(payloadSize)}.Encode(raw)
	return &Block{raw: raw, hasher: hasher}, nil
}

// Parse reads the header at the front of *buf and, if the declared payload
// fits, carves the block and advances *buf past it. On failure *buf is left
// untouched.
func Parse(buf *[]byte, hasher digest.Hasher) (*Block, error) {
	h, err := DecodeHeader(*buf)
	if err != nil {
		return nil, err
	}

	available := uint64(len(*buf))
	required := uint64(math.MaxUint64)
	if h.Length <= math.MaxUint64-HeaderSize {
		required = h.Length + HeaderSize
	}
	if available < required {
		return nil, &InsufficientSpaceError{Available: available, Required: required}
	}

	raw := (*buf)[:required:required]
	*buf = (*buf)[required:]
	return &Block{raw: raw, hasher: hasher}, nil
}

// Header decodes the block's header.
func (b *Block) Header() Header {
	h, _ := DecodeHeader(b.raw)
	return h
}

// Size is the total encoded size of the block, header included.
func (b *Block) Size() int {
	return len(b.raw)
}

// Bytes returns the encoded block, header included.
func (b *Block) Bytes() []byte {
	return b.raw
}

// Payload returns the region after the header. It panics if the header's
// declared length no longer matches the carved region.
func (b *Block) Payload() []byte {
	payload := b.raw[HeaderSize:]
	if uint64(len(payload)) != b.Header().Length {
		panic(fmt.Sprintf("block: payload is %d bytes but header declares %d", len(payload), b.Header().Length))
	}
	return payload
}

// RecomputeHash hashes the payload and stores the digest in the header.
func (b *Block) RecomputeHash() {
	sum := digest.Sum(b.hasher, b.Payload())
	copy(b.raw[:digest.Size], sum[:])
}

// VerifyHash reports whether the stored digest matches the payload.
func (b *Block) VerifyHash() bool {
	return digest.Sum(b.hasher, b.Payload()) == b.Header().Hash
}

// Append encodes payload as a hashed block at the end of dst and returns the
// extended slice.
func Append(dst []byte, payload []byte, hasher digest.Hasher) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, HeaderSize+len(payload))...)
	view := dst[start:]
	b, err := Create(&view, len(payload), hasher)
	if err != nil {
		panic(err) // view was sized above
	}
	copy(b.Payload(), payload)
	b.RecomputeHash()
	return dst
}
