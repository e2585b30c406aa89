package metadata

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"redun-go/internal/digest"
)

// EntryKind says which copies hold block i of a data set.
type EntryKind uint8

const (
	// Paired entries have a block in both copies; the parity block is their XOR.
	Paired EntryKind = iota + 1
	// PrimaryOnly entries replicate a primary block with no secondary partner.
	PrimaryOnly
	// SecondaryOnly entries replicate a secondary block with no primary partner.
	SecondaryOnly
)

func (k EntryKind) String() string {
	switch k {
	case Paired:
		return "paired"
	case PrimaryOnly:
		return "primary-only"
	case SecondaryOnly:
		return "secondary-only"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Has reports whether entries of kind k have a block in role's copy.
func (k EntryKind) Has(role Role) bool {
	switch role {
	case Primary:
		return k == Paired || k == PrimaryOnly
	case Secondary:
		return k == Paired || k == SecondaryOnly
	default:
		return true
	}
}

// Extent is the length and payload digest of one block.
type Extent struct {
	Length uint64      `cbor:"len"`
	Hash   digest.Hash `cbor:"hash"`
}

// Entry describes block i across the three copies.
type Entry struct {
	Kind   EntryKind `cbor:"kind"`
	Blocks [3]Extent `cbor:"blocks"`
}

// Segment is one flushed redundancy file.
type Segment struct {
	Name  string `cbor:"name"`
	First uint64 `cbor:"first"`
	Count uint64 `cbor:"count"`

	// Hash is the running digest over the segment's parity payloads in order.
	Hash digest.Hash `cbor:"hash"`
}

// Manifest is the per-block index of a data set. It is stored beside the
// Record in every meta file.
type Manifest struct {
	Generation string    `cbor:"generation"`
	Hasher     string    `cbor:"hasher"`
	BlockSize  uint64    `cbor:"block_size"`
	Encrypted  bool      `cbor:"encrypted"`
	Segments   []Segment `cbor:"segments"`
	Entries    []Entry   `cbor:"entries"`
}

// SegmentFor returns the index of the segment holding parity block i.
func (m *Manifest) SegmentFor(i uint64) (int, bool) {
	for s, seg := range m.Segments {
		if i >= seg.First && i < seg.First+seg.Count {
			return s, true
		}
	}
	return 0, false
}

// SegmentsDigest folds the segment hashes into the redundancy copy's digest.
func (m *Manifest) SegmentsDigest(h digest.Hasher) digest.Hash {
	s := h.New()
	for _, seg := range m.Segments {
		s.Write(seg.Hash[:])
	}
	return digest.Finish(s)
}

// Validate checks that segments cover the entries contiguously.
func (m *Manifest) Validate() error {
	var next uint64
	for _, seg := range m.Segments {
		if seg.First != next {
			return fmt.Errorf("segment %s starts at block %d, want %d", seg.Name, seg.First, next)
		}
		next += seg.Count
	}
	if next != uint64(len(m.Entries)) {
		return fmt.Errorf("segments cover %d blocks, manifest has %d entries", next, len(m.Entries))
	}
	for i, e := range m.Entries {
		if e.Kind < Paired || e.Kind > SecondaryOnly {
			return fmt.Errorf("entry %d has unknown kind %d", i, e.Kind)
		}
	}
	return nil
}

// encMode uses Core Deterministic Encoding so that the same manifest always
// produces the same bytes, and therefore the same block digest.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("metadata: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("metadata: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalManifest encodes m as deterministic CBOR.
func MarshalManifest(m *Manifest) ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return data, nil
}

// UnmarshalManifest decodes a CBOR manifest.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := decMode.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}
