package metadata

import (
	"errors"
	"fmt"

	"redun-go/internal/block"
	"redun-go/internal/digest"
)

// MetaSuffix is appended to a copy's path to name its meta file.
const MetaSuffix = ".meta"

// ErrCorrupt is returned when a meta file's blocks fail verification.
var ErrCorrupt = errors.New("corrupt meta file")

// File is the decoded content of a meta file:
//
//	Version | Block(Record) | Block(Manifest)
type File struct {
	Version  Version
	Record   *Record
	Manifest *Manifest
}

// MetaName returns the meta file name for a copy stored at path.
func MetaName(path string) string {
	return path + MetaSuffix
}

// EncodeFile serializes a meta file.
func EncodeFile(v Version, rec *Record, m *Manifest, h digest.Hasher) ([]byte, error) {
	recData, err := rec.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	manData, err := MarshalManifest(m)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, VersionSize, VersionSize+2*block.HeaderSize+len(recData)+len(manData))
	v.Encode(buf)
	buf = block.Append(buf, recData, h)
	buf = block.Append(buf, manData, h)
	return buf, nil
}

// DecodeFile parses a meta file written by a build compatible with expected.
// Version mismatches are returned as *VersionMismatchError; damaged blocks as
// ErrCorrupt.
func DecodeFile(data []byte, expected Version, h digest.Hasher) (*File, error) {
	v, err := DecodeVersion(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := CheckCompatible(v, expected); err != nil {
		return nil, err
	}

	s := block.NewScanner(data[VersionSize:], h)
	recBlock, err := nextIntact(s, "record")
	if err != nil {
		return nil, err
	}
	manBlock, err := nextIntact(s, "manifest")
	if err != nil {
		return nil, err
	}

	rec := &Record{}
	if err := rec.UnmarshalBinary(recBlock.Payload()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	m, err := UnmarshalManifest(manBlock.Payload())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return &File{Version: v, Record: rec, Manifest: m}, nil
}

func nextIntact(s *block.Scanner, what string) (*block.Block, error) {
	r, ok := s.Next()
	if !ok {
		return nil, fmt.Errorf("%w: missing %s block", ErrCorrupt, what)
	}
	if r.State != block.Intact {
		return nil, fmt.Errorf("%w: %s block is %s", ErrCorrupt, what, r.State)
	}
	return r.Block, nil
}
