package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"

	"redun-go/internal/digest"
)

// VersionSize is the encoded size of a Version.
const VersionSize = 8

// Format revision written by this build. Patch changes stay readable by
// older builds of the same minor.
const (
	FormatMajor = 1
	FormatMinor = 0
	FormatPatch = 0
)

// ErrVersionMismatch is matched by every *VersionMismatchError.
var ErrVersionMismatch = errors.New("version mismatch")

// Version identifies the on-disk format of a metadata record and the blocks
// it describes.
type Version struct {
	App   [2]byte
	Major uint16
	Minor uint16
	Patch uint16
}

// Current returns the version written by this build for data hashed with h.
func Current(h digest.Hasher) Version {
	return Version{App: h.Tag(), Major: FormatMajor, Minor: FormatMinor, Patch: FormatPatch}
}

func (v Version) String() string {
	return fmt.Sprintf("%s/%d.%d.%d", v.App[:], v.Major, v.Minor, v.Patch)
}

// Compatible reports whether data written as v can be read by a build
// expecting other. Only the patch number may differ.
func (v Version) Compatible(other Version) bool {
	return v.App == other.App && v.Major == other.Major && v.Minor == other.Minor
}

// Encode writes v into the first VersionSize bytes of dst.
func (v Version) Encode(dst []byte) {
	_ = dst[VersionSize-1]
	dst[0], dst[1] = v.App[0], v.App[1]
	binary.LittleEndian.PutUint16(dst[2:4], v.Major)
	binary.LittleEndian.PutUint16(dst[4:6], v.Minor)
	binary.LittleEndian.PutUint16(dst[6:8], v.Patch)
}

// DecodeVersion reads a Version from the front of src.
func DecodeVersion(src []byte) (Version, error) {
	if len(src) < VersionSize {
		return Version{}, fmt.Errorf("version needs %d bytes, got %d", VersionSize, len(src))
	}
	return Version{
		App:   [2]byte{src[0], src[1]},
		Major: binary.LittleEndian.Uint16(src[2:4]),
		Minor: binary.LittleEndian.Uint16(src[4:6]),
		Patch: binary.LittleEndian.Uint16(src[6:8]),
	}, nil
}

// VersionMismatchError reports stored data from an incompatible build.
type VersionMismatchError struct {
	Expected Version
	Found    Version
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: expected %s, found %s", e.Expected, e.Found)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// CheckCompatible returns a *VersionMismatchError unless stored can be read
// by a build expecting expected.
func CheckCompatible(stored, expected Version) error {
	if !stored.Compatible(expected) {
		return &VersionMismatchError{Expected: expected, Found: stored}
	}
	return nil
}
