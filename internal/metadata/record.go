package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"redun-go/internal/digest"
)

const (
	// PathCapacity is the fixed size of each path field.
	PathCapacity = 4096

	// RecordSize is the encoded size of a Record.
	RecordSize = 3*digest.Size + 3*(8+PathCapacity)
)

// Role names one of the three copies of a data set.
type Role int

const (
	Primary Role = iota
	Secondary
	Redundancy
)

// Roles lists every role in record order.
var Roles = [3]Role{Primary, Secondary, Redundancy}

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Redundancy:
		return "redundancy"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ErrMalformedPath is matched by every *PathError.
var ErrMalformedPath = errors.New("malformed path")

// PathError reports a path field that cannot be used as text.
type PathError struct {
	Role   Role
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s path: %s", e.Role, e.Reason)
}

func (e *PathError) Is(target error) bool {
	return target == ErrMalformedPath
}

// Record binds the digests of the three copies of a data set to their
// locations. Paths are kept as raw bytes so that a damaged path field does not
// prevent reading the rest of the record.
type Record struct {
	Hashes [3]digest.Hash
	paths  [3][]byte

	// declared holds a path length field that exceeds PathCapacity. The
	// field's raw bytes are kept in paths so that the record re-encodes
	// unchanged.
	declared [3]uint64
}

// NewRecord returns a record for the given paths.
func NewRecord(primary, secondary, redundancy string) (*Record, error) {
	r := &Record{}
	for role, p := range map[Role]string{Primary: primary, Secondary: secondary, Redundancy: redundancy} {
		if err := r.SetPath(role, p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Hash returns the digest recorded for role.
func (r *Record) Hash(role Role) digest.Hash {
	return r.Hashes[role]
}

// SetHash records the digest for role.
func (r *Record) SetHash(role Role, h digest.Hash) {
	r.Hashes[role] = h
}

// Path returns the path recorded for role. Invalid UTF-8 and a declared
// length over capacity are reported as a *PathError.
func (r *Record) Path(role Role) (string, error) {
	if n := r.declared[role]; n != 0 {
		return "", &PathError{Role: role, Reason: fmt.Sprintf("declared length %d exceeds capacity of %d", n, PathCapacity)}
	}
	p := r.paths[role]
	if !utf8.Valid(p) {
		return "", &PathError{Role: role, Reason: "not valid UTF-8"}
	}
	return string(p), nil
}

// RawPath returns the undecoded bytes of the path for role.
func (r *Record) RawPath(role Role) []byte {
	return r.paths[role]
}

// SetPath records the path for role.
func (r *Record) SetPath(role Role, p string) error {
	if len(p) > PathCapacity {
		return &PathError{Role: role, Reason: fmt.Sprintf("%d bytes exceeds capacity of %d", len(p), PathCapacity)}
	}
	r.paths[role] = []byte(p)
	r.declared[role] = 0
	return nil
}

// Equal reports whether two records hold the same hashes and path bytes.
func (r *Record) Equal(o *Record) bool {
	if r.Hashes != o.Hashes || r.declared != o.declared {
		return false
	}
	for i := range r.paths {
		if string(r.paths[i]) != string(o.paths[i]) {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the record into its fixed RecordSize layout.
func (r *Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	off := 0
	for _, h := range r.Hashes {
		copy(buf[off:], h[:])
		off += digest.Size
	}
	for role, p := range r.paths {
		if len(p) > PathCapacity {
			return nil, &PathError{Role: Role(role), Reason: "exceeds capacity"}
		}
		n := uint64(len(p))
		if r.declared[role] != 0 {
			n = r.declared[role]
		}
		binary.LittleEndian.PutUint64(buf[off:], n)
		off += 8
		copy(buf[off:off+PathCapacity], p)
		off += PathCapacity
	}
	return buf, nil
}

// UnmarshalBinary decodes a record from exactly RecordSize bytes. Path bytes
// past each declared length are ignored. A declared length over capacity
// only makes that path malformed.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("metadata record must be %d bytes, got %d", RecordSize, len(data))
	}

	off := 0
	for i := range r.Hashes {
		copy(r.Hashes[i][:], data[off:off+digest.Size])
		off += digest.Size
	}
	for i := range r.paths {
		n := binary.LittleEndian.Uint64(data[off:])
		off += 8
		r.declared[i] = 0
		if n > PathCapacity {
			r.declared[i] = n
			n = PathCapacity
		}
		r.paths[i] = append([]byte(nil), data[off:off+int(n)]...)
		off += PathCapacity
	}
	return nil
}
