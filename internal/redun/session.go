package redun

import (
	"bytes"
	"errors"
	"fmt"

	"redun-go/internal/digest"
	"redun-go/internal/metadata"
)

// Paths locates the three copies of a data set. Redundancy is the segment
// prefix ("<generation>.r") and is empty before the first build.
type Paths struct {
	Primary    string
	Secondary  string
	Redundancy string
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	Hasher    digest.Hasher
	MaxBlocks int

	// Encryptor seals new segments. Nil stores them in the clear.
	Encryptor Encryptor

	// Decrypter opens sealed segments.
	Decrypter DecryptionContext

	Logger Logger
	IDs    IDGenerator
}

// Session computes, verifies, and repairs the redundancy of one data set. It
// borrows its three media and owns at most one in-flight RedunFile. A Session
// is not safe for concurrent use; run one per data set.
type Session struct {
	media   [3]Medium
	temp    TempStorage
	opts    Options
	version metadata.Version

	prefix   string
	current  *RedunFile
	segments []metadata.Segment
	next     uint64
}

// NewSession returns a session over the given media.
func NewSession(media Media, temp TempStorage, opts Options) *Session {
	if opts.Hasher == nil {
		opts.Hasher = digest.SHA1
	}
	if opts.MaxBlocks <= 0 {
		opts.MaxBlocks = DefaultMaxBlocks
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}
	if opts.IDs == nil {
		opts.IDs = UUIDGenerator{}
	}
	return &Session{
		media:   [3]Medium{media.Primary, media.Secondary, media.Redundancy},
		temp:    temp,
		opts:    opts,
		version: metadata.Current(opts.Hasher),
	}
}

// Version returns the format version this session reads and writes.
func (s *Session) Version() metadata.Version {
	return s.version
}

func (s *Session) medium(role metadata.Role) Medium {
	return s.media[role]
}

// SegmentName returns the object name of segment n under prefix.
func SegmentName(prefix string, n int) string {
	return fmt.Sprintf("%s/%010d", prefix, n)
}

// Begin starts a new redundancy generation written under prefix. Any
// previous generation of this session must have been flushed or aborted.
func (s *Session) Begin(prefix string) error {
	if s.current != nil {
		return fmt.Errorf("session already has an open redundancy file")
	}
	s.prefix = prefix
	s.segments = nil
	s.next = 0
	return nil
}

// Accumulate adds one parity block to the current generation, flushing and
// rotating to a new RedunFile when the current one is full.
func (s *Session) Accumulate(payload []byte) (metadata.Extent, error) {
	if s.prefix == "" {
		return metadata.Extent{}, fmt.Errorf("session has no open generation")
	}
	if s.current == nil {
		if err := s.rotate(); err != nil {
			return metadata.Extent{}, err
		}
	}

	ext, err := s.current.Accumulate(payload)
	if errors.Is(err, ErrCapacityExhausted) {
		if err := s.Flush(); err != nil {
			return metadata.Extent{}, err
		}
		if err := s.rotate(); err != nil {
			return metadata.Extent{}, err
		}
		ext, err = s.current.Accumulate(payload)
	}
	if err != nil {
		return metadata.Extent{}, err
	}
	s.next++
	return ext, nil
}

func (s *Session) rotate() error {
	name := SegmentName(s.prefix, len(s.segments))
	f, err := OpenRedunFile(s.temp, name, s.opts.MaxBlocks, s.next, s.opts.Hasher, s.version)
	if err != nil {
		return fmt.Errorf("opening redundancy file %s: %w", name, err)
	}
	s.current = f
	return nil
}

// Flush promotes the current RedunFile to the redundancy medium. Flushing
// with no open file is a no-op.
func (s *Session) Flush() error {
	if s.current == nil {
		return nil
	}
	f := s.current
	s.current = nil

	seg, err := f.Flush(s.medium(metadata.Redundancy), f.Key(), s.opts.Encryptor)
	if err != nil {
		return err
	}
	s.segments = append(s.segments, seg)
	s.opts.Logger.Debug("flushed redundancy segment", "segment", seg.Name, "blocks", seg.Count)
	return nil
}

// Segments returns the segments flushed in the current generation.
func (s *Session) Segments() []metadata.Segment {
	return s.segments
}

// Abort discards the in-flight RedunFile and removes every segment flushed in
// the current generation. Metadata written before Begin is untouched.
func (s *Session) Abort() {
	if s.current != nil {
		s.current.Abort()
		s.current = nil
	}
	for _, seg := range s.segments {
		if err := s.medium(metadata.Redundancy).Remove(seg.Name); err != nil {
			s.opts.Logger.Warn("removing aborted segment", "segment", seg.Name, "error", err)
		}
	}
	s.segments = nil
	s.prefix = ""
	s.next = 0
}

// readObject returns the full contents of name on m, or nil with ok=false
// when the object does not exist.
func readObject(m Medium, name string) (obj Object, ok bool, err error) {
	obj, err = m.Open(name)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s on %s: %w", name, m.Name(), err)
	}
	return obj, true, nil
}

// putBytes stores data under name on m.
func putBytes(m Medium, name string, data []byte) error {
	if err := m.Put(name, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("storing %s on %s: %w", name, m.Name(), err)
	}
	return nil
}

// metaName returns the meta file name of a role's copy.
func metaName(role metadata.Role, p Paths) string {
	switch role {
	case metadata.Primary:
		return metadata.MetaName(p.Primary)
	case metadata.Secondary:
		return metadata.MetaName(p.Secondary)
	default:
		return metadata.MetaName(p.Redundancy)
	}
}

// LoadMeta reads the meta file copies of a data set and returns the first
// that decodes, trying primary, secondary, then redundancy. ok reports which
// copies decoded and agree with the returned file. A version mismatch on any
// copy is fatal.
func (s *Session) LoadMeta(p Paths) (f *metadata.File, ok [3]bool, err error) {
	var raw [3][]byte
	for _, role := range metadata.Roles {
		if role == metadata.Redundancy && p.Redundancy == "" {
			continue
		}
		m := s.medium(role)
		obj, found, err := readObject(m, metaName(role, p))
		if err != nil {
			return nil, ok, err
		}
		if !found {
			continue
		}
		data := append([]byte(nil), obj.Bytes()...)
		obj.Close()

		decoded, err := metadata.DecodeFile(data, s.version, s.opts.Hasher)
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return nil, ok, fmt.Errorf("%s meta file: %w", role, err)
		}
		if err != nil {
			s.opts.Logger.Warn("unreadable meta file", "role", role.String(), "error", err)
			continue
		}
		if err := checkRecordDigest(decoded, s.opts.Hasher); err != nil {
			s.opts.Logger.Warn("inconsistent meta file", "role", role.String(), "error", err)
			continue
		}
		raw[role] = data
		if f == nil {
			f = decoded
		}
	}
	if f == nil {
		return nil, ok, fmt.Errorf("no readable meta file for %s: %w", p.Primary, ErrNotFound)
	}

	want, err := metadata.EncodeFile(f.Version, f.Record, f.Manifest, s.opts.Hasher)
	if err != nil {
		return nil, ok, err
	}
	for role, data := range raw {
		ok[role] = data != nil && string(data) == string(want)
	}
	return f, ok, nil
}

func checkRecordDigest(f *metadata.File, h digest.Hasher) error {
	if got, want := f.Manifest.SegmentsDigest(h), f.Record.Hash(metadata.Redundancy); got != want {
		return fmt.Errorf("segment digest %s does not match record %s", got, want)
	}
	return nil
}

// writeMeta stores the meta file on role's medium.
func (s *Session) writeMeta(role metadata.Role, p Paths, data []byte) error {
	return putBytes(s.medium(role), metaName(role, p), data)
}
