package redun

import (
	"errors"
	"fmt"

	"redun-go/internal/block"
	"redun-go/internal/digest"
	"redun-go/internal/metadata"
	"redun-go/internal/parity"
)

// sourceCopy is a fully verified block stream of the primary or secondary copy.
type sourceCopy struct {
	obj      Object
	digest   digest.Hash
	payloads [][]byte
}

// loadSource opens a copy and requires every block in it to be intact.
func (s *Session) loadSource(role metadata.Role, name string) (*sourceCopy, error) {
	obj, found, err := readObject(s.medium(role), name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s copy %s: %w", role, name, ErrNotFound)
	}

	src := &sourceCopy{obj: obj, digest: digest.Sum(s.opts.Hasher, obj.Bytes())}
	for r := range block.Scan(obj.Bytes(), s.opts.Hasher) {
		if r.State != block.Intact {
			obj.Close()
			return nil, &NotIntactError{Role: role, Offset: r.Offset, State: r.State}
		}
		src.payloads = append(src.payloads, r.Block.Payload())
	}
	return src, nil
}

// Build computes a new redundancy generation for the primary and secondary
// copies at p and commits it by writing the meta file to all three media.
// The previous generation, if any, stays valid until the commit and is
// removed afterwards. On failure the new generation is discarded.
func (s *Session) Build(p Paths, blockSize uint64) (*metadata.File, error) {
	previous, _, err := s.LoadMeta(p)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("reading previous metadata: %w", err)
	}

	primary, err := s.loadSource(metadata.Primary, p.Primary)
	if err != nil {
		return nil, err
	}
	defer primary.obj.Close()
	secondary, err := s.loadSource(metadata.Secondary, p.Secondary)
	if err != nil {
		return nil, err
	}
	defer secondary.obj.Close()

	generation := s.opts.IDs.New()
	prefix := generation + ".r"
	if err := s.Begin(prefix); err != nil {
		return nil, err
	}

	manifest := &metadata.Manifest{
		Generation: generation,
		Hasher:     s.opts.Hasher.Name(),
		BlockSize:  blockSize,
		Encrypted:  s.opts.Encryptor != nil,
	}

	n := max(len(primary.payloads), len(secondary.payloads))
	var scratch []byte
	for i := 0; i < n; i++ {
		var a, b []byte
		entry := metadata.Entry{Kind: metadata.Paired}
		switch {
		case i >= len(secondary.payloads):
			entry.Kind = metadata.PrimaryOnly
			a = primary.payloads[i]
		case i >= len(primary.payloads):
			entry.Kind = metadata.SecondaryOnly
			b = secondary.payloads[i]
		default:
			a, b = primary.payloads[i], secondary.payloads[i]
		}
		if entry.Kind.Has(metadata.Primary) {
			entry.Blocks[metadata.Primary] = extentOf(s.opts.Hasher, a)
		}
		if entry.Kind.Has(metadata.Secondary) {
			entry.Blocks[metadata.Secondary] = extentOf(s.opts.Hasher, b)
		}

		scratch = computeParity(scratch, a, b)
		ext, err := s.Accumulate(scratch)
		if err != nil {
			s.Abort()
			return nil, fmt.Errorf("accumulating parity block %d: %w", i, err)
		}
		entry.Blocks[metadata.Redundancy] = ext
		manifest.Entries = append(manifest.Entries, entry)
	}
	if err := s.Flush(); err != nil {
		s.Abort()
		return nil, fmt.Errorf("flushing redundancy: %w", err)
	}
	manifest.Segments = append([]metadata.Segment(nil), s.Segments()...)

	rec, err := metadata.NewRecord(p.Primary, p.Secondary, prefix)
	if err != nil {
		s.Abort()
		return nil, err
	}
	rec.SetHash(metadata.Primary, primary.digest)
	rec.SetHash(metadata.Secondary, secondary.digest)
	rec.SetHash(metadata.Redundancy, manifest.SegmentsDigest(s.opts.Hasher))

	f := &metadata.File{Version: s.version, Record: rec, Manifest: manifest}
	newPaths := Paths{Primary: p.Primary, Secondary: p.Secondary, Redundancy: prefix}
	if err := s.commit(f, newPaths, p); err != nil {
		s.Abort()
		return nil, err
	}
	s.opts.Logger.Info("built redundancy", "primary", p.Primary, "secondary", p.Secondary,
		"generation", generation, "blocks", n, "segments", len(manifest.Segments))

	if previous != nil {
		s.collect(previous, prefix)
	}
	s.prefix = ""
	s.segments = nil
	return f, nil
}

// commit writes the meta file to the redundancy, secondary, and primary media
// in that order. If a later write fails, earlier meta files of the previous
// generation are restored where possible.
func (s *Session) commit(f *metadata.File, newPaths, oldPaths Paths) error {
	data, err := metadata.EncodeFile(f.Version, f.Record, f.Manifest, s.opts.Hasher)
	if err != nil {
		return err
	}

	if err := s.writeMeta(metadata.Redundancy, newPaths, data); err != nil {
		return fmt.Errorf("committing redundancy meta: %w", err)
	}

	var saved []byte
	if obj, found, err := readObject(s.medium(metadata.Secondary), metaName(metadata.Secondary, oldPaths)); err == nil && found {
		saved = append([]byte(nil), obj.Bytes()...)
		obj.Close()
	}

	if err := s.writeMeta(metadata.Secondary, newPaths, data); err != nil {
		s.medium(metadata.Redundancy).Remove(metaName(metadata.Redundancy, newPaths))
		return fmt.Errorf("committing secondary meta: %w", err)
	}
	if err := s.writeMeta(metadata.Primary, newPaths, data); err != nil {
		s.medium(metadata.Redundancy).Remove(metaName(metadata.Redundancy, newPaths))
		if saved != nil {
			if rerr := s.writeMeta(metadata.Secondary, oldPaths, saved); rerr != nil {
				s.opts.Logger.Error("restoring secondary meta", "error", rerr)
			}
		}
		return fmt.Errorf("committing primary meta: %w", err)
	}
	return nil
}

// collect removes a superseded generation from the redundancy medium.
func (s *Session) collect(previous *metadata.File, keep string) {
	old, err := previous.Record.Path(metadata.Redundancy)
	if err != nil || old == "" || old == keep {
		return
	}
	m := s.medium(metadata.Redundancy)
	names, err := m.List(old + "/")
	if err != nil {
		s.opts.Logger.Warn("listing previous generation", "prefix", old, "error", err)
		return
	}
	for _, name := range append(names, metadata.MetaName(old)) {
		if err := m.Remove(name); err != nil {
			s.opts.Logger.Warn("removing previous generation", "object", name, "error", err)
		}
	}
	s.opts.Logger.Debug("removed previous generation", "prefix", old, "objects", len(names)+1)
}

func extentOf(h digest.Hasher, payload []byte) metadata.Extent {
	return metadata.Extent{Length: uint64(len(payload)), Hash: digest.Sum(h, payload)}
}

// computeParity returns the parity of a and b in buf, growing it as needed.
// A missing partner replicates the other block.
func computeParity(buf, a, b []byte) []byte {
	n := parity.Size(len(a), len(b))
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if len(a) == len(b) {
		parity.Compute(a, b, buf)
	} else {
		parity.ComputeUnequal(a, b, buf)
	}
	return buf
}
