package redun

import (
	"bytes"
	"fmt"
	"io"

	"redun-go/internal/block"
	"redun-go/internal/digest"
	"redun-go/internal/metadata"
	"redun-go/internal/parity"
)

// RepairResult summarizes what Reconstruct rewrote.
type RepairResult struct {
	// Rebuilt lists the data copies that were rewritten.
	Rebuilt []metadata.Role
	// Segments lists the redundancy segments that were rewritten.
	Segments []string
	// Metas lists the roles whose meta file was rewritten.
	Metas []metadata.Role
	// Blocks is the number of blocks recovered from the other two copies.
	Blocks int
}

// Changed reports whether anything was written.
func (r *RepairResult) Changed() bool {
	return len(r.Rebuilt) > 0 || len(r.Segments) > 0 || len(r.Metas) > 0
}

// recoverBlock fills in the payload of entry i on every copy that lost it.
// At most one copy may be lost.
func (s *Session) recoverBlock(in *inspection, i int) (int, error) {
	lost := in.lost(i)
	if len(lost) == 0 {
		return 0, nil
	}
	if len(lost) > 1 {
		return 0, &UnrecoverableError{Index: uint64(i), Lost: lost}
	}

	e := in.file.Manifest.Entries[i]
	role := lost[0]
	p := in.copies[metadata.Primary].payloads[i]
	q := in.copies[metadata.Secondary].payloads[i]
	r := in.copies[metadata.Redundancy].payloads[i]
	n := int(e.Blocks[role].Length)

	var got []byte
	switch {
	case role == metadata.Redundancy:
		got = computeParity(nil, p, q)
	case e.Kind != metadata.Paired:
		// Replicated block: the parity payload is a copy.
		got = append([]byte(nil), r[:min(n, len(r))]...)
	case role == metadata.Primary:
		got = parity.Recover(q, r, n)
	default:
		got = parity.Recover(p, r, n)
	}

	if len(got) != n || digest.Sum(s.opts.Hasher, got) != e.Blocks[role].Hash {
		return 0, fmt.Errorf("recovered %s block %d does not match manifest: %w", role, i,
			&UnrecoverableError{Index: uint64(i), Lost: lost})
	}
	in.copies[role].payloads[i] = got
	return 1, nil
}

// recoverAll recovers every lost block. Nothing is written if any block is
// unrecoverable.
func (s *Session) recoverAll(in *inspection) (int, error) {
	total := 0
	for i := range in.file.Manifest.Entries {
		n, err := s.recoverBlock(in, i)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Reconstruct restores every damaged or missing copy of a data set from the
// other two: data copies are rewritten whole, redundancy segments are
// rewritten individually, and meta files are rewritten where they are
// missing or disagree.
func (s *Session) Reconstruct(p Paths) (*RepairResult, error) {
	in, err := s.inspect(p)
	if err != nil {
		return nil, err
	}
	defer in.close()

	res := &RepairResult{}
	if res.Blocks, err = s.recoverAll(in); err != nil {
		return nil, err
	}

	f := in.file
	for _, role := range []metadata.Role{metadata.Primary, metadata.Secondary} {
		if in.copies[role].hashOK {
			continue
		}
		if err := s.rebuildCopy(in, role); err != nil {
			return res, err
		}
		res.Rebuilt = append(res.Rebuilt, role)
	}

	for n, ok := range in.segmentOK {
		if ok {
			continue
		}
		seg := f.Manifest.Segments[n]
		if err := s.rebuildSegment(in, seg); err != nil {
			return res, err
		}
		res.Segments = append(res.Segments, seg.Name)
	}

	data, err := metadata.EncodeFile(f.Version, f.Record, f.Manifest, s.opts.Hasher)
	if err != nil {
		return res, err
	}
	for _, role := range metadata.Roles {
		if in.metaOK[role] {
			continue
		}
		if err := s.writeMeta(role, in.paths, data); err != nil {
			return res, fmt.Errorf("rewriting %s meta: %w", role, err)
		}
		res.Metas = append(res.Metas, role)
	}

	if res.Changed() {
		s.opts.Logger.Info("reconstructed data set", "primary", p.Primary, "blocks", res.Blocks,
			"copies", len(res.Rebuilt), "segments", len(res.Segments), "metas", len(res.Metas))
	}
	return res, nil
}

// rebuildCopy rewrites a data copy from its recovered payloads.
func (s *Session) rebuildCopy(in *inspection, role metadata.Role) error {
	var buf []byte
	for i, e := range in.file.Manifest.Entries {
		if e.Kind.Has(role) {
			buf = block.Append(buf, in.copies[role].payloads[i], s.opts.Hasher)
		}
	}
	if got, want := digest.Sum(s.opts.Hasher, buf), in.file.Record.Hash(role); got != want {
		return fmt.Errorf("rebuilt %s copy hashes to %s, record has %s", role, got, want)
	}

	path, err := in.file.Record.Path(role)
	if err != nil {
		return err
	}
	return putBytes(s.medium(role), path, buf)
}

// rebuildSegment rewrites one redundancy segment under its original name.
func (s *Session) rebuildSegment(in *inspection, seg metadata.Segment) error {
	var enc Encryptor
	if in.file.Manifest.Encrypted {
		if s.opts.Encryptor == nil {
			return fmt.Errorf("rewriting segment %s: %w", seg.Name, ErrLocked)
		}
		enc = s.opts.Encryptor
	}

	rf, err := OpenRedunFile(s.temp, seg.Name, int(seg.Count), seg.First, s.opts.Hasher, in.file.Version)
	if err != nil {
		return err
	}
	payloads := in.copies[metadata.Redundancy].payloads
	for i := seg.First; i < seg.First+seg.Count; i++ {
		if _, err := rf.Accumulate(payloads[i]); err != nil {
			rf.Abort()
			return fmt.Errorf("rewriting segment %s: %w", seg.Name, err)
		}
	}
	got, err := rf.Flush(s.medium(metadata.Redundancy), seg.Name, enc)
	if err != nil {
		return err
	}
	if got.Hash != seg.Hash {
		return fmt.Errorf("rewritten segment %s hashes to %s, manifest has %s", seg.Name, got.Hash, seg.Hash)
	}
	return nil
}

// ReadRole writes the payloads of role's copy to w in block order. Damaged
// blocks are recovered from the other two copies; nothing is written back to
// the media.
func (s *Session) ReadRole(p Paths, role metadata.Role, w io.Writer) (int64, error) {
	in, err := s.inspect(p)
	if err != nil {
		return 0, err
	}
	defer in.close()

	var written int64
	for i, e := range in.file.Manifest.Entries {
		if !e.Kind.Has(role) {
			continue
		}
		if _, err := s.recoverBlock(in, i); err != nil {
			return written, err
		}
		n, err := io.Copy(w, bytes.NewReader(in.copies[role].payloads[i]))
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
