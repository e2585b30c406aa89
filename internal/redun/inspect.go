package redun

import (
	"bytes"
	"fmt"

	"redun-go/internal/block"
	"redun-go/internal/digest"
	"redun-go/internal/metadata"
)

// copyView holds the verified payloads of one copy, indexed by manifest entry.
// A nil payload means the block is missing or damaged, or that the entry has
// no block in this copy.
type copyView struct {
	present  bool
	hashOK   bool
	counts   block.Counts
	payloads [][]byte
	damaged  []uint64
}

// inspection is the verified state of a data set's three copies.
type inspection struct {
	paths     Paths
	file      *metadata.File
	metaOK    [3]bool
	copies    [3]*copyView
	segmentOK []bool
	objects   []Object
}

func (in *inspection) close() {
	for _, obj := range in.objects {
		obj.Close()
	}
	in.objects = nil
}

// intact reports whether entry i is readable from role's copy.
func (in *inspection) intact(role metadata.Role, i int) bool {
	return in.copies[role].payloads[i] != nil
}

// inspect loads the meta file and verifies every block of every copy against
// the manifest. It never writes.
func (s *Session) inspect(p Paths) (*inspection, error) {
	f, ok, err := s.LoadMeta(p)
	if err != nil {
		return nil, err
	}
	prefix, err := f.Record.Path(metadata.Redundancy)
	if err != nil {
		return nil, err
	}
	if prefix != p.Redundancy {
		p.Redundancy = prefix
		if f, ok, err = s.LoadMeta(p); err != nil {
			return nil, err
		}
	}

	in := &inspection{paths: p, file: f, metaOK: ok}
	for _, role := range []metadata.Role{metadata.Primary, metadata.Secondary} {
		name := p.Primary
		if role == metadata.Secondary {
			name = p.Secondary
		}
		view, err := s.inspectCopy(in, role, name)
		if err != nil {
			in.close()
			return nil, err
		}
		in.copies[role] = view
	}
	view, err := s.inspectRedundancy(in)
	if err != nil {
		in.close()
		return nil, err
	}
	in.copies[metadata.Redundancy] = view
	return in, nil
}

func (s *Session) inspectCopy(in *inspection, role metadata.Role, name string) (*copyView, error) {
	entries := in.file.Manifest.Entries
	view := &copyView{payloads: make([][]byte, len(entries))}

	obj, found, err := readObject(s.medium(role), name)
	if err != nil {
		return nil, err
	}
	var data []byte
	if found {
		in.objects = append(in.objects, obj)
		data = obj.Bytes()
		view.present = true
		view.hashOK = digest.Sum(s.opts.Hasher, data) == in.file.Record.Hash(role)
	}

	var off uint64
	for i, e := range entries {
		if !e.Kind.Has(role) {
			continue
		}
		ext := e.Blocks[role]
		payload, state := verifyAt(data, off, ext, s.opts.Hasher)
		view.counts.Add(state)
		if state == block.Intact {
			view.payloads[i] = payload
		} else {
			view.damaged = append(view.damaged, uint64(i))
		}
		off += block.HeaderSize + ext.Length
	}
	return view, nil
}

func (s *Session) inspectRedundancy(in *inspection) (*copyView, error) {
	m := in.file.Manifest
	view := &copyView{payloads: make([][]byte, len(m.Entries)), present: true, hashOK: true}
	in.segmentOK = make([]bool, len(m.Segments))

	for n, seg := range m.Segments {
		data, err := s.readSegment(in, seg)
		if err != nil {
			return nil, err
		}
		if data == nil {
			view.present = false
		}

		running := s.opts.Hasher.New()
		off := uint64(metadata.VersionSize)
		ok := data != nil
		for i := seg.First; i < seg.First+seg.Count; i++ {
			ext := m.Entries[i].Blocks[metadata.Redundancy]
			payload, state := verifyAt(data, off, ext, s.opts.Hasher)
			view.counts.Add(state)
			if state == block.Intact {
				view.payloads[i] = payload
				running.Write(payload)
			} else {
				view.damaged = append(view.damaged, i)
				ok = false
			}
			off += block.HeaderSize + ext.Length
		}
		if ok && (off != uint64(len(data)) || digest.Finish(running) != seg.Hash) {
			ok = false
		}
		in.segmentOK[n] = ok
		view.hashOK = view.hashOK && ok
	}
	return view, nil
}

// readSegment returns the plaintext of a segment, or nil if it is missing,
// undecryptable, or written by an incompatible version.
func (s *Session) readSegment(in *inspection, seg metadata.Segment) ([]byte, error) {
	obj, found, err := readObject(s.medium(metadata.Redundancy), seg.Name)
	if err != nil || !found {
		return nil, err
	}
	in.objects = append(in.objects, obj)
	data := obj.Bytes()

	if in.file.Manifest.Encrypted {
		if s.opts.Decrypter == nil {
			return nil, fmt.Errorf("reading segment %s: %w", seg.Name, ErrLocked)
		}
		var plain bytes.Buffer
		if err := s.opts.Decrypter.Decrypt(bytes.NewReader(data), &plain); err != nil {
			s.opts.Logger.Warn("undecryptable segment", "segment", seg.Name, "error", err)
			return nil, nil
		}
		data = plain.Bytes()
	}

	v, err := metadata.DecodeVersion(data)
	if err != nil || v != in.file.Version {
		s.opts.Logger.Warn("segment version differs from meta file", "segment", seg.Name, "found", v.String())
		return nil, nil
	}
	return data, nil
}

// verifyAt checks the block the manifest places at off. The region is sized
// from the manifest, not from the stored header, so one damaged header does
// not shift the blocks after it.
func verifyAt(data []byte, off uint64, ext metadata.Extent, h digest.Hasher) ([]byte, block.State) {
	size := uint64(len(data))
	if off > size || ext.Length > size || size-off < block.HeaderSize+ext.Length {
		return nil, block.Incomplete
	}
	region := data[off : off+block.HeaderSize+ext.Length]
	b, err := block.Parse(&region, h)
	if err != nil || b.Header() != (block.Header{Hash: ext.Hash, Length: ext.Length}) || !b.VerifyHash() {
		return nil, block.Invalid
	}
	return b.Payload(), block.Intact
}
