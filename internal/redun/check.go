package redun

import (
	"redun-go/internal/block"
	"redun-go/internal/metadata"
)

// CopyReport is the verified state of one copy.
type CopyReport struct {
	Role    metadata.Role
	Path    string
	Present bool

	// HashOK is true when the copy's whole-object digest matches the record.
	// For the redundancy copy every segment must verify.
	HashOK bool

	// MetaOK is true when the copy's meta file decodes and agrees with the
	// meta file in use.
	MetaOK bool

	Blocks  block.Counts
	Damaged []uint64
}

// Healthy reports whether the copy needs no repair.
func (c CopyReport) Healthy() bool {
	return c.Present && c.HashOK && c.MetaOK && len(c.Damaged) == 0
}

// Report is the result of Check.
type Report struct {
	File   *metadata.File
	Copies [3]CopyReport

	// DamagedSegments lists redundancy segments that Reconstruct would rewrite.
	DamagedSegments []string

	// Unrecoverable lists block indexes lost from more than one copy.
	Unrecoverable []uint64
}

// Healthy reports whether all three copies verify.
func (r *Report) Healthy() bool {
	for _, c := range r.Copies {
		if !c.Healthy() {
			return false
		}
	}
	return true
}

// Recoverable reports whether Reconstruct can restore every copy.
func (r *Report) Recoverable() bool {
	return len(r.Unrecoverable) == 0
}

// Damaged returns the roles of the copies that are not healthy.
func (r *Report) Damaged() []metadata.Role {
	var roles []metadata.Role
	for _, c := range r.Copies {
		if !c.Healthy() {
			roles = append(roles, c.Role)
		}
	}
	return roles
}

// Check verifies the meta files, data copies, and redundancy segments of a
// data set without modifying anything.
func (s *Session) Check(p Paths) (*Report, error) {
	in, err := s.inspect(p)
	if err != nil {
		return nil, err
	}
	defer in.close()

	r := &Report{File: in.file}
	for _, role := range metadata.Roles {
		v := in.copies[role]
		path, _ := in.file.Record.Path(role)
		r.Copies[role] = CopyReport{
			Role:    role,
			Path:    path,
			Present: v.present,
			HashOK:  v.hashOK,
			MetaOK:  in.metaOK[role],
			Blocks:  v.counts,
			Damaged: v.damaged,
		}
	}
	for n, ok := range in.segmentOK {
		if !ok {
			r.DamagedSegments = append(r.DamagedSegments, in.file.Manifest.Segments[n].Name)
		}
	}
	for i := range in.file.Manifest.Entries {
		if lost := in.lost(i); len(lost) > 1 {
			r.Unrecoverable = append(r.Unrecoverable, uint64(i))
		}
	}

	s.opts.Logger.Info("checked data set", "primary", p.Primary, "healthy", r.Healthy(),
		"recoverable", r.Recoverable())
	return r, nil
}

// lost returns the roles from which entry i cannot be read.
func (in *inspection) lost(i int) []metadata.Role {
	e := in.file.Manifest.Entries[i]
	var lost []metadata.Role
	for _, role := range metadata.Roles {
		if e.Kind.Has(role) && !in.intact(role, i) {
			lost = append(lost, role)
		}
	}
	return lost
}
