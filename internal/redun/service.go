package redun

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"redun-go/internal/digest"
	"redun-go/internal/metadata"
)

// Input is one file handed to Put.
type Input struct {
	Name string
	R    io.Reader
	Size int64
}

// ServiceOptions holds the redundancy settings shared by all data sets.
type ServiceOptions struct {
	Hasher    digest.Hasher
	MaxBlocks int
	BlockSize int
}

// Service is the orchestration layer that coordinates the catalog, the three
// media, and redundancy sessions to perform the operations the CLI needs.
type Service struct {
	catalog   Catalog
	media     Media
	temp      TempStorage
	encryptor Encryptor
	decrypter DecryptionContext
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	opts      ServiceOptions
}

// NewService creates a Service. encryptor may be nil to store redundancy
// segments unencrypted.
func NewService(catalog Catalog, media Media, temp TempStorage, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, opts ServiceOptions) *Service {
	if opts.Hasher == nil {
		opts.Hasher = digest.SHA1
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	return &Service{
		catalog:   catalog,
		media:     media,
		temp:      temp,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts,
	}
}

func (s *Service) session() *Session {
	return NewSession(s.media, s.temp, Options{
		Hasher:    s.opts.Hasher,
		MaxBlocks: s.opts.MaxBlocks,
		Encryptor: s.encryptor,
		Decrypter: s.decrypter,
		Logger:    s.logger,
		IDs:       s.idgen,
	})
}

// Encrypted reports whether new redundancy segments are sealed.
func (s *Service) Encrypted() bool {
	return s.encryptor != nil
}

// Locked reports whether reading redundancy segments needs Unlock first.
func (s *Service) Locked() bool {
	return s.encryptor != nil && s.decrypter == nil
}

// Unlock opens the private key so that sealed segments can be read.
func (s *Service) Unlock(passphrase string) error {
	if s.encryptor == nil {
		return fmt.Errorf("encryption is not configured")
	}
	dec, err := s.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking: %w", err)
	}
	s.decrypter = dec
	return nil
}

// PutPair stores two independent inputs as the primary and secondary copies
// of a new data set and builds its redundancy.
func (s *Service) PutPair(name string, a, b Input) (*DataSet, error) {
	ds := &DataSet{
		Name:          name,
		Mode:          ModePair,
		PrimaryPath:   objectName(name, a.Name, ""),
		SecondaryPath: objectName(name, b.Name, ""),
	}
	if err := s.put(ds, a.R, b.R, s.opts.BlockSize); err != nil {
		return nil, err
	}
	return ds, nil
}

// PutSplit stores the two halves of one input as the primary and secondary
// copies of a new data set and builds its redundancy. The primary holds the
// larger half when the size is odd.
func (s *Service) PutSplit(name string, in Input) (*DataSet, error) {
	first := (in.Size + 1) / 2
	ds := &DataSet{
		Name:          name,
		Mode:          ModeSplit,
		PrimaryPath:   objectName(name, in.Name, ".part1"),
		SecondaryPath: objectName(name, in.Name, ".part2"),
	}
	if err := s.put(ds, io.LimitReader(in.R, first), in.R, s.opts.BlockSize); err != nil {
		return nil, err
	}
	return ds, nil
}

// PutTree stores a directory that the caller has already archived in two
// parts as the primary and secondary copies of a new data set. blockSize
// overrides the configured block size when positive.
func (s *Service) PutTree(name, dir string, first, second io.Reader, blockSize int) (*DataSet, error) {
	if blockSize <= 0 {
		blockSize = s.opts.BlockSize
	}
	ds := &DataSet{
		Name:          name,
		Mode:          ModeTree,
		PrimaryPath:   objectName(name, dir, ".part1.tar"),
		SecondaryPath: objectName(name, dir, ".part2.tar"),
	}
	if err := s.put(ds, first, second, blockSize); err != nil {
		return nil, err
	}
	return ds, nil
}

func objectName(set, file, suffix string) string {
	return set + "/" + path.Base(strings.ReplaceAll(file, "\\", "/")) + suffix
}

// validateName rejects names that cannot be used as an object prefix. Names
// starting with a dot are reserved for redun's own objects.
func validateName(name string) error {
	switch {
	case name == "":
		return errors.New("data set name is empty")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("data set name %q starts with a dot", name)
	case strings.ContainsAny(name, "/\\"):
		return fmt.Errorf("data set name %q contains a path separator", name)
	}
	return nil
}

func (s *Service) put(ds *DataSet, a, b io.Reader, blockSize int) error {
	if err := validateName(ds.Name); err != nil {
		return err
	}
	if existing, err := s.catalog.FindDataSet(ds.Name); err != nil {
		return fmt.Errorf("checking for existing data set: %w", err)
	} else if existing != nil {
		return fmt.Errorf("data set already exists: %s", ds.Name)
	}

	sizeA, _, err := WriteStream(s.temp, s.media.Primary, ds.PrimaryPath, a, blockSize, s.opts.Hasher)
	if err != nil {
		return fmt.Errorf("writing primary copy: %w", err)
	}
	sizeB, _, err := WriteStream(s.temp, s.media.Secondary, ds.SecondaryPath, b, blockSize, s.opts.Hasher)
	if err != nil {
		s.media.Primary.Remove(ds.PrimaryPath)
		return fmt.Errorf("writing secondary copy: %w", err)
	}

	f, err := s.session().Build(ds.Paths(), uint64(blockSize))
	if err != nil {
		s.media.Primary.Remove(ds.PrimaryPath)
		s.media.Secondary.Remove(ds.SecondaryPath)
		return fmt.Errorf("building redundancy: %w", err)
	}

	now := s.clock.Now()
	ds.ID = s.idgen.New()
	ds.Size = sizeA + sizeB
	ds.RedundancyPath, _ = f.Record.Path(metadata.Redundancy)
	ds.Blocks = int64(len(f.Manifest.Entries))
	ds.CreatedAt = now
	ds.UpdatedAt = now
	if err := s.catalog.CreateDataSet(ds); err != nil {
		s.discard(ds)
		return fmt.Errorf("recording data set: %w", err)
	}

	s.logger.Info("data set stored", "name", ds.Name, "mode", ds.Mode, "size", ds.Size, "blocks", ds.Blocks)
	return nil
}

// discard removes everything put wrote for a data set that could not be
// recorded: both data copies, the three meta files and the generation.
func (s *Service) discard(ds *DataSet) {
	remove := func(m Medium, name string) {
		if err := m.Remove(name); err != nil {
			s.logger.Warn("discarding unrecorded data set", "object", name, "medium", m.Name(), "error", err)
		}
	}

	remove(s.media.Primary, ds.PrimaryPath)
	remove(s.media.Primary, metadata.MetaName(ds.PrimaryPath))
	remove(s.media.Secondary, ds.SecondaryPath)
	remove(s.media.Secondary, metadata.MetaName(ds.SecondaryPath))
	if ds.RedundancyPath == "" {
		return
	}
	names, err := s.media.Redundancy.List(ds.RedundancyPath + "/")
	if err != nil {
		s.logger.Warn("listing generation to discard", "prefix", ds.RedundancyPath, "error", err)
	}
	for _, name := range append(names, metadata.MetaName(ds.RedundancyPath)) {
		remove(s.media.Redundancy, name)
	}
}

func (s *Service) find(name string) (*DataSet, error) {
	ds, err := s.catalog.FindDataSet(name)
	if err != nil {
		return nil, fmt.Errorf("finding data set: %w", err)
	}
	if ds == nil {
		return nil, fmt.Errorf("data set %s: %w", name, ErrNotFound)
	}
	return ds, nil
}

// Protect builds a new redundancy generation for a data set and removes the
// previous one. The block size of the previous generation is kept.
func (s *Service) Protect(name string) (*DataSet, error) {
	ds, err := s.find(name)
	if err != nil {
		return nil, err
	}

	sess := s.session()
	blockSize := uint64(s.opts.BlockSize)
	if prev, _, err := sess.LoadMeta(ds.Paths()); err == nil && prev.Manifest != nil && prev.Manifest.BlockSize > 0 {
		blockSize = prev.Manifest.BlockSize
	}
	f, err := sess.Build(ds.Paths(), blockSize)
	if err != nil {
		return nil, fmt.Errorf("building redundancy: %w", err)
	}
	ds.RedundancyPath, _ = f.Record.Path(metadata.Redundancy)
	ds.Blocks = int64(len(f.Manifest.Entries))
	ds.UpdatedAt = s.clock.Now()
	if err := s.catalog.UpdateDataSet(ds); err != nil {
		return nil, fmt.Errorf("updating data set: %w", err)
	}
	return ds, nil
}

// Check verifies a data set and records the outcome in the catalog.
func (s *Service) Check(name string) (*Report, error) {
	ds, err := s.find(name)
	if err != nil {
		return nil, err
	}

	report, err := s.session().Check(ds.Paths())
	if err != nil {
		return nil, err
	}

	damaged := make([]string, 0, 3)
	for _, role := range report.Damaged() {
		damaged = append(damaged, role.String())
	}
	result := &CheckResult{
		DataSetID:   ds.ID,
		CheckedAt:   s.clock.Now(),
		Healthy:     report.Healthy(),
		Recoverable: report.Recoverable(),
		Damaged:     strings.Join(damaged, ","),
	}
	if err := s.catalog.RecordCheck(result); err != nil {
		return nil, fmt.Errorf("recording check: %w", err)
	}
	return report, nil
}

// Repair reconstructs every damaged copy of a data set.
func (s *Service) Repair(name string) (*RepairResult, error) {
	ds, err := s.find(name)
	if err != nil {
		return nil, err
	}

	res, err := s.session().Reconstruct(ds.Paths())
	if err != nil {
		return res, err
	}
	if res.Changed() {
		ds.UpdatedAt = s.clock.Now()
		if err := s.catalog.UpdateDataSet(ds); err != nil {
			return res, fmt.Errorf("updating data set: %w", err)
		}
	}
	return res, nil
}

// Get writes the original content of a data set to w: both halves in split
// mode, the whole archive in tree mode, the primary input in pair mode.
func (s *Service) Get(name string, w io.Writer) (int64, error) {
	ds, err := s.find(name)
	if err != nil {
		return 0, err
	}

	roles := []metadata.Role{metadata.Primary}
	if ds.Mode != ModePair {
		roles = append(roles, metadata.Secondary)
	}
	var total int64
	for _, role := range roles {
		n, err := s.readCopy(ds, role, w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// GetCopy writes the content of one data copy to w.
func (s *Service) GetCopy(name string, role metadata.Role, w io.Writer) (int64, error) {
	ds, err := s.find(name)
	if err != nil {
		return 0, err
	}
	return s.readCopy(ds, role, w)
}

// readCopy streams a data copy after verifying it against the meta file,
// and falls back to recovering it from the other copies when it is damaged,
// short, or missing.
func (s *Service) readCopy(ds *DataSet, role metadata.Role, w io.Writer) (int64, error) {
	m, name := s.media.Primary, ds.PrimaryPath
	if role == metadata.Secondary {
		m, name = s.media.Secondary, ds.SecondaryPath
	}

	sess := s.session()
	f, _, err := sess.LoadMeta(ds.Paths())
	if err != nil {
		return 0, fmt.Errorf("reading metadata: %w", err)
	}

	n, err := ReadCopy(m, role, name, f, s.opts.Hasher, w)
	if err == nil || n > 0 {
		return n, err
	}
	if !errors.Is(err, ErrNotIntact) && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	s.logger.Warn("copy damaged, reading through redundancy", "name", ds.Name, "role", role.String(), "error", err)
	return sess.ReadRole(ds.Paths(), role, w)
}

// List returns all data sets.
func (s *Service) List() ([]*DataSet, error) {
	return s.catalog.ListDataSets()
}

// History returns the most recent operations.
func (s *Service) History(limit int) ([]*Operation, error) {
	return s.catalog.ListOperations(limit)
}

// Checks returns the most recent check results of a data set.
func (s *Service) Checks(name string, limit int) ([]*CheckResult, error) {
	ds, err := s.find(name)
	if err != nil {
		return nil, err
	}
	return s.catalog.ListChecks(ds.ID, limit)
}
