package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"redun-go/internal/catalog"
	"redun-go/internal/config"
	"redun-go/internal/digest"
	"redun-go/internal/encryption"
	"redun-go/internal/fs"
	"redun-go/internal/medium"
	"redun-go/internal/metadata"
	"redun-go/internal/redun"
	"redun-go/internal/staging"

	"github.com/dustin/go-humanize"
)

// RedunApp is the application layer between the CLI and redun.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw file paths, and manages the catalog lifecycle on Close.
type RedunApp struct {
	cfg     *config.Config
	catalog *catalog.SQLiteCatalog
	media   redun.Media
	service *redun.Service
	op      *Operation
	logger  *slog.Logger
	logFile *os.File
}

// NewRedunApp creates a fully wired RedunApp from the given config.
// operation identifies the CLI command being run (e.g. "Put", "Repair").
// The caller must call Close when done.
func NewRedunApp(cfg *config.Config, operation string) (*RedunApp, error) {
	media, err := medium.NewMediaFromConfig(cfg.Media)
	if err != nil {
		return nil, fmt.Errorf("creating media: %w", err)
	}

	temp, err := staging.NewTempStorageFromConfig(cfg.Staging)
	if err != nil {
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	hasher, err := digest.ByName(cfg.Redundancy.Hash)
	if err != nil {
		return nil, err
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil && !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found: run `redun config keys` first")
	}

	cat, err := catalog.NewCatalogFromConfig(cfg.Catalog, cfg.HostID, redun.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("creating catalog: %w", err)
	}

	if err := cat.CheckMigrations(); err != nil {
		cat.Close()
		return nil, fmt.Errorf("catalog schema out of date: %w", err)
	}

	if persistent(cfg) {
		if err := checkCatalogVersion(cat, media, cfg.HostID); err != nil {
			cat.Close()
			return nil, err
		}
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := redun.NewService(cat, media, temp, enc, &slogAdapter{l: logger}, redun.RealClock{}, redun.UUIDGenerator{},
		redun.ServiceOptions{
			Hasher:    hasher,
			MaxBlocks: cfg.Redundancy.MaxBlocks,
			BlockSize: cfg.Redundancy.BlockSize,
		})

	return &RedunApp{
		cfg:     cfg,
		catalog: cat,
		media:   media,
		service: svc,
		op:      NewOperation(operation, ""),
		logger:  logger,
		logFile: logFile,
	}, nil
}

// persistent reports whether the catalog outlives the process and is
// therefore snapshotted to the media.
func persistent(cfg *config.Config) bool {
	return cfg.Catalog.Type == "sqlite"
}

// checkCatalogVersion compares the local catalog with the newest snapshot on
// the media.
func checkCatalogVersion(cat *catalog.SQLiteCatalog, media redun.Media, hostID string) error {
	remote, _, err := remoteVersion(mediaList(media), hostID)
	if err != nil {
		return fmt.Errorf("checking remote catalog version: %w", err)
	}
	localMax, err := cat.MaxOperationID()
	if err != nil {
		return fmt.Errorf("checking local catalog version: %w", err)
	}
	if remote > localMax {
		return fmt.Errorf("local catalog is behind the media (local=%d, remote=%d): run `redun catalog restore`", localMax, remote)
	}
	return nil
}

// persistOperation saves the operation to the catalog, giving it an auto-increment ID.
// This should only be called for catalog-mutating commands.
func (a *RedunApp) persistOperation(parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	op, err := a.catalog.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = op.ID
	return nil
}

// openInput opens a local file for Put.
func openInput(rawPath string) (*os.File, redun.Input, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, redun.Input{}, fmt.Errorf("resolving path: %w", err)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, redun.Input{}, fmt.Errorf("opening input: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, redun.Input{}, fmt.Errorf("stat input: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, redun.Input{}, fmt.Errorf("%s is not a regular file", p)
	}
	return f, redun.Input{Name: p, R: f, Size: info.Size()}, nil
}

// PutSplit stores the two halves of the file at rawPath as a new data set.
func (a *RedunApp) PutSplit(name, rawPath string) (*redun.DataSet, error) {
	f, in, err := openInput(rawPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	ds, err := a.service.PutSplit(name, in)
	return ds, a.op.Record(err)
}

// PutPair stores the files at pathA and pathB as the two copies of a new data set.
func (a *RedunApp) PutPair(name, pathA, pathB string) (*redun.DataSet, error) {
	fa, inA, err := openInput(pathA)
	if err != nil {
		return nil, err
	}
	defer fa.Close()
	fb, inB, err := openInput(pathB)
	if err != nil {
		return nil, err
	}
	defer fb.Close()

	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	ds, err := a.service.PutPair(name, inA, inB)
	return ds, a.op.Record(err)
}

// PutTree stores the directory at rawPath as a new data set. Its units are
// cut into two runs of similar size and each run is archived into one data
// copy. The block size is chosen from the file sizes, capped by the
// configured block size.
func (a *RedunApp) PutTree(name, rawPath string) (*redun.DataSet, error) {
	root, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	patterns, err := fs.ReadIgnoreFile(filepath.Join(root, fs.IgnoreFileName))
	if err != nil {
		return nil, err
	}
	tree, err := fs.Walk(root, fs.NewIgnoreMatcher(append(slices.Clone(a.cfg.Ignore), patterns...)))
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	for _, sk := range tree.Skipped {
		a.logger.Warn("skipped", "path", sk.Logical, "reason", sk.Reason)
	}

	limit := int64(a.cfg.Redundancy.BlockSize)
	if limit <= 0 {
		limit = redun.DefaultBlockSize
	}
	st := tree.Stats()
	cost := fs.ChooseBlockSize(st, limit)
	a.logger.Info("chose block size",
		"block_size", humanize.IBytes(uint64(cost.BlockSize)),
		"files", len(st.FileSizes),
		"size", humanize.IBytes(uint64(tree.Size())),
		"overhead", humanize.IBytes(uint64(cost.Total())))

	tree.Merge()
	first, second := fs.Split(tree.Units)

	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	ra := fs.ArchiveReader(first, false)
	defer ra.Close()
	rb := fs.ArchiveReader(second, true)
	defer rb.Close()

	ds, err := a.service.PutTree(name, root, ra, rb, int(cost.BlockSize))
	return ds, a.op.Record(err)
}

// Protect builds a new redundancy generation for a data set.
func (a *RedunApp) Protect(name string) (*redun.DataSet, error) {
	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	ds, err := a.service.Protect(name)
	return ds, a.op.Record(err)
}

// Check verifies a data set and records the result.
func (a *RedunApp) Check(name string) (*redun.Report, error) {
	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	r, err := a.service.Check(name)
	return r, a.op.Record(err)
}

// Repair reconstructs the damaged copies of a data set.
func (a *RedunApp) Repair(name string) (*redun.RepairResult, error) {
	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	res, err := a.service.Repair(name)
	return res, a.op.Record(err)
}

// Get writes the original content of a data set to w.
func (a *RedunApp) Get(name string, w io.Writer) (int64, error) {
	return a.service.Get(name, w)
}

// GetCopy writes one copy of a data set to w.
func (a *RedunApp) GetCopy(name string, role metadata.Role, w io.Writer) (int64, error) {
	return a.service.GetCopy(name, role, w)
}

// List returns all data sets.
func (a *RedunApp) List() ([]*redun.DataSet, error) {
	return a.service.List()
}

// History returns the most recent operations.
func (a *RedunApp) History(limit int) ([]*redun.Operation, error) {
	return a.service.History(limit)
}

// Checks returns the most recent check results of a data set.
func (a *RedunApp) Checks(name string, limit int) ([]*redun.CheckResult, error) {
	return a.service.Checks(name, limit)
}

// Locked reports whether reading redundancy segments needs Unlock first.
func (a *RedunApp) Locked() bool {
	return a.service.Locked()
}

// Unlock opens the private key for this operation.
func (a *RedunApp) Unlock(passphrase string) error {
	return a.service.Unlock(passphrase)
}

// MediumInfo describes one configured medium.
type MediumInfo struct {
	Role     metadata.Role
	Name     string
	Type     string
	SetupErr error

	// HasUsage is false for media that cannot report capacity.
	HasUsage    bool
	Total, Free uint64
}

// Media validates each medium and reports its capacity where available.
func (a *RedunApp) Media() []MediumInfo {
	cfgs := a.cfg.MediaList()
	var infos []MediumInfo
	for i, m := range mediaList(a.media) {
		info := MediumInfo{
			Role:     metadata.Roles[i],
			Name:     m.Name(),
			Type:     cfgs[i].Type,
			SetupErr: m.ValidateSetup(),
		}
		if u, ok := m.(medium.Usager); ok {
			total, free, err := u.Usage()
			if err == nil {
				info.HasUsage, info.Total, info.Free = true, total, free
			} else {
				a.logger.Warn("reading medium usage", "medium", m.Name(), "error", err)
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the
// catalog, and uploads the snapshot to every medium.
// For non-persisted operations: just closes the catalog.
func (a *RedunApp) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	var snapshotPath string
	if a.op.Persisted() {
		if err := a.catalog.FinishOperation(a.op.ID, a.op.Status); err != nil {
			record(fmt.Errorf("finishing operation: %w", err))
		}

		if persistent(a.cfg) {
			path, err := a.snapshot()
			if err != nil {
				record(err)
			}
			snapshotPath = path
		}
	}

	if err := a.catalog.Close(); err != nil {
		record(fmt.Errorf("closing catalog: %w", err))
	}

	if snapshotPath != "" {
		if err := uploadSnapshot(mediaList(a.media), a.cfg.HostID, snapshotPath, a.op.ID); err != nil {
			a.logger.Error("uploading catalog snapshot", "error", err)
			record(err)
		}
		os.Remove(snapshotPath)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// snapshot writes a compressed catalog snapshot to a temp file and returns
// its path.
func (a *RedunApp) snapshot() (string, error) {
	f, err := os.CreateTemp("", "redun-catalog-*.db.zst")
	if err != nil {
		return "", fmt.Errorf("creating temp file for catalog snapshot: %w", err)
	}
	path := f.Name()

	err = a.catalog.Snapshot(filepath.Dir(path), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("snapshotting catalog: %w", err)
	}
	return path, nil
}
