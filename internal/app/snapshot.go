package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"redun-go/internal/catalog"
	"redun-go/internal/config"
	"redun-go/internal/medium"
	"redun-go/internal/redun"
)

// Catalog snapshots live beside the data sets on every medium. Data set
// names cannot start with a dot, so the prefix never collides with them.
const snapshotPrefix = ".redun/catalog/"

func snapshotName(hostID string) string { return snapshotPrefix + hostID + ".db.zst" }
func versionName(hostID string) string  { return snapshotPrefix + hostID + ".version" }

func mediaList(m redun.Media) []redun.Medium {
	return []redun.Medium{m.Primary, m.Secondary, m.Redundancy}
}

// remoteVersion returns the highest catalog snapshot version stored on any
// medium, and the medium holding it. It returns 0 and nil when no medium has
// a snapshot.
func remoteVersion(media []redun.Medium, hostID string) (int64, redun.Medium, error) {
	var best int64
	var holder redun.Medium
	for _, m := range media {
		obj, err := m.Open(versionName(hostID))
		if errors.Is(err, redun.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, nil, fmt.Errorf("reading catalog version on %s: %w", m.Name(), err)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(string(obj.Bytes())), 10, 64)
		obj.Close()
		if err != nil {
			return 0, nil, fmt.Errorf("parsing catalog version on %s: %w", m.Name(), err)
		}
		if v > best {
			best, holder = v, m
		}
	}
	return best, holder, nil
}

// uploadSnapshot stores the compressed snapshot at path on every medium,
// followed by its version. A medium that fails keeps its previous snapshot.
func uploadSnapshot(media []redun.Medium, hostID, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening catalog snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat catalog snapshot: %w", err)
	}
	v := []byte(strconv.FormatInt(version, 10))

	var errs []error
	for _, m := range media {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding catalog snapshot: %w", err)
		}
		if err := m.Put(snapshotName(hostID), f, info.Size()); err != nil {
			errs = append(errs, fmt.Errorf("uploading catalog snapshot to %s: %w", m.Name(), err))
			continue
		}
		if err := m.Put(versionName(hostID), bytes.NewReader(v), int64(len(v))); err != nil {
			errs = append(errs, fmt.Errorf("uploading catalog version to %s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RestoreCatalog replaces the local catalog with the newest snapshot found on
// the configured media and returns its version.
func RestoreCatalog(cfg *config.Config) (int64, error) {
	if cfg.Catalog.Type != "sqlite" {
		return 0, fmt.Errorf("catalog type %q cannot be restored", cfg.Catalog.Type)
	}
	media, err := medium.NewMediaFromConfig(cfg.Media)
	if err != nil {
		return 0, fmt.Errorf("creating media: %w", err)
	}

	version, holder, err := remoteVersion(mediaList(media), cfg.HostID)
	if err != nil {
		return 0, err
	}
	if holder == nil {
		return 0, fmt.Errorf("no catalog snapshot for host %s on any medium", cfg.HostID)
	}

	obj, err := holder.Open(snapshotName(cfg.HostID))
	if err != nil {
		return 0, fmt.Errorf("opening catalog snapshot on %s: %w", holder.Name(), err)
	}
	defer obj.Close()

	if err := os.MkdirAll(cfg.Catalog.DataDir, 0755); err != nil {
		return 0, fmt.Errorf("creating catalog directory: %w", err)
	}
	if err := catalog.RestoreFile(bytes.NewReader(obj.Bytes()), catalog.FilePath(cfg.Catalog.DataDir, cfg.HostID)); err != nil {
		return 0, err
	}
	return version, nil
}
