package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for redun.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Media      MediaConfig      `toml:"media"`
	Redundancy RedundancyConfig `toml:"redundancy"`
	Encryption EncryptionConfig `toml:"encryption"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Staging    StagingConfig    `toml:"staging"`

	// Ignore holds patterns for files left out of directory puts, in the
	// same form as a .redunignore file.
	Ignore []string `toml:"ignore"`
}

// MediaConfig names the three media that hold the copies of every data set.
type MediaConfig struct {
	Primary    MediumConfig `toml:"primary"`
	Secondary  MediumConfig `toml:"secondary"`
	Redundancy MediumConfig `toml:"redundancy"`
}

// MediumConfig represents configuration for a storage medium.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MediumConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// RedundancyConfig controls how data streams and parity segments are laid out.
type RedundancyConfig struct {
	Hash      string `toml:"hash"`       // "sha1" (default) or "blake3"
	MaxBlocks int    `toml:"max_blocks"` // parity blocks per segment, defaults to 1000
	BlockSize int    `toml:"block_size"` // payload bytes per block, defaults to 64 KiB; caps the size chosen for directory puts
}

// EncryptionConfig holds paths to the age key pair used to seal redundancy segments.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age", or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// CatalogConfig represents configuration for the data set catalog.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CatalogConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// StagingConfig represents configuration for the temporary storage used while
// assembling streams and segments.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StagingConfig struct {
	Type       string `toml:"type"`                  // "memory" or "filesystem"
	StagingDir string `toml:"staging_dir,omitempty"` // only used for type=filesystem
	MaxSize    int64  `toml:"max_size"`              // max total size in bytes; must be positive
}

// NewConfig creates a new Config with the provided values. Media, keys, the
// catalog and staging all live under baseDir.
func NewConfig(hostID, baseDir string) *Config {
	medium := func(name string) MediumConfig {
		return MediumConfig{Type: "filesystem", Name: name, FSRoot: filepath.Join(baseDir, "media", name)}
	}
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Media: MediaConfig{
			Primary:    medium("primary"),
			Secondary:  medium("secondary"),
			Redundancy: medium("redundancy"),
		},
		Redundancy: RedundancyConfig{
			Hash:      "sha1",
			MaxBlocks: 1000,
			BlockSize: 64 << 10,
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "redun.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "redun.key"),
		},
		Catalog: CatalogConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "catalog"),
		},
		Staging: StagingConfig{
			Type:       "filesystem",
			StagingDir: filepath.Join(baseDir, "staging"),
			MaxSize:    1 << 30,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// MediaList returns the three medium configs in role order.
func (c *Config) MediaList() [3]MediumConfig {
	return [3]MediumConfig{c.Media.Primary, c.Media.Secondary, c.Media.Redundancy}
}
