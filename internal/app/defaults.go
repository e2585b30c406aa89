package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - REDUN_CONFIG_PATH: config file location (default: ~/.config/redun.toml)
//   - REDUN_HOME: base directory for media, keys, catalog and logs (default: ~/.local/share/redun)
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome("REDUN_CONFIG_PATH", ".config", "redun.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := fromEnvOrHome("REDUN_HOME", ".local", "share", "redun")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env, or elem joined under the home
// directory when env is unset or empty.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
