package app

import (
	"fmt"
	"os"
	"path/filepath"

	"zbackup/internal/config"
)

// Environment overrides for the two locations zbackup needs before any
// config is read.
const (
	EnvConfigPath = "ZB_CONFIG_PATH"
	EnvHome       = "ZB_HOME"
)

// GetDefaults resolves where the config file lives and where zbackup keeps
// its own state (logs, history, keys). Keys: config_path, base_dir, log_dir.
//
// An override may start with ~ since service managers do not expand it.
// Relative overrides resolve against the working directory.
func GetDefaults() (map[string]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	configPath, err := location(EnvConfigPath, filepath.Join(home, ".config", "zbackup.yml"))
	if err != nil {
		return nil, err
	}
	baseDir, err := location(EnvHome, filepath.Join(home, ".local", "share", "zbackup"))
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func location(env, fallback string) (string, error) {
	raw := os.Getenv(env)
	if raw == "" {
		return fallback, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", env, err)
	}
	path, err := config.ExpandPath(raw, wd)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", env, err)
	}
	return path, nil
}
