package database

import (
	"fmt"
	"os"
	"path/filepath"

	"zbackup/internal/config"
	"zbackup/internal/zb"
)

// NewHistoryFromConfig creates a History implementation based on the history config type.
func NewHistoryFromConfig(cfg config.HistoryConfig) (zb.History, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite history")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
		return openSQLite(cfg.Path)
	case "memory":
		return openSQLite(":memory:")
	case "none":
		return NopHistory{}, nil
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}

// openSQLite avoids returning a typed nil inside the interface.
func openSQLite(path string) (zb.History, error) {
	h, err := NewSQLiteHistory(path)
	if err != nil {
		return nil, err
	}
	return h, nil
}
