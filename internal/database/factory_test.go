package database

import (
	"path/filepath"
	"testing"

	"zbackup/internal/config"
)

func TestNewHistoryFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(t *testing.T) config.HistoryConfig
		wantErr bool
	}{
		{
			name: "memory history",
			cfg:  func(*testing.T) config.HistoryConfig { return config.HistoryConfig{Type: "memory"} },
		},
		{
			name: "sqlite history creates parent directory",
			cfg: func(t *testing.T) config.HistoryConfig {
				return config.HistoryConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "history.db")}
			},
		},
		{
			name:    "sqlite history without path",
			cfg:     func(*testing.T) config.HistoryConfig { return config.HistoryConfig{Type: "sqlite"} },
			wantErr: true,
		},
		{
			name: "disabled history",
			cfg:  func(*testing.T) config.HistoryConfig { return config.HistoryConfig{Type: "none"} },
		},
		{
			name:    "unknown type",
			cfg:     func(*testing.T) config.HistoryConfig { return config.HistoryConfig{Type: "postgres"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewHistoryFromConfig(tt.cfg(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewHistoryFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					t.Error("NewHistoryFromConfig() should return nil on error")
				}
				return
			}
			if got == nil {
				t.Fatal("NewHistoryFromConfig() returned nil")
			}
			got.Close()
		})
	}
}

func TestNewHistoryFromConfig_Reopen(t *testing.T) {
	cfg := config.HistoryConfig{Type: "sqlite", Path: filepath.Join(t.TempDir(), "history.db")}

	first, err := NewHistoryFromConfig(cfg)
	if err != nil {
		t.Fatalf("first NewHistoryFromConfig() error = %v", err)
	}
	first.Close()

	second, err := NewHistoryFromConfig(cfg)
	if err != nil {
		t.Fatalf("second NewHistoryFromConfig() error = %v", err)
	}
	second.Close()
}
