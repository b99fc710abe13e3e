package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}

	tests := []struct {
		name       string
		configEnv  string
		homeEnv    string
		wantConfig string
		wantBase   string
	}{
		{
			name:       "unset",
			wantConfig: filepath.Join(home, ".config", "zbackup.yml"),
			wantBase:   filepath.Join(home, ".local", "share", "zbackup"),
		},
		{
			name:       "absolute overrides",
			configEnv:  "/etc/zbackup/nightly.toml",
			homeEnv:    "/var/lib/zbackup",
			wantConfig: "/etc/zbackup/nightly.toml",
			wantBase:   "/var/lib/zbackup",
		},
		{
			name:       "tilde overrides",
			configEnv:  "~/zb/zbackup.yml",
			homeEnv:    "~/zb/state",
			wantConfig: filepath.Join(home, "zb", "zbackup.yml"),
			wantBase:   filepath.Join(home, "zb", "state"),
		},
		{
			name:       "relative overrides",
			configEnv:  "conf/zbackup.yml",
			homeEnv:    "state",
			wantConfig: filepath.Join(wd, "conf", "zbackup.yml"),
			wantBase:   filepath.Join(wd, "state"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigPath, tt.configEnv)
			t.Setenv(EnvHome, tt.homeEnv)

			defaults, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if got := defaults["config_path"]; got != tt.wantConfig {
				t.Errorf("config_path = %q, want %q", got, tt.wantConfig)
			}
			if got := defaults["base_dir"]; got != tt.wantBase {
				t.Errorf("base_dir = %q, want %q", got, tt.wantBase)
			}
			if got, want := defaults["log_dir"], filepath.Join(tt.wantBase, "log"); got != want {
				t.Errorf("log_dir = %q, want %q", got, want)
			}
		})
	}
}
