package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"zbackup/internal/zb"
)

// ErrInvalid marks a configuration that cannot be used at all, as opposed
// to a field that was replaced by its default.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the main configuration for zbackup.
type Config struct {
	ConsoleLogLevel string           `yaml:"console_log_level" toml:"console_log_level"`
	Include         []string         `yaml:"include" toml:"include"`
	Destination     string           `yaml:"destination" toml:"destination"`
	Ignore          []string         `yaml:"ignore" toml:"ignore"`
	OldBackups      OldBackupsConfig `yaml:"old_backups" toml:"old_backups"`
	Arguments       ArgumentsConfig  `yaml:"arguments" toml:"arguments"`
	Settings        SettingsConfig   `yaml:"settings" toml:"settings"`
	Encryption      EncryptionConfig `yaml:"encryption" toml:"encryption"`
	History         HistoryConfig    `yaml:"history" toml:"history"`
	Metrics         MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Offsite         OffsiteConfig    `yaml:"offsite" toml:"offsite"`
	Schedule        string           `yaml:"schedule" toml:"schedule"`

	// Derived from the environment, never read from the file.
	BaseDir string `yaml:"-" toml:"-"`
	LogDir  string `yaml:"-" toml:"-"`
}

// OldBackupsConfig holds the retention rules for previous archives.
type OldBackupsConfig struct {
	Keep                     int  `yaml:"keep" toml:"keep"`           // 0 = unlimited
	Retention                int  `yaml:"retention" toml:"retention"` // days, 0 = forever
	RemoveOldBackupsForSpace bool `yaml:"remove_old_backups_for_space" toml:"remove_old_backups_for_space"`
	Aggressive               bool `yaml:"aggressive" toml:"aggressive"`
}

// Policy converts the section into a retention policy.
func (c OldBackupsConfig) Policy() zb.RetentionPolicy {
	return zb.NewRetentionPolicy(c.Retention, c.Keep, c.RemoveOldBackupsForSpace, c.Aggressive)
}

// ArgumentsConfig holds compressor settings.
type ArgumentsConfig struct {
	Level   int    `yaml:"level" toml:"level"`     // 1..22
	Threads int    `yaml:"threads" toml:"threads"` // 0 = all CPUs
	Codec   string `yaml:"codec" toml:"codec"`     // "zstd", "gzip", "lz4" or "snappy"
}

// SettingsConfig holds presentation settings.
type SettingsConfig struct {
	ProgressBar ProgressBarConfig `yaml:"progress_bar" toml:"progress_bar"`
}

// ProgressBarConfig toggles progress output while writing an archive.
type ProgressBarConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	Type           string `yaml:"type,omitempty" toml:"type,omitempty"` // "age" (default) or "test"
	PublicKeyPath  string `yaml:"public_key_path" toml:"public_key_path"`
	PrivateKeyPath string `yaml:"private_key_path" toml:"private_key_path"`
	// Recipients are extra age public keys every archive is also encrypted
	// to, such as an offline recovery key.
	Recipients []string `yaml:"recipients,omitempty" toml:"recipients,omitempty"`
}

// HistoryConfig represents configuration for the run history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HistoryConfig struct {
	Type string `yaml:"type" toml:"type"`                     // "sqlite", "memory" or "none"
	Path string `yaml:"path,omitempty" toml:"path,omitempty"` // only used for type=sqlite
}

// MetricsConfig configures the node_exporter textfile output.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"` // empty disables metrics
}

// OffsiteConfig configures the S3 copy of every written archive.
type OffsiteConfig struct {
	S3Bucket   string `yaml:"s3_bucket" toml:"s3_bucket"` // empty disables the copy
	S3Prefix   string `yaml:"s3_prefix" toml:"s3_prefix"`
	S3Region   string `yaml:"s3_region" toml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint" toml:"s3_endpoint"`
	// S3PathStyle is required by MinIO and some other S3-compatible stores.
	S3PathStyle bool `yaml:"s3_path_style" toml:"s3_path_style"`
	// Static credentials. Empty uses the default AWS credential chain.
	S3AccessKeyID     string `yaml:"s3_access_key_id,omitempty" toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key,omitempty" toml:"s3_secret_access_key,omitempty"`
}

// Enabled reports whether archives are copied offsite.
func (c OffsiteConfig) Enabled() bool {
	return c.S3Bucket != ""
}

// NewConfig creates a Config with default values for the given data directory.
func NewConfig(baseDir string) *Config {
	return &Config{
		ConsoleLogLevel: "INFO",
		Arguments: ArgumentsConfig{
			Level: DefaultLevel,
			Codec: DefaultCodec,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "zbackup.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "zbackup.key"),
		},
		History: HistoryConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "history.db"),
		},
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
	}
}

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the file syntax from the extension. Anything that is
// not .toml is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format
}

// Read decodes the provided reader into a loose mapping. Field validation
// happens in Parse.
func (m *Manager) Read(r io.Reader) (map[string]any, error) {
	raw := make(map[string]any)
	switch m.Format {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return raw, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadRawFromFile reads the loose mapping stored at path.
func ReadRawFromFile(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	raw, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return raw, nil
}

// ReadFromFile reads, validates and resolves the Config stored at path.
func ReadFromFile(path, baseDir string, logger zb.Logger) (*Config, error) {
	raw, err := ReadRawFromFile(path)
	if err != nil {
		return nil, err
	}
	return Load(raw, path, baseDir, logger)
}

// Load parses a raw mapping read from path. Relative paths in the file
// resolve against the file's directory; baseDir supplies defaults for key,
// history and log locations.
func Load(raw map[string]any, path, baseDir string, logger zb.Logger) (*Config, error) {
	cfg, err := Parse(raw, baseDir, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	if err := cfg.ResolvePaths(filepath.Dir(absPath)); err != nil {
		return nil, fmt.Errorf("resolving paths in %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
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

	m := &Manager{Format: FormatForPath(path)}
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
