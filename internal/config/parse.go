package config

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"zbackup/internal/zb"
)

const (
	DefaultLevel = 3
	MaxLevel     = 22
	DefaultCodec = "zstd"
)

var (
	codecs       = []string{"zstd", "gzip", "lz4", "snappy"}
	historyTypes = []string{"sqlite", "memory", "none"}
	encryptTypes = []string{"age", "test"}
)

// logLevels maps console_log_level names onto slog levels. FATAL and
// CRITICAL are accepted for compatibility and behave like ERROR.
var logLevels = map[string]slog.Level{
	"DEBUG":    slog.LevelDebug,
	"INFO":     slog.LevelInfo,
	"WARN":     slog.LevelWarn,
	"WARNING":  slog.LevelWarn,
	"ERROR":    slog.LevelError,
	"FATAL":    slog.LevelError,
	"CRITICAL": slog.LevelError,
}

// ParseLogLevel converts a console_log_level name into a slog level.
func ParseLogLevel(name string) (slog.Level, bool) {
	level, ok := logLevels[strings.ToUpper(strings.TrimSpace(name))]
	return level, ok
}

// ConsoleLevel reads console_log_level from a raw mapping without logging,
// so a logger can be built before the rest of the file is parsed.
func ConsoleLevel(raw map[string]any) slog.Level {
	s, _ := raw["console_log_level"].(string)
	if level, ok := ParseLogLevel(s); ok {
		return level
	}
	return slog.LevelInfo
}

// Level returns the parsed console log level.
func (c *Config) Level() slog.Level {
	level, _ := ParseLogLevel(c.ConsoleLogLevel)
	return level
}

// Parse validates a raw mapping field by field. Invalid optional fields fall
// back to their defaults with a warning. Missing include or destination
// entries make the configuration unusable and return ErrInvalid.
func Parse(raw map[string]any, baseDir string, logger zb.Logger) (*Config, error) {
	cfg := NewConfig(baseDir)

	cfg.ConsoleLogLevel = strings.ToUpper(stringField(raw, "console_log_level", cfg.ConsoleLogLevel, logger))
	if _, ok := ParseLogLevel(cfg.ConsoleLogLevel); !ok {
		logger.Warn("unknown console_log_level, using INFO", "value", cfg.ConsoleLogLevel)
		cfg.ConsoleLogLevel = "INFO"
	}

	cfg.Include = stringListField(raw, "include", logger)
	if len(cfg.Include) == 0 {
		return nil, requiredError("include")
	}
	cfg.Destination = stringField(raw, "destination", "", logger)
	if cfg.Destination == "" {
		return nil, requiredError("destination")
	}
	cfg.Ignore = stringListField(raw, "ignore", logger)

	old := section(raw, "old_backups", logger)
	cfg.OldBackups = OldBackupsConfig{
		Keep:                     nonNegativeIntField(old, "keep", 0, logger),
		Retention:                nonNegativeIntField(old, "retention", 0, logger),
		RemoveOldBackupsForSpace: boolField(old, "remove_old_backups_for_space", false, logger),
		Aggressive:               boolField(old, "aggressive", false, logger),
	}

	args := section(raw, "arguments", logger)
	cfg.Arguments = ArgumentsConfig{
		Level:   parseLevel(args, logger),
		Threads: parseThreads(args, logger),
		Codec:   oneOfField(args, "codec", DefaultCodec, codecs, logger),
	}

	settings := section(raw, "settings", logger)
	progress := section(settings, "progress_bar", logger)
	cfg.Settings.ProgressBar.Enabled = boolField(progress, "enabled", false, logger)

	enc := section(raw, "encryption", logger)
	cfg.Encryption.Enabled = boolField(enc, "enabled", false, logger)
	cfg.Encryption.Type = oneOfField(enc, "type", cfg.Encryption.Type, encryptTypes, logger)
	cfg.Encryption.PublicKeyPath = stringField(enc, "public_key_path", cfg.Encryption.PublicKeyPath, logger)
	cfg.Encryption.PrivateKeyPath = stringField(enc, "private_key_path", cfg.Encryption.PrivateKeyPath, logger)
	cfg.Encryption.Recipients = stringListField(enc, "recipients", logger)

	hist := section(raw, "history", logger)
	cfg.History.Type = oneOfField(hist, "type", cfg.History.Type, historyTypes, logger)
	cfg.History.Path = stringField(hist, "path", cfg.History.Path, logger)
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(baseDir, "history.db")
	}

	metrics := section(raw, "metrics", logger)
	cfg.Metrics.Textfile = stringField(metrics, "textfile", "", logger)

	offsite := section(raw, "offsite", logger)
	cfg.Offsite = OffsiteConfig{
		S3Bucket:          stringField(offsite, "s3_bucket", "", logger),
		S3Prefix:          strings.Trim(stringField(offsite, "s3_prefix", "", logger), "/"),
		S3Region:          stringField(offsite, "s3_region", "", logger),
		S3Endpoint:        stringField(offsite, "s3_endpoint", "", logger),
		S3PathStyle:       boolField(offsite, "s3_path_style", false, logger),
		S3AccessKeyID:     stringField(offsite, "s3_access_key_id", "", logger),
		S3SecretAccessKey: stringField(offsite, "s3_secret_access_key", "", logger),
	}

	cfg.Schedule = stringField(raw, "schedule", "", logger)

	return cfg, nil
}

// parseLevel reads the compression level. Values above MaxLevel are clamped;
// anything else outside 1..MaxLevel falls back to DefaultLevel.
func parseLevel(args map[string]any, logger zb.Logger) int {
	level := intField(args, "level", DefaultLevel, logger)
	switch {
	case level > MaxLevel:
		logger.Warn("compression level too high, clamping", "value", level, "max", MaxLevel)
		return MaxLevel
	case level < 1:
		logger.Warn("compression level must be positive, using default", "value", level, "default", DefaultLevel)
		return DefaultLevel
	}
	return level
}

// parseThreads reads the compressor thread count. 0 means every CPU.
func parseThreads(args map[string]any, logger zb.Logger) int {
	threads := intField(args, "threads", 0, logger)
	if threads < 0 || threads > runtime.NumCPU() {
		logger.Warn("invalid thread count, using all CPUs", "value", threads, "cpus", runtime.NumCPU())
		return 0
	}
	return threads
}
