package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// globChars are the characters that turn an ignore entry into a pattern.
const globChars = "*?["

// ExpandPath makes raw absolute: a leading ~ is replaced by the home
// directory and relative paths resolve against baseDir.
func ExpandPath(raw, baseDir string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if raw == "~" || strings.HasPrefix(raw, "~/") || strings.HasPrefix(raw, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		raw = filepath.Join(home, raw[1:])
	}
	if !filepath.IsAbs(raw) {
		raw = filepath.Join(baseDir, raw)
	}
	return filepath.Clean(raw), nil
}

// ResolvePaths expands every path in the configuration against configDir.
// Ignore entries that are bare glob patterns such as "*.log" stay relative
// and match basenames.
func (c *Config) ResolvePaths(configDir string) error {
	var err error
	expand := func(p *string) {
		if err != nil || *p == "" {
			return
		}
		*p, err = ExpandPath(*p, configDir)
	}

	for i := range c.Include {
		expand(&c.Include[i])
	}
	expand(&c.Destination)
	for i, entry := range c.Ignore {
		if isBasenamePattern(entry) {
			continue
		}
		expand(&c.Ignore[i])
	}
	expand(&c.Encryption.PublicKeyPath)
	expand(&c.Encryption.PrivateKeyPath)
	expand(&c.History.Path)
	expand(&c.Metrics.Textfile)
	return err
}

func isBasenamePattern(entry string) bool {
	return strings.ContainsAny(entry, globChars) && !strings.ContainsAny(entry, `/\`) && !strings.HasPrefix(entry, "~")
}
