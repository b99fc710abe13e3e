package fs

import (
	"path/filepath"
	"strings"
)

// ignoreRule is a parsed ignore entry with its matching strategy.
type ignoreRule struct {
	pattern string
	kind    ruleKind
}

type ruleKind int

const (
	// rulePrefix excludes an absolute path and everything below it.
	rulePrefix ruleKind = iota
	// rulePathGlob matches an absolute glob against a path or any of its parents.
	rulePathGlob
	// ruleNameGlob matches a glob against any single path component.
	ruleNameGlob
)

// IgnoreMatcher checks absolute file paths against a set of ignore entries.
// Absolute entries without glob characters exclude that path and everything
// below it. Absolute entries with glob characters are matched against the
// path and each of its parents. Relative entries such as "*.log" or ".git"
// are matched against every path component.
type IgnoreMatcher struct {
	rules []ignoreRule
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw entries.
// Blank entries and entries starting with '#' are skipped.
func NewIgnoreMatcher(entries []string) *IgnoreMatcher {
	var rules []ignoreRule
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		rule := ignoreRule{pattern: filepath.Clean(raw)}
		glob := strings.ContainsAny(raw, "*?[")
		switch {
		case filepath.IsAbs(raw) && glob:
			rule.kind = rulePathGlob
		case filepath.IsAbs(raw):
			rule.kind = rulePrefix
		default:
			rule.kind = ruleNameGlob
		}
		rules = append(rules, rule)
	}
	return &IgnoreMatcher{rules: rules}
}

// Match reports whether the given absolute path should be ignored.
func (m *IgnoreMatcher) Match(absPath string) bool {
	if len(m.rules) == 0 || absPath == "" {
		return false
	}
	absPath = filepath.Clean(absPath)

	for _, r := range m.rules {
		var matched bool
		switch r.kind {
		case rulePrefix:
			matched = absPath == r.pattern || strings.HasPrefix(absPath, strings.TrimSuffix(r.pattern, string(filepath.Separator))+string(filepath.Separator))
		case rulePathGlob:
			matched = matchAncestors(r.pattern, absPath)
		case ruleNameGlob:
			matched = matchComponents(r.pattern, absPath)
		}
		if matched {
			return true
		}
	}
	return false
}

func matchAncestors(pattern, path string) bool {
	for {
		// Bad patterns never match.
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		parent := filepath.Dir(path)
		if parent == path {
			return false
		}
		path = parent
	}
}

func matchComponents(pattern, path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" {
			continue
		}
		if ok, _ := filepath.Match(pattern, part); ok {
			return true
		}
	}
	return false
}
