package zb

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Selection describes what a backup includes and where it goes. Paths are
// absolute; expansion of ~ and relative paths happens when the configuration
// is loaded.
type Selection struct {
	Include     []string
	Ignore      IgnoreMatcher
	Destination string
}

// Profile is the resolved input of a backup run.
type Profile struct {
	Files       []*Path
	TotalSize   int64
	Destination *Path
	ArchiveName string
	CreatedAt   time.Time
}

// BuildProfile resolves a selection into the concrete list of files to
// archive. Missing include paths are warned about and skipped; when none
// exist the result is ErrNothingToBackup. Files inside the destination are
// never included.
func (s *BackupService) BuildProfile(sel Selection, now time.Time) (*Profile, error) {
	if len(sel.Include) == 0 {
		return nil, fmt.Errorf("%w: no include paths", ErrProfile)
	}
	if sel.Destination == "" {
		return nil, fmt.Errorf("%w: no destination", ErrProfile)
	}
	ignore := sel.Ignore
	if ignore == nil {
		ignore = noIgnore{}
	}

	dest, err := s.fsmgr.EnsureDir(sel.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: preparing destination: %w", ErrProfile, err)
	}

	profile := &Profile{
		Destination: dest,
		ArchiveName: ArchiveName(now, s.writer.Extension()),
		CreatedAt:   now,
	}

	seen := make(map[string]bool)
	add := func(p *Path) {
		if seen[p.String()] || within(p.String(), dest.String()) || ignore.Match(p.String()) {
			return
		}
		seen[p.String()] = true
		profile.Files = append(profile.Files, p)
		profile.TotalSize += p.Size()
	}

	resolved := 0
	for _, raw := range sel.Include {
		path, err := s.fsmgr.Resolve(raw)
		if err != nil {
			s.logger.Warn("skipping include path", "path", raw, "error", err)
			continue
		}
		resolved++

		if !path.IsDir() {
			add(path)
			continue
		}
		if ignore.Match(path.String()) {
			s.logger.Debug("include path is ignored", "path", path.String())
			continue
		}

		files, err := s.fsmgr.FindFiles(path)
		if err != nil {
			return nil, fmt.Errorf("%w: finding files in %s: %w", ErrProfile, path.String(), err)
		}
		for _, f := range files {
			add(f)
		}
	}

	if resolved == 0 {
		s.logger.Warn("none of the include paths exist")
		return nil, fmt.Errorf("%w: none of the include paths exist", ErrNothingToBackup)
	}

	s.logger.Info("backup profile built", "files", len(profile.Files), "size", profile.TotalSize, "archive", profile.ArchiveName)
	return profile, nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}
