package fs

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOSFilesystemManager_Resolve(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("hello"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m := NewOSFilesystemManager(nil)

	t.Run("file", func(t *testing.T) {
		p, err := m.Resolve(file)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsDir() || p.Size() != 5 {
			t.Errorf("Resolve() = dir %v size %d, want file of 5 bytes", p.IsDir(), p.Size())
		}
	})

	t.Run("directory", func(t *testing.T) {
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !p.IsDir() {
			t.Error("Resolve() IsDir = false, want true")
		}
	})

	t.Run("missing path", func(t *testing.T) {
		if _, err := m.Resolve(filepath.Join(dir, "missing")); err == nil {
			t.Error("Resolve() expected error for missing path")
		}
	})
}

func TestOSFilesystemManager_FindFiles(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"a.txt", "sub/b.txt", "sub/deeper/c.txt"} {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte(rel), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	if err := os.Symlink(filepath.Join(dir, "a.txt"), filepath.Join(dir, "link.txt")); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	m := NewOSFilesystemManager(nil)
	root, err := m.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	files, err := m.FindFiles(root)
	if err != nil {
		t.Fatalf("FindFiles() error = %v", err)
	}

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(dir, f.String())
		got = append(got, filepath.ToSlash(rel))
	}
	slices.Sort(got)
	want := []string{"a.txt", "sub/b.txt", "sub/deeper/c.txt"}
	if !slices.Equal(got, want) {
		t.Errorf("FindFiles() = %v, want %v", got, want)
	}

	file, _ := m.Resolve(filepath.Join(dir, "a.txt"))
	if _, err := m.FindFiles(file); err == nil {
		t.Error("FindFiles() expected error for a file")
	}
}

func TestOSFilesystemManager_EnsureDir(t *testing.T) {
	m := NewOSFilesystemManager(nil)
	target := filepath.Join(t.TempDir(), "x", "y")

	p, err := m.EnsureDir(target)
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if !p.IsDir() {
		t.Error("EnsureDir() returned a non-directory")
	}
	if _, err := m.EnsureDir(target); err != nil {
		t.Errorf("second EnsureDir() error = %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := m.EnsureDir(file); err == nil {
		t.Error("EnsureDir() expected error for a file")
	}
}

func TestDiskSpace_FreeBytes(t *testing.T) {
	free, err := DiskSpace{}.FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes() error = %v", err)
	}
	if free == 0 {
		t.Error("FreeBytes() = 0, want free space on the test filesystem")
	}

	if _, err := (DiskSpace{}).FreeBytes(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("FreeBytes() expected error for missing path")
	}
}
