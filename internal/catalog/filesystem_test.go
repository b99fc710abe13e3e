package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"zbackup/internal/zb"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestFileSystemCatalog_List(t *testing.T) {
	t.Run("returns only archives", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "2024-Mar-05 13-45-123456.zstd"), 10)
		writeFile(t, filepath.Join(dir, "2024-Mar-06 08-00-000001.gz.age"), 20)
		writeFile(t, filepath.Join(dir, "notes.txt"), 5)
		writeFile(t, filepath.Join(dir, ".tmp-12345"), 5)
		if err := os.Mkdir(filepath.Join(dir, "2024-Mar-07 08-00-000001.zstd"), 0755); err != nil {
			t.Fatalf("Mkdir() error = %v", err)
		}

		c := NewFileSystemCatalog(time.UTC)
		archives, err := c.List(context.Background(), dir)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(archives) != 2 {
			t.Fatalf("List() returned %d archives, want 2", len(archives))
		}

		want := time.Date(2024, time.March, 5, 13, 45, 0, 123456000, time.UTC)
		if !archives[0].CreatedAt.Equal(want) {
			t.Errorf("CreatedAt = %v, want %v", archives[0].CreatedAt, want)
		}
		if archives[0].Path != filepath.Join(dir, "2024-Mar-05 13-45-123456.zstd") {
			t.Errorf("Path = %q", archives[0].Path)
		}
		if _, known := archives[0].Size(); known {
			t.Error("size should not be resolved by List")
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		c := NewFileSystemCatalog(nil)
		archives, err := c.List(context.Background(), t.TempDir())
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(archives) != 0 {
			t.Errorf("List() returned %d archives, want 0", len(archives))
		}
	})

	t.Run("missing directory is an error", func(t *testing.T) {
		c := NewFileSystemCatalog(nil)
		_, err := c.List(context.Background(), filepath.Join(t.TempDir(), "missing"))
		if err == nil {
			t.Error("List() expected error for missing destination")
		}
	})
}

func TestFileSystemCatalog_SizeAndRemove(t *testing.T) {
	dir := t.TempDir()
	name := "2024-Mar-05 13-45-123456.zstd"
	writeFile(t, filepath.Join(dir, name), 42)

	c := NewFileSystemCatalog(time.UTC)
	ctx := context.Background()
	archives, err := c.List(ctx, dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	size, err := c.Size(ctx, archives[0])
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != 42 {
		t.Errorf("Size() = %d, want 42", size)
	}

	if err := c.Remove(ctx, archives[0]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
		t.Errorf("archive still exists after Remove(): %v", err)
	}

	// Size stays cached after removal.
	if size, err := c.Size(ctx, archives[0]); err != nil || size != 42 {
		t.Errorf("cached Size() = %d, %v; want 42, nil", size, err)
	}

	if err := c.Remove(ctx, archives[0]); err == nil {
		t.Error("second Remove() expected error")
	}
}

func TestFileSystemCatalog_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewFileSystemCatalog(nil)
	if _, err := c.List(ctx, t.TempDir()); err == nil {
		t.Error("List() expected error for cancelled context")
	}
	a := zb.NewArchive("/nowhere/x", "x", time.Now())
	if err := c.Remove(ctx, a); err == nil {
		t.Error("Remove() expected error for cancelled context")
	}
}
