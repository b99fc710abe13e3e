package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"zbackup/internal/zb"
)

// EncryptedSuffix is appended to the codec extension of encrypted archives.
const EncryptedSuffix = "age"

// Writer streams files into a tar archive, compresses it with a Codec and
// optionally encrypts it. It implements zb.ArchiveWriter.
type Writer struct {
	codec     Codec
	fsmgr     zb.FilesystemManager
	encryptor zb.Encryptor
	progress  io.Writer
	logger    zb.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithEncryptor encrypts every archive with enc.
func WithEncryptor(enc zb.Encryptor) Option {
	return func(w *Writer) { w.encryptor = enc }
}

// WithProgress reports progress to out while writing. A nil out disables it.
func WithProgress(out io.Writer) Option {
	return func(w *Writer) { w.progress = out }
}

// NewWriter creates a Writer that reads files through fsmgr.
func NewWriter(codec Codec, fsmgr zb.FilesystemManager, logger zb.Logger, opts ...Option) *Writer {
	if logger == nil {
		logger = zb.NewNopLogger()
	}
	w := &Writer{codec: codec, fsmgr: fsmgr, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Extension() string {
	if w.encryptor != nil {
		return w.codec.Extension() + "." + EncryptedSuffix
	}
	return w.codec.Extension()
}

// Write creates the archive in a temporary file next to target and renames
// it into place once every layer has been flushed.
func (w *Writer) Write(ctx context.Context, files []*zb.Path, target string) (int64, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	buf := bufio.NewWriterSize(tmpFile, 1<<20)
	counter := &countingWriter{w: buf}

	if err := w.stream(ctx, files, counter); err != nil {
		return 0, err
	}
	if err := buf.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return counter.n, nil
}

// stream writes the layered archive to out: tar into codec into encryption.
func (w *Writer) stream(ctx context.Context, files []*zb.Path, out io.Writer) error {
	sink := out
	var enc io.WriteCloser
	if w.encryptor != nil {
		var err error
		enc, err = w.encryptor.EncryptWriter(out)
		if err != nil {
			return fmt.Errorf("failed to start encryption: %w", err)
		}
		sink = enc
	}

	comp, err := w.codec.NewWriter(sink)
	if err != nil {
		if enc != nil {
			enc.Close()
		}
		return err
	}

	// On failure the layers are still closed so encoder workers exit.
	finished := false
	defer func() {
		if finished {
			return
		}
		comp.Close()
		if enc != nil {
			enc.Close()
		}
	}()

	var progress *Progress
	if w.progress != nil {
		progress = NewProgress(w.progress, totalSize(files))
		defer progress.Done()
	}

	tw := tar.NewWriter(comp)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("archive cancelled: %w", err)
		}
		if err := w.addFile(tw, f, progress); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	finished = true
	if err := comp.Close(); err != nil {
		if enc != nil {
			enc.Close()
		}
		return fmt.Errorf("failed to finish %s stream: %w", w.codec.Name(), err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to finish encryption: %w", err)
		}
	}
	return nil
}

func (w *Writer) addFile(tw *tar.Writer, f *zb.Path, progress *Progress) error {
	info, err := w.fsmgr.Stat(f)
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("file vanished before it could be archived", "path", f.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", f, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", f, err)
	}
	hdr.Name = EntryName(f.String())
	hdr.Format = tar.FormatPAX
	hdr.Uname, hdr.Gname = "", ""

	rc, err := w.fsmgr.Open(f)
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("file vanished before it could be archived", "path", f.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", f, err)
	}
	defer rc.Close()

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header for %s: %w", f, err)
	}

	var dst io.Writer = tw
	if progress != nil {
		dst = io.MultiWriter(tw, progress)
	}

	written, err := io.CopyN(dst, rc, hdr.Size)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("archiving %s: %w", f, err)
	}
	if written < hdr.Size {
		// The file shrank while being read; pad so the entry stays well-formed.
		w.logger.Warn("file changed while archiving", "path", f.String(),
			"expected", hdr.Size, "read", written)
		if _, err := io.CopyN(tw, zeroReader{}, hdr.Size-written); err != nil {
			return fmt.Errorf("padding %s: %w", f, err)
		}
	}
	return nil
}

// EntryName is the name a file is stored under inside an archive: the
// absolute path in slash form without its leading separator or volume.
func EntryName(absPath string) string {
	name := filepath.ToSlash(absPath)
	if vol := filepath.VolumeName(absPath); vol != "" {
		name = strings.TrimPrefix(name, filepath.ToSlash(vol))
	}
	return strings.TrimLeft(name, "/")
}

func totalSize(files []*zb.Path) int64 {
	var total int64
	for _, f := range files {
		total += f.Size()
	}
	return total
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

var _ zb.ArchiveWriter = (*Writer)(nil)
