package archive

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is a streaming compression format.
type Codec interface {
	Name() string
	// Extension is the archive file extension, without the dot.
	Extension() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// NewCodec returns the codec called name. level is a zstd-style level in
// 1..22 that each codec maps onto its own range. threads is the number of
// compression goroutines, 0 meaning one per CPU.
func NewCodec(name string, level, threads int) (Codec, error) {
	level = min(max(level, 1), 22)
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	switch strings.ToLower(name) {
	case "zstd", "":
		return zstdCodec{level: level, threads: threads}, nil
	case "gzip":
		return gzipCodec{level: level}, nil
	case "lz4":
		return lz4Codec{level: level, threads: threads}, nil
	case "snappy":
		return snappyCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec: %q", name)
	}
}

// CodecForArchive picks the codec from an archive name such as
// "2024-Mar-05 13-45-123456.zstd.age".
func CodecForArchive(name string) (Codec, error) {
	name = strings.TrimSuffix(name, ".age")
	for _, c := range []Codec{zstdCodec{}, gzipCodec{}, lz4Codec{}, snappyCodec{}} {
		if strings.HasSuffix(name, "."+c.Extension()) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no codec for archive %q", name)
}

type zstdCodec struct {
	level   int
	threads int
}

func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) Extension() string { return "zstd" }

func (c zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
		zstd.WithEncoderConcurrency(max(c.threads, 1)))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return enc, nil
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return dec.IOReadCloser(), nil
}

type gzipCodec struct {
	level int
}

func (gzipCodec) Name() string      { return "gzip" }
func (gzipCodec) Extension() string { return "gz" }

func (c gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	gw, err := gzip.NewWriterLevel(w, min(max(c.level, gzip.BestSpeed), gzip.BestCompression))
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	return gw, nil
}

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return gr, nil
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

type lz4Codec struct {
	level   int
	threads int
}

func (lz4Codec) Name() string      { return "lz4" }
func (lz4Codec) Extension() string { return "lz4" }

func (c lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	lw := lz4.NewWriter(w)
	level := lz4Levels[min(max(c.level, 1), len(lz4Levels))-1]
	if err := lw.Apply(lz4.CompressionLevelOption(level), lz4.ConcurrencyOption(c.threads)); err != nil {
		return nil, fmt.Errorf("lz4 writer: %w", err)
	}
	return lw, nil
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// snappyCodec writes the framed snappy stream format. It has no levels.
type snappyCodec struct{}

func (snappyCodec) Name() string      { return "snappy" }
func (snappyCodec) Extension() string { return "sz" }

func (snappyCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(w), nil
}

func (snappyCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(r)), nil
}
