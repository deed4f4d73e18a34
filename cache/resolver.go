package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/golang/snappy"
	"github.com/janelia-flyem/lvv/lvv"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the encoding of a stored tile file, named by its file suffix.
type Compression string

const (
	Uncompressed Compression = ""
	Zstd         Compression = ".zst"
	Gzip         Compression = ".gz"
	Snappy       Compression = ".sz"
)

// Compressions lists the encodings tried, in order, when resolving a file.
var Compressions = []Compression{Uncompressed, Zstd, Gzip, Snappy}

// ParseCompression accepts a suffix or a name such as "zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return Uncompressed, nil
	case ".zst", "zst", "zstd":
		return Zstd, nil
	case ".gz", "gz", "gzip":
		return Gzip, nil
	case ".sz", "sz", "snappy":
		return Snappy, nil
	}
	return Uncompressed, fmt.Errorf("unknown compression %q", s)
}

var (
	zstdOnce    sync.Once
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
	zstdErr     error
)

func zstdCodec() (*zstd.Decoder, *zstd.Encoder, error) {
	zstdOnce.Do(func() {
		if zstdDecoder, zstdErr = zstd.NewReader(nil); zstdErr != nil {
			return
		}
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
	})
	return zstdDecoder, zstdEncoder, zstdErr
}

// Decode returns the uncompressed contents.
func (c Compression) Decode(data []byte) ([]byte, error) {
	switch c {
	case Uncompressed:
		return data, nil
	case Zstd:
		dec, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(data, nil)
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case Snappy:
		return snappy.Decode(nil, data)
	}
	return nil, fmt.Errorf("unknown compression %q", string(c))
}

// Encode returns compressed contents.
func (c Compression) Encode(data []byte) ([]byte, error) {
	switch c {
	case Uncompressed:
		return data, nil
	case Zstd:
		_, enc, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(data, nil), nil
	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Snappy:
		return snappy.Encode(nil, data), nil
	}
	return nil, fmt.Errorf("unknown compression %q", string(c))
}

// Resolve reads a file stored under its plain name or any compressed variant and returns
// the uncompressed contents along with the stored size.  Missing files return an error
// satisfying errors.Is(err, fs.ErrNotExist).
func Resolve(ctx context.Context, src *Source, key string) ([]byte, int, error) {
	for _, c := range Compressions {
		stored, err := src.ReadFile(ctx, key+string(c))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		data, err := c.Decode(stored)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: decompressing %s%s: %v", lvv.ErrDecode, key, c, err)
		}
		return data, len(stored), nil
	}
	return nil, 0, fmt.Errorf("%s: %w", key, fs.ErrNotExist)
}
