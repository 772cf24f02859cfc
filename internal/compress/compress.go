package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a compression format.
type Codec uint8

const (
	// None indicates uncompressed data.
	None Codec = iota
	// Gzip indicates a gzip stream (RFC 1952).
	Gzip
	// Zstd indicates a zstd frame.
	Zstd
	// LZ4 indicates an LZ4 frame.
	LZ4
)

// ErrUnknownCodec is returned for codecs this package cannot produce.
var ErrUnknownCodec = errors.New("compress: unknown codec")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// String returns the string representation of the Codec.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
}

// Extension returns the conventional file name suffix of the codec, or ""
// for None.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Detect returns the codec of data from its magic bytes.
func Detect(data []byte) Codec {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		return Gzip
	case bytes.HasPrefix(data, zstdMagic):
		return Zstd
	case bytes.HasPrefix(data, lz4Magic):
		return LZ4
	default:
		return None
	}
}

// Decompress returns the decompressed contents of data, detecting the codec.
// Uncompressed input is returned as is.
func Decompress(data []byte) ([]byte, Codec, error) {
	codec := Detect(data)

	switch codec {
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, codec, fmt.Errorf("compress: gzip: %w", err)
		}
		defer zr.Close()

		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, codec, fmt.Errorf("compress: gzip: %w", err)
		}
		return out, codec, nil

	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, codec, fmt.Errorf("compress: zstd: %w", err)
		}
		return out, codec, nil

	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, codec, fmt.Errorf("compress: lz4: %w", err)
		}
		return out, codec, nil

	default:
		return data, None, nil
	}
}

// Compress encodes data with codec.
func Compress(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case None:
		return data, nil

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

	case Zstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil

	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}
