package makaka

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/DataDog/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the compression applied to every payload in an
// archive. The numeric values are format constants stored in the
// header (2 bytes) — changing them breaks archive compatibility.
type Codec uint16

const (
	// CodecNone stores payloads uncompressed.
	CodecNone Codec = 0

	// CodecZstd compresses payloads with zstd at maximum effort.
	// Best ratio, slowest pack times.
	CodecZstd Codec = 1

	// CodecLZ4 compresses payloads as LZ4 frames. Fast, with a
	// moderate ratio.
	CodecLZ4 Codec = 2
)

// CodecError reports a compression or decompression failure.
type CodecError struct {
	Codec Codec
	Err   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s codec: %v", e.Codec, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// String returns the codec's command-line name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(c))
	}
}

// ParseCodec parses a codec from its command-line name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown codec: %q", name)
	}
}

// Valid returns a nil error iff the codec is a known format value.
func (c Codec) Valid() error {
	switch c {
	case CodecNone, CodecZstd, CodecLZ4:
		return nil
	}
	return &FormatError{Msg: fmt.Sprintf("unknown codec value %d", uint16(c))}
}

// Compress encodes data with the codec. For CodecNone the input is
// returned unchanged, not copied.
func (c Codec) Compress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecZstd:
		return compressZstd(data)
	case CodecLZ4:
		return compressLZ4(data)
	default:
		return nil, &CodecError{Codec: c, Err: fmt.Errorf("unsupported codec value %d", uint16(c))}
	}
}

// Decompress decodes data produced by Compress. originalSize is the
// expected decoded length; a result of any other length is an error.
func (c Codec) Decompress(data []byte, originalSize uint64) ([]byte, error) {
	switch c {
	case CodecNone:
		if uint64(len(data)) != originalSize {
			return nil, &CodecError{Codec: c, Err: fmt.Errorf("stored %d bytes, expected %d", len(data), originalSize)}
		}
		return data, nil
	case CodecZstd:
		return decompressZstd(data, originalSize)
	case CodecLZ4:
		return decompressLZ4(data, originalSize)
	default:
		return nil, &CodecError{Codec: c, Err: fmt.Errorf("unsupported codec value %d", uint16(c))}
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed, err := zstd.CompressLevel(nil, data, zstd.BestCompression)
	if err != nil {
		return nil, &CodecError{Codec: CodecZstd, Err: err}
	}
	return compressed, nil
}

func decompressZstd(data []byte, originalSize uint64) ([]byte, error) {
	zr := zstd.NewReader(bytes.NewReader(data))
	defer zr.Close()
	return readDecoded(zr, originalSize, CodecZstd)
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, &CodecError{Codec: CodecLZ4, Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &CodecError{Codec: CodecLZ4, Err: err}
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte, originalSize uint64) ([]byte, error) {
	return readDecoded(lz4.NewReader(bytes.NewReader(data)), originalSize, CodecLZ4)
}

// decodePrealloc caps how much readDecoded reserves up front for a
// declared size it has not yet seen bytes for.
const decodePrealloc = 1 << 20

// readDecoded reads exactly originalSize bytes from a decompressing
// reader. The buffer grows only as decoded bytes actually arrive, so
// a forged size field cannot drive the allocation; the byte count is
// still verified in both directions.
func readDecoded(zr io.Reader, originalSize uint64, codec Codec) ([]byte, error) {
	if originalSize > math.MaxInt64 {
		return nil, &CodecError{Codec: codec, Err: fmt.Errorf("implausible decoded size %d", originalSize)}
	}

	var buf bytes.Buffer
	buf.Grow(int(min(originalSize, decodePrealloc)))
	n, err := io.Copy(&buf, io.LimitReader(zr, int64(originalSize)))
	if err != nil {
		return nil, &CodecError{Codec: codec, Err: err}
	}
	if n != int64(originalSize) {
		return nil, &CodecError{Codec: codec, Err: fmt.Errorf("decompressed to %d bytes, expected %d", n, originalSize)}
	}

	// The decoded stream must hold exactly originalSize bytes.
	var extra [1]byte
	m, err := zr.Read(extra[:])
	if err != nil && err != io.EOF {
		return nil, &CodecError{Codec: codec, Err: err}
	}
	if m != 0 {
		return nil, &CodecError{Codec: codec, Err: fmt.Errorf("decoded stream larger than expected %d bytes", originalSize)}
	}
	return buf.Bytes(), nil
}
