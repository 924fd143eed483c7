package makaka

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reader parses an archive from a seekable byte stream. The header
// is read and validated once at open; entries are walked strictly in
// stream order, since each entry's offset depends on the variable
// lengths of all entries before it. Reading never mutates the
// stream, and List and Extract each restart from the first entry.
type Reader struct {
	r         io.ReadSeeker
	header    Header
	dataStart int64
	size      int64
}

// NewReader reads and validates the archive header from r, which
// must be positioned at the start of the archive.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}

	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, &FormatError{Msg: "read header", Err: err}
	}

	reader := &Reader{r: r, dataStart: start + HeaderSize, size: end}
	if err := reader.header.UnmarshalBinary(buf[:]); err != nil {
		return nil, err
	}

	// Every entry occupies at least its fixed fields, so a count
	// the stream cannot hold is rejected before any allocation.
	if int64(reader.header.EntryCount)*entryFixedSize > end-reader.dataStart {
		return nil, &FormatError{Msg: fmt.Sprintf("entry count %d exceeds stream size", reader.header.EntryCount)}
	}

	return reader, nil
}

// Header returns the archive header.
func (r *Reader) Header() Header {
	return r.header
}

// List returns the archive's entries in stored order. Payload bytes
// are skipped, never read or decoded, so listing costs seek time
// rather than decompression time.
func (r *Reader) List() ([]Entry, error) {
	remaining, err := r.rewind()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, r.header.EntryCount)
	for i := uint32(0); i < r.header.EntryCount; i++ {
		entry, err := r.readEntryHeader(i, &remaining)
		if err != nil {
			return nil, err
		}
		if _, err := r.r.Seek(int64(entry.CompressedSize), io.SeekCurrent); err != nil {
			return nil, &FormatError{Msg: fmt.Sprintf("skip payload of %s", entry.Name), Err: err}
		}
		remaining -= int64(entry.CompressedSize)
		entries = append(entries, entry)
	}
	return entries, nil
}

// extractConfig holds extraction options.
type extractConfig struct {
	progress func(Entry)
}

// ExtractOption configures extraction behavior.
type ExtractOption func(*extractConfig)

// WithProgress calls fn for each entry after its file has been
// written.
func WithProgress(fn func(Entry)) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}

// Extract materializes every entry under destRoot, creating parent
// directories as needed. Payloads are decoded with the archive's
// codec using each entry's original size as the expected length. On
// success the returned paths are in entry order. A file that fails
// mid-write is removed before returning, so no partial file is left
// behind.
func (r *Reader) Extract(destRoot string, opts ...ExtractOption) ([]string, error) {
	cfg := &extractConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	remaining, err := r.rewind()
	if err != nil {
		return nil, err
	}

	var written []string
	for i := uint32(0); i < r.header.EntryCount; i++ {
		entry, err := r.readEntryHeader(i, &remaining)
		if err != nil {
			return nil, err
		}

		payload := make([]byte, entry.CompressedSize)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return nil, &FormatError{Msg: fmt.Sprintf("read payload of %s", entry.Name), Err: err}
		}
		remaining -= int64(entry.CompressedSize)

		data, err := r.header.Codec.Decompress(payload, entry.OriginalSize)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.Name, err)
		}

		dest, err := resolvePath(destRoot, entry.Name)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, fmt.Errorf("create dir for %s: %w", entry.Name, err)
		}
		if err := writeEntryFile(dest, data); err != nil {
			return nil, fmt.Errorf("write %s: %w", entry.Name, err)
		}

		if cfg.progress != nil {
			cfg.progress(entry)
		}
		written = append(written, dest)
	}
	return written, nil
}

// rewind positions the stream at the first entry and returns the
// byte count from there to the end of the stream.
func (r *Reader) rewind() (int64, error) {
	if _, err := r.r.Seek(r.dataStart, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek: %w", err)
	}
	return r.size - r.dataStart, nil
}

// readEntryHeader reads one entry's fixed fields and name,
// validating every length against the bytes remaining in the stream
// before allocating for it.
func (r *Reader) readEntryHeader(index uint32, remaining *int64) (Entry, error) {
	if *remaining < entryFixedSize {
		return Entry{}, &FormatError{Msg: fmt.Sprintf("truncated entry %d: %d bytes remain", index, *remaining)}
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return Entry{}, &FormatError{Msg: fmt.Sprintf("read entry %d", index), Err: err}
	}
	*remaining -= 4

	nameLen := binary.LittleEndian.Uint32(lenBuf[:])
	if nameLen > MaxNameLength {
		return Entry{}, &FormatError{Msg: fmt.Sprintf("entry %d: name length %d exceeds limit %d", index, nameLen, MaxNameLength)}
	}
	if int64(nameLen)+16 > *remaining {
		return Entry{}, &FormatError{Msg: fmt.Sprintf("entry %d: name length %d exceeds remaining %d bytes", index, nameLen, *remaining)}
	}

	buf := make([]byte, int(nameLen)+16)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return Entry{}, &FormatError{Msg: fmt.Sprintf("read entry %d", index), Err: err}
	}
	*remaining -= int64(len(buf))

	entry := Entry{
		Name:           string(buf[:nameLen]),
		OriginalSize:   binary.LittleEndian.Uint64(buf[nameLen:]),
		CompressedSize: binary.LittleEndian.Uint64(buf[nameLen+8:]),
	}
	if entry.CompressedSize > uint64(*remaining) {
		return Entry{}, &FormatError{Msg: fmt.Sprintf("entry %s: payload size %d exceeds remaining %d bytes", entry.Name, entry.CompressedSize, *remaining)}
	}
	return entry, nil
}

// resolvePath joins an entry name to the destination root, rejecting
// names that would resolve outside it.
func resolvePath(destRoot, name string) (string, error) {
	if name == "" {
		return "", &FormatError{Msg: "empty entry name"}
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &FormatError{Msg: fmt.Sprintf("entry name escapes destination: %q", name)}
	}
	return filepath.Join(destRoot, clean), nil
}

// writeEntryFile writes data to path, removing the file again if any
// step fails.
func writeEntryFile(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
