package makaka

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Writer assembles an archive. Entries are buffered in memory until
// Close so the header can carry the count of entries actually added.
type Writer struct {
	w        io.Writer
	codec    Codec
	entries  []Entry
	payloads [][]byte
	closed   bool
}

// NewWriter creates a writer that emits an archive to w, encoding
// every payload with the given codec.
func NewWriter(w io.Writer, codec Codec) (*Writer, error) {
	if err := codec.Valid(); err != nil {
		return nil, err
	}
	return &Writer{w: w, codec: codec}, nil
}

// Add compresses data and buffers it as the next entry. Entries are
// written in the order they were added.
func (w *Writer) Add(name string, data []byte) error {
	if w.closed {
		return fmt.Errorf("add %s: writer is closed", name)
	}
	if name == "" {
		return &FormatError{Msg: "empty entry name"}
	}
	if len(name) > MaxNameLength {
		return &FormatError{Msg: fmt.Sprintf("entry name too long: %d bytes (max %d)", len(name), MaxNameLength)}
	}

	payload, err := w.codec.Compress(data)
	if err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}

	w.entries = append(w.entries, Entry{
		Name:           name,
		OriginalSize:   uint64(len(data)),
		CompressedSize: uint64(len(payload)),
	})
	w.payloads = append(w.payloads, payload)
	return nil
}

// Entries returns a copy of the entries added so far, in insertion
// order.
func (w *Writer) Entries() []Entry {
	entries := make([]Entry, len(w.entries))
	copy(entries, w.entries)
	return entries
}

// Close emits the header followed by every buffered entry. The
// writer must not be used afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return fmt.Errorf("writer already closed")
	}
	w.closed = true

	header := NewHeader(w.codec, uint32(len(w.entries)))
	buf, err := header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, entry := range w.entries {
		if _, err := w.w.Write(entry.encodeHeader()); err != nil {
			return fmt.Errorf("write entry %s: %w", entry.Name, err)
		}
		if _, err := w.w.Write(w.payloads[i]); err != nil {
			return fmt.Errorf("write payload of %s: %w", entry.Name, err)
		}
	}
	return nil
}

// BuildResult reports what Build wrote and what it skipped.
type BuildResult struct {
	Entries []Entry
	Skipped []string
}

// Build packs the named files into an archive written to w, in the
// given order. Files that cannot be read are skipped with a warning
// on stderr and recorded in the result; the header's entry count
// reflects only the files that were read successfully. Any other
// failure aborts the build.
func Build(w io.Writer, paths []string, codec Codec) (*BuildResult, error) {
	aw, err := NewWriter(w, codec)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", p, err)
			result.Skipped = append(result.Skipped, p)
			continue
		}
		if err := aw.Add(entryName(p), data); err != nil {
			return nil, err
		}
	}

	if err := aw.Close(); err != nil {
		return nil, err
	}
	result.Entries = aw.Entries()
	return result, nil
}

// entryName converts an input path to its archive-relative name:
// slash-separated, with any volume name, leading separators and
// parent references stripped, so the name resolves inside the
// extraction root.
func entryName(p string) string {
	name := filepath.ToSlash(strings.TrimPrefix(p, filepath.VolumeName(p)))
	// Rooting the name before Clean resolves every ".." without
	// letting one escape.
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
