// Package makaka implements the MAKAKA container format: a single
// binary archive holding an ordered sequence of named files, with
// every payload encoded by one archive-wide codec.
package makaka

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a MAKAKA archive. It is the little-endian byte
// order of the 32-bit constant 0x4D4B4B41.
var Magic = [4]byte{0x41, 0x4b, 0x4b, 0x4d} // "AKKM"

// Version is the format version emitted by writers, major in the
// high byte and minor in the low byte. Readers reject any other
// version.
const Version uint16 = 0x0100

// HeaderSize is the fixed binary size of an archive header.
const HeaderSize = 12 // 4 + 2 + 2 + 4 bytes

// FormatError reports a malformed or truncated archive stream.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Header represents the fixed-size header at the start of an archive.
type Header struct {
	Magic      [4]byte
	Version    uint16
	Codec      Codec
	EntryCount uint32
}

// NewHeader creates a header for an archive holding entryCount
// entries encoded with the given codec.
func NewHeader(codec Codec, entryCount uint32) *Header {
	return &Header{
		Magic:      Magic,
		Version:    Version,
		Codec:      codec,
		EntryCount: entryCount,
	}
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return &FormatError{Msg: fmt.Sprintf("invalid signature: expected %x, got %x", Magic, h.Magic)}
	}
	if h.Version != Version {
		return &FormatError{Msg: fmt.Sprintf("unsupported format version %d.%d", h.Version>>8, h.Version&0xff)}
	}
	if err := h.Codec.Valid(); err != nil {
		return err
	}
	return nil
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header to the given buffer.
// The buffer must be at least HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Codec))
	binary.LittleEndian.PutUint32(buf[8:12], h.EntryCount)
}

// UnmarshalBinary decodes and validates the header from binary format.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return &FormatError{Msg: fmt.Sprintf("header too short: need %d bytes, got %d", HeaderSize, len(data))}
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from the given buffer.
// Does not validate - use UnmarshalBinary for validation.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint16(data[4:6])
	h.Codec = Codec(binary.LittleEndian.Uint16(data[6:8]))
	h.EntryCount = binary.LittleEndian.Uint32(data[8:12])
}
