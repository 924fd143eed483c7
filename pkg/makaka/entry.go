package makaka

import "encoding/binary"

// Entry describes one packed file: its archive-relative name and the
// byte counts before and after compression. Entries are stored back
// to back in insertion order with no separators, so an entry's
// offset is only derivable by walking all preceding entries.
type Entry struct {
	Name           string
	OriginalSize   uint64
	CompressedSize uint64
}

// entryFixedSize is the binary size of an entry's fixed fields: the
// 32-bit name length prefix plus the two 64-bit sizes.
const entryFixedSize = 20 // 4 + 8 + 8 bytes

// MaxNameLength bounds the name length a reader accepts, so a
// corrupt length prefix cannot drive an oversized allocation.
const MaxNameLength = 4096

// encodeHeader returns the entry's fixed fields and name in binary
// format. The payload follows separately.
func (e *Entry) encodeHeader() []byte {
	buf := make([]byte, entryFixedSize+len(e.Name))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.Name)))
	n := 4 + copy(buf[4:], e.Name)
	binary.LittleEndian.PutUint64(buf[n:n+8], e.OriginalSize)
	binary.LittleEndian.PutUint64(buf[n+8:n+16], e.CompressedSize)
	return buf
}
