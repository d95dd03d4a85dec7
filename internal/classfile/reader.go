package classfile

import (
	"encoding/binary"
	"fmt"

	"github.com/starford/anndex/internal/apperr"
)

// reader is a big-endian cursor over a byte slice. The first failure is
// sticky: later reads return zero values and callers check err at table
// boundaries. base is the absolute offset of data[0] in the class file so
// errors from attribute sub-readers point into the original blob.
type reader struct {
	data []byte
	off  int
	base int
	err  error
}

func newReader(data []byte, base int) *reader {
	return &reader{data: data, base: base}
}

func (r *reader) pos() int { return r.base + r.off }

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.remaining() < n {
		r.err = malformed(r.pos(), "truncated %s: need %d bytes, have %d", what, n, r.remaining())
		return false
	}
	return true
}

func (r *reader) u1(what string) uint8 {
	if !r.need(1, what) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) u2(what string) uint16 {
	if !r.need(2, what) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) u8(what string) uint64 {
	if !r.need(8, what) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

func (r *reader) bytes(n int, what string) []byte {
	if !r.need(n, what) {
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) skip(n int, what string) {
	if r.need(n, what) {
		r.off += n
	}
}

func malformed(off int, format string, args ...any) error {
	return fmt.Errorf("classfile: %w: offset %d: %s", apperr.ErrMalformedClassData, off, fmt.Sprintf(format, args...))
}
