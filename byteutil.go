package datadic

import (
	"encoding/binary"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	n := len(chunk)
	off, buf := grow(buf, n)
	copy(buf[off:], chunk)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.BigEndian.PutUint64(buf[off:], v)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	off, buf := grow(buf, 4)
	binary.BigEndian.PutUint32(buf[off:], v)
	return buf
}

func appendUvarint(buf []byte, v uint64) []byte {
	off, buf := grow(buf, binary.MaxVarintLen64)
	off += binary.PutUvarint(buf[off:], v)
	return buf[:off]
}

func appendVarbytes(buf []byte, v []byte) []byte {
	buf = appendUvarint(buf, uint64(len(v)))
	return appendRaw(buf, v)
}

// Reader is a cursor over an immutable byte slice that never reads past
// its end. Slices returned by Read alias the underlying buffer, so they are
// only valid as long as the buffer is.
type Reader struct {
	orig []byte
	buf  []byte
}

func NewReader(buf []byte) Reader {
	return Reader{buf, buf}
}

// Read returns the next n bytes and advances the cursor. If fewer than n
// bytes remain, it returns false and leaves the cursor where it was.
func (r *Reader) Read(n int) ([]byte, bool) {
	if n < 0 || len(r.buf) < n {
		return nil, false
	}
	v := r.buf[:n:n]
	r.buf = r.buf[n:]
	return v, true
}

func (r *Reader) ReadByte() (byte, error) {
	if len(r.buf) == 0 {
		return 0, ErrInsufficientData
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v, nil
}

func (r *Reader) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf)
	if n == 0 {
		return 0, ErrInsufficientData
	} else if n < 0 {
		return 0, dataErrf(r.orig, r.Offset(), nil, "invalid uvarint")
	}
	r.buf = r.buf[n:]
	return v, nil
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf)
}

// Offset returns the number of bytes consumed so far. Comparing offsets
// before and after a decode tells how many bytes it consumed.
func (r *Reader) Offset() int {
	return len(r.orig) - len(r.buf)
}

// Rest returns the unread bytes without consuming them.
func (r *Reader) Rest() []byte {
	return r.buf
}

// Consumed returns the bytes read since the given offset.
func (r *Reader) Consumed(since int) []byte {
	return r.orig[since:r.Offset()]
}
