package datadic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

const (
	nullByte    = 0x00
	notNullByte = 0x01

	escapeByte   = 0x00
	escaped00    = 0xFF
	escapedTerm  = 0x01
	escapeExtra  = 2 // terminator
	doubleLength = 8
)

// FieldPackInfo describes how one key part is packed into the mem-comparable
// form and recovered from it. It is immutable once set up.
type FieldPackInfo struct {
	Column *Column

	// FieldPos is the position of the column in a Row.
	FieldPos int

	// MaxImageLen is the maximum length of the mem-comparable image,
	// including the NULL indicator byte.
	MaxImageLen int

	// MaybeNull means a NULL indicator byte precedes the image.
	MaybeNull bool

	// MaxUnpackLen is the maximum number of unpack info bytes. Zero means
	// the image alone reconstructs the value.
	MaxUnpackLen int

	// Collation is set for text columns only.
	Collation *Collation

	codec fieldCodec
}

// fieldCodec is implemented by each supported column kind. pack/unpack/skip
// never see NULLs, FieldPackInfo handles the indicator byte.
type fieldCodec interface {
	pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error)
	makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte
	unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error)
	skip(fpi *FieldPackInfo, key *Reader) error
}

func (fpi *FieldPackInfo) setup(col *Column, pos int) error {
	if err := col.validate(); err != nil {
		return err
	}
	*fpi = FieldPackInfo{
		Column:    col,
		FieldPos:  pos,
		MaybeNull: col.Nullable,
	}
	var imageLen int
	switch col.Kind {
	case KindInt:
		fpi.codec = intCodec{}
		imageLen = col.Width
	case KindUint:
		fpi.codec = uintCodec{}
		imageLen = col.Width
	case KindDouble:
		fpi.codec = doubleCodec{}
		imageLen = doubleLength
	case KindBinary:
		fpi.codec = binaryCodec{}
		imageLen = col.Width
	case KindVarBinary:
		fpi.codec = varBinaryCodec{}
		imageLen = maxEscapedLen(col.Width)
	case KindText:
		cl, err := lookupCollation(col.Collation)
		if err != nil {
			return err
		}
		fpi.Collation = cl
		fpi.codec = textCodec{}
		imageLen = maxEscapedLen(cl.maxSortKeyLen(col.Width))
		if !cl.Binary {
			maxBytes := col.Width * utf8.UTFMax
			fpi.MaxUnpackLen = uvarintLen(uint64(maxBytes)) + maxBytes
		}
	}
	if fpi.MaybeNull {
		imageLen++
	}
	fpi.MaxImageLen = imageLen
	return nil
}

// Pack appends the mem-comparable image of v.
func (fpi *FieldPackInfo) Pack(buf []byte, v any) ([]byte, error) {
	if fpi.MaybeNull {
		if v == nil {
			return append(buf, nullByte), nil
		}
		buf = append(buf, notNullByte)
	} else if v == nil {
		return buf, ErrValueType
	}
	return fpi.codec.pack(fpi, buf, v)
}

// MakeUnpackInfo appends whatever Unpack needs beyond the image. Nothing
// is stored for NULLs.
func (fpi *FieldPackInfo) MakeUnpackInfo(buf []byte, v any) []byte {
	if v == nil || fpi.MaxUnpackLen == 0 {
		return buf
	}
	return fpi.codec.makeUnpackInfo(fpi, buf, v)
}

// Unpack decodes one value from the key, consuming unpack info if the
// field has any.
func (fpi *FieldPackInfo) Unpack(key *Reader, unpack *Reader) (any, error) {
	if fpi.MaybeNull {
		b, err := key.ReadByte()
		if err != nil {
			return nil, fpi.decodeErr(key, err)
		}
		switch b {
		case nullByte:
			return nil, nil
		case notNullByte:
		default:
			return nil, dataErrf(key.orig, key.Offset()-1, nil, "%s: invalid NULL indicator %#x", fpi.Column.Name, b)
		}
	}
	v, err := fpi.codec.unpack(fpi, key, unpack)
	if err != nil {
		return nil, fpi.decodeErr(key, err)
	}
	return v, nil
}

// Skip advances the key reader past this field's image.
func (fpi *FieldPackInfo) Skip(key *Reader) error {
	if fpi.MaybeNull {
		b, err := key.ReadByte()
		if err != nil {
			return fpi.decodeErr(key, err)
		}
		if b == nullByte {
			return nil
		} else if b != notNullByte {
			return dataErrf(key.orig, key.Offset()-1, nil, "%s: invalid NULL indicator %#x", fpi.Column.Name, b)
		}
	}
	if err := fpi.codec.skip(fpi, key); err != nil {
		return fpi.decodeErr(key, err)
	}
	return nil
}

func (fpi *FieldPackInfo) decodeErr(r *Reader, err error) error {
	var de *DataError
	if errors.As(err, &de) {
		return err
	}
	return dataErrf(r.orig, r.Offset(), err, "cannot decode %s", fpi.Column.Name)
}

func skipFixed(key *Reader, n int) error {
	if _, ok := key.Read(n); !ok {
		return ErrInsufficientData
	}
	return nil
}

type intCodec struct{}

func (intCodec) pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error) {
	n, ok := toInt64(v)
	if !ok {
		return buf, ErrValueType
	}
	w := fpi.Column.Width
	if w < 8 {
		bits := uint(w * 8)
		if n < -(1<<(bits-1)) || n > (1<<(bits-1))-1 {
			return buf, ErrValueRange
		}
	}
	u := uint64(n) ^ (1 << (w*8 - 1))
	return appendUintBE(buf, u, w), nil
}

func (intCodec) makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte {
	return buf
}

func (intCodec) unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error) {
	w := fpi.Column.Width
	b, ok := key.Read(w)
	if !ok {
		return nil, ErrInsufficientData
	}
	u := readUintBE(b) ^ (1 << (w*8 - 1))
	shift := uint(64 - w*8)
	return int64(u<<shift) >> shift, nil
}

func (intCodec) skip(fpi *FieldPackInfo, key *Reader) error {
	return skipFixed(key, fpi.Column.Width)
}

type uintCodec struct{}

func (uintCodec) pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error) {
	u, ok := toUint64(v)
	if !ok {
		return buf, ErrValueType
	}
	w := fpi.Column.Width
	if w < 8 && u >= 1<<(w*8) {
		return buf, ErrValueRange
	}
	return appendUintBE(buf, u, w), nil
}

func (uintCodec) makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte {
	return buf
}

func (uintCodec) unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error) {
	b, ok := key.Read(fpi.Column.Width)
	if !ok {
		return nil, ErrInsufficientData
	}
	return readUintBE(b), nil
}

func (uintCodec) skip(fpi *FieldPackInfo, key *Reader) error {
	return skipFixed(key, fpi.Column.Width)
}

type doubleCodec struct{}

func (doubleCodec) pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error) {
	var f float64
	switch v := v.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return buf, ErrValueType
	}
	if math.IsNaN(f) {
		return buf, ErrValueRange
	}
	var bits uint64
	if f != 0 { // -0 packs as +0
		bits = math.Float64bits(f)
	}
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return appendUint64(buf, bits), nil
}

func (doubleCodec) makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte {
	return buf
}

func (doubleCodec) unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error) {
	b, ok := key.Read(doubleLength)
	if !ok {
		return nil, ErrInsufficientData
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

func (doubleCodec) skip(fpi *FieldPackInfo, key *Reader) error {
	return skipFixed(key, doubleLength)
}

// binaryCodec packs BINARY(n): values shorter than n are padded with zero
// bytes, which is also how SQL stores them, so unpacking yields n bytes.
type binaryCodec struct{}

func (binaryCodec) pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error) {
	b, ok := toBytes(v)
	if !ok {
		return buf, ErrValueType
	}
	w := fpi.Column.Width
	if len(b) > w {
		return buf, ErrValueRange
	}
	off, buf := grow(buf, w)
	n := copy(buf[off:], b)
	clear(buf[off+n:])
	return buf, nil
}

func (binaryCodec) makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte {
	return buf
}

func (binaryCodec) unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error) {
	b, ok := key.Read(fpi.Column.Width)
	if !ok {
		return nil, ErrInsufficientData
	}
	return bytes.Clone(b), nil
}

func (binaryCodec) skip(fpi *FieldPackInfo, key *Reader) error {
	return skipFixed(key, fpi.Column.Width)
}

type varBinaryCodec struct{}

func (varBinaryCodec) pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error) {
	b, ok := toBytes(v)
	if !ok {
		return buf, ErrValueType
	}
	if len(b) > fpi.Column.Width {
		return buf, ErrValueRange
	}
	return appendEscaped(buf, b), nil
}

func (varBinaryCodec) makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte {
	return buf
}

func (varBinaryCodec) unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error) {
	return readEscaped(key, make([]byte, 0, 16))
}

func (varBinaryCodec) skip(fpi *FieldPackInfo, key *Reader) error {
	return skipEscaped(key)
}

// textCodec packs the collation sort key. For binary collations the sort
// key is the value itself; otherwise the original bytes go to unpack info.
type textCodec struct{}

func (textCodec) pack(fpi *FieldPackInfo, buf []byte, v any) ([]byte, error) {
	s, ok := toString(v)
	if !ok {
		return buf, ErrValueType
	}
	if utf8.RuneCountInString(s) > fpi.Column.Width {
		return buf, ErrValueRange
	}
	if fpi.Collation.Binary {
		return appendEscapedString(buf, s), nil
	}
	var scratch [64]byte
	start := len(buf)
	buf = appendEscaped(buf, fpi.Collation.AppendSortKey(scratch[:0], s))
	limit := fpi.MaxImageLen
	if fpi.MaybeNull {
		limit--
	}
	if len(buf)-start > limit {
		return buf[:start], ErrValueRange
	}
	return buf, nil
}

func (textCodec) makeUnpackInfo(fpi *FieldPackInfo, buf []byte, v any) []byte {
	b, _ := toBytes(v)
	return appendVarbytes(buf, b)
}

func (textCodec) unpack(fpi *FieldPackInfo, key *Reader, unpack *Reader) (any, error) {
	if fpi.Collation.Binary {
		b, err := readEscaped(key, make([]byte, 0, 16))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	if err := skipEscaped(key); err != nil {
		return nil, err
	}
	if unpack == nil || unpack.Remaining() == 0 {
		return nil, dataErrf(key.orig, key.Offset(), ErrMissingUnpackInfo, "%s", fpi.Column.Name)
	}
	n, err := unpack.ReadUvarint()
	if err != nil {
		return nil, dataErrf(unpack.orig, unpack.Offset(), err, "%s: bad unpack info", fpi.Column.Name)
	}
	if n > uint64(fpi.MaxUnpackLen) {
		return nil, dataErrf(unpack.orig, unpack.Offset(), nil, "%s: unpack info length %d exceeds %d", fpi.Column.Name, n, fpi.MaxUnpackLen)
	}
	b, ok := unpack.Read(int(n))
	if !ok {
		return nil, dataErrf(unpack.orig, unpack.Offset(), ErrInsufficientData, "%s: truncated unpack info", fpi.Column.Name)
	}
	return string(b), nil
}

func (textCodec) skip(fpi *FieldPackInfo, key *Reader) error {
	return skipEscaped(key)
}

func maxEscapedLen(n int) int {
	return 2*n + escapeExtra
}

func appendEscaped(buf []byte, v []byte) []byte {
	for {
		i := bytes.IndexByte(v, escapeByte)
		if i < 0 {
			break
		}
		buf = append(buf, v[:i+1]...)
		buf = append(buf, escaped00)
		v = v[i+1:]
	}
	buf = append(buf, v...)
	return append(buf, escapeByte, escapedTerm)
}

func appendEscapedString(buf []byte, s string) []byte {
	for {
		i := indexByteString(s, escapeByte)
		if i < 0 {
			break
		}
		buf = append(buf, s[:i+1]...)
		buf = append(buf, escaped00)
		s = s[i+1:]
	}
	buf = append(buf, s...)
	return append(buf, escapeByte, escapedTerm)
}

func indexByteString(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func readEscaped(key *Reader, out []byte) ([]byte, error) {
	for {
		rest := key.Rest()
		i := bytes.IndexByte(rest, escapeByte)
		if i < 0 || i+1 >= len(rest) {
			return nil, ErrInsufficientData
		}
		out = append(out, rest[:i]...)
		esc := rest[i+1]
		key.Read(i + 2)
		switch esc {
		case escaped00:
			out = append(out, 0)
		case escapedTerm:
			return out, nil
		default:
			return nil, dataErrf(key.orig, key.Offset()-1, nil, "invalid escape byte %#x", esc)
		}
	}
}

func skipEscaped(key *Reader) error {
	for {
		rest := key.Rest()
		i := bytes.IndexByte(rest, escapeByte)
		if i < 0 || i+1 >= len(rest) {
			return ErrInsufficientData
		}
		esc := rest[i+1]
		key.Read(i + 2)
		switch esc {
		case escaped00:
		case escapedTerm:
			return nil
		default:
			return dataErrf(key.orig, key.Offset()-1, nil, "invalid escape byte %#x", esc)
		}
	}
}

func appendUintBE(buf []byte, u uint64, w int) []byte {
	off, buf := grow(buf, w)
	for i := w - 1; i >= 0; i-- {
		buf[off+i] = byte(u)
		u >>= 8
	}
	return buf
}

func readUintBE(b []byte) uint64 {
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return u
}

func uvarintLen(v uint64) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], v)
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func toUint64(v any) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	default:
		n, ok := toInt64(v)
		if !ok || n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
}

func toBytes(v any) ([]byte, bool) {
	switch v := v.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

func toString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}
