package datadic

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// IndexNumberSize is the length of the index number prefix of every key.
const IndexNumberSize = 4

// MaxKeyParts is the number of key parts a KeyPartMap can address.
const MaxKeyParts = 64

// KeyPartMap has bit i set if key part i is present in a lookup tuple.
// Only prefixes are valid: bits 0..n-1 set, nothing else.
type KeyPartMap uint64

// KeyPartPrefix returns the map selecting the first n key parts.
func KeyPartPrefix(n int) KeyPartMap {
	if n >= MaxKeyParts {
		return ^KeyPartMap(0)
	}
	return KeyPartMap(1)<<n - 1
}

// Count returns the number of key parts selected, or an error if the map
// has gaps.
func (m KeyPartMap) Count() (int, error) {
	if m&(m+1) != 0 {
		return 0, fmt.Errorf("%w: %b", ErrInvalidKeyPartMap, uint64(m))
	}
	return bits.OnesCount64(uint64(m)), nil
}

// PutIndexNumber stores n as the 4-byte big-endian key prefix.
func PutIndexNumber(dst []byte, n uint32) {
	binary.BigEndian.PutUint32(dst, n)
}

// IndexNumberOf returns the index number a key belongs to.
func IndexNumberOf(key []byte) (uint32, bool) {
	if len(key) < IndexNumberSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(key), true
}

/*
KeyDef packs and unpacks the keys of one index.

Keys are in "mem-comparable" form: comparing two keys with bytes.Compare gives
the same result as comparing the SQL values they encode. A key is the 4-byte
big-endian index number followed by the images of each key part, in order.

Secondary indexes are extended with the primary key columns they don't
already contain, so every secondary key identifies exactly one row, and the
primary key can be cut out of it (see PrimaryKeyTuple).

Some column images can't be turned back into values (collation sort keys).
For those, PackRecord also produces "unpack info", stored next to the key,
which UnpackRecord consumes.

A KeyDef is immutable after Setup and safe for concurrent use.
*/
type KeyDef struct {
	indexNumber uint32
	storageForm [IndexNumberSize]byte
	keyNo       int

	table     string
	name      string
	partition string

	packInfo     []FieldPackInfo
	userKeyParts int

	// pkPartNo[i] is the primary key part that key part i holds, or -1.
	pkPartNo    []int
	nPKKeyParts int

	maxLength    int
	maxUnpackLen int
}

func NewKeyDef(indexNumber uint32, keyNo int) *KeyDef {
	kd := &KeyDef{
		indexNumber: indexNumber,
		keyNo:       keyNo,
	}
	PutIndexNumber(kd.storageForm[:], indexNumber)
	return kd
}

// Setup builds the field descriptors of index number keyNo of the table.
// It must complete before the KeyDef is shared.
func (kd *KeyDef) Setup(table string, scm *TableSchema) error {
	if err := scm.Validate(); err != nil {
		return tableErrf(table, "", "", err, "invalid schema")
	}
	if kd.keyNo < 0 || kd.keyNo >= len(scm.Indexes) {
		return tableErrf(table, "", "", nil, "no index #%d", kd.keyNo)
	}
	idx := scm.Indexes[kd.keyNo]
	kd.table = table
	kd.name = idx.Name
	kd.partition = idx.Partition
	if kd.partition == "" {
		kd.partition = DefaultPartition
	}

	pkCols := columnPositions(scm, scm.Indexes[0].Columns)
	cols := columnPositions(scm, idx.Columns)
	kd.userKeyParts = len(cols)
	if kd.keyNo != 0 {
		for _, pos := range pkCols {
			if indexOf(cols, pos) < 0 {
				cols = append(cols, pos)
			}
		}
	}
	if len(cols) > MaxKeyParts {
		return tableErrf(table, idx.Name, "", nil, "too many key parts: %d", len(cols))
	}

	kd.nPKKeyParts = len(pkCols)
	kd.packInfo = make([]FieldPackInfo, len(cols))
	kd.pkPartNo = make([]int, len(cols))
	kd.maxLength = IndexNumberSize
	kd.maxUnpackLen = 0
	for i, pos := range cols {
		fpi := &kd.packInfo[i]
		if err := fpi.setup(scm.Columns[pos], pos); err != nil {
			return tableErrf(table, idx.Name, scm.Columns[pos].Name, err, "")
		}
		kd.maxLength += fpi.MaxImageLen
		kd.maxUnpackLen += fpi.MaxUnpackLen
		kd.pkPartNo[i] = indexOf(pkCols, pos)
	}
	return nil
}

func columnPositions(scm *TableSchema, names []string) []int {
	result := make([]int, len(names))
	for i, name := range names {
		result[i] = scm.ColumnPos(name)
	}
	return result
}

func indexOf(a []int, v int) int {
	for i, x := range a {
		if x == v {
			return i
		}
	}
	return -1
}

func (kd *KeyDef) IndexNumber() uint32 { return kd.indexNumber }
func (kd *KeyDef) KeyNo() int          { return kd.keyNo }
func (kd *KeyDef) Name() string        { return kd.name }
func (kd *KeyDef) Partition() string   { return kd.partition }
func (kd *KeyDef) IsPrimary() bool     { return kd.keyNo == 0 }

// KeyPartCount includes the primary key columns appended to secondary indexes.
func (kd *KeyDef) KeyPartCount() int { return len(kd.packInfo) }

// UserKeyPartCount is the number of columns the index was declared with.
func (kd *KeyDef) UserKeyPartCount() int { return kd.userKeyParts }

func (kd *KeyDef) PackInfo(part int) *FieldPackInfo { return &kd.packInfo[part] }

// PKPartNo returns the primary key part stored in key part i, or -1.
func (kd *KeyDef) PKPartNo(part int) int { return kd.pkPartNo[part] }

// MaxStorageFmtLength bounds the length of any key of this index.
func (kd *KeyDef) MaxStorageFmtLength() int { return kd.maxLength }

// MaxUnpackInfoLength bounds the length of unpack info of this index.
func (kd *KeyDef) MaxUnpackInfoLength() int { return kd.maxUnpackLen }

func (kd *KeyDef) String() string {
	return fmt.Sprintf("%s.%s#%d", kd.table, kd.name, kd.indexNumber)
}

func (kd *KeyDef) fieldErr(part int, err error, msg string) error {
	return tableErrf(kd.table, kd.name, kd.packInfo[part].Column.Name, err, "%s", msg)
}

// PackIndexTuple appends a (possibly partial) key built from lookup values,
// one per key part selected by m. Used to build range scan bounds.
func (kd *KeyDef) PackIndexTuple(buf []byte, lookup []any, m KeyPartMap) ([]byte, error) {
	n, err := m.Count()
	if err != nil {
		return buf, err
	}
	if n > len(kd.packInfo) {
		return buf, fmt.Errorf("%w: %d parts selected, index %s has %d", ErrInvalidKeyPartMap, n, kd.name, len(kd.packInfo))
	}
	if len(lookup) != n {
		return buf, fmt.Errorf("%w: %d parts selected, %d values given", ErrInvalidKeyPartMap, n, len(lookup))
	}
	start := len(buf)
	buf = append(buf, kd.storageForm[:]...)
	for i := 0; i < n; i++ {
		buf, err = kd.packInfo[i].Pack(buf, lookup[i])
		if err != nil {
			return buf[:start], kd.fieldErr(i, err, "cannot pack lookup value")
		}
	}
	return buf, nil
}

// PackRecord appends the key of row to buf and its unpack info to
// unpackBuf. If nParts > 0, only the first nParts key parts are packed.
func (kd *KeyDef) PackRecord(buf, unpackBuf []byte, row Row, nParts int) (key, unpack []byte, err error) {
	if nParts <= 0 || nParts > len(kd.packInfo) {
		nParts = len(kd.packInfo)
	}
	start, unpackStart := len(buf), len(unpackBuf)
	buf = append(buf, kd.storageForm[:]...)
	for i := 0; i < nParts; i++ {
		fpi := &kd.packInfo[i]
		if fpi.FieldPos >= len(row) {
			return buf[:start], unpackBuf[:unpackStart], kd.fieldErr(i, ErrUnknownColumn, fmt.Sprintf("row has only %d columns", len(row)))
		}
		v := row[fpi.FieldPos]
		buf, err = fpi.Pack(buf, v)
		if err != nil {
			return buf[:start], unpackBuf[:unpackStart], kd.fieldErr(i, err, "cannot pack")
		}
		unpackBuf = fpi.MakeUnpackInfo(unpackBuf, v)
	}
	return buf, unpackBuf, nil
}

// UnpackRecord decodes key (and unpack info, if any) into the key columns
// of row. On error, row may be partially filled.
func (kd *KeyDef) UnpackRecord(row Row, key, unpackInfo []byte) error {
	err := kd.unpackRecord(row, key, unpackInfo)
	if err != nil && IsDecodeError(err) {
		metricsDecodeErrors.Inc()
	}
	return err
}

func (kd *KeyDef) unpackRecord(row Row, key, unpackInfo []byte) error {
	if !kd.CoversKey(key) {
		return tableErrf(kd.table, kd.name, "", dataErrf(key, 0, nil, "wrong index number"), "cannot unpack")
	}
	r := NewReader(key)
	r.Read(IndexNumberSize)
	u := NewReader(unpackInfo)
	for i := range kd.packInfo {
		fpi := &kd.packInfo[i]
		if fpi.FieldPos >= len(row) {
			return kd.fieldErr(i, ErrUnknownColumn, fmt.Sprintf("row has only %d columns", len(row)))
		}
		v, err := fpi.Unpack(&r, &u)
		if err != nil {
			return kd.fieldErr(i, err, "cannot unpack")
		}
		row[fpi.FieldPos] = v
	}
	if r.Remaining() != 0 {
		return tableErrf(kd.table, kd.name, "", dataErrf(key, r.Offset(), nil, "%d trailing bytes", r.Remaining()), "cannot unpack")
	}
	if u.Remaining() != 0 {
		return tableErrf(kd.table, kd.name, "", dataErrf(unpackInfo, u.Offset(), nil, "%d trailing unpack info bytes", u.Remaining()), "cannot unpack")
	}
	return nil
}

// Successor turns key into the smallest key that is greater than key and
// every key it prefixes: it increments the last byte that is not 0xFF and
// drops the bytes after it. The update happens in place and the shortened
// slice is returned. If key is empty or all 0xFF, there is no such key and
// ok is false.
func Successor(key []byte) (succ []byte, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] != 0xFF {
			key[i]++
			return key[:i+1], true
		}
	}
	return key, false
}

// Successor is the same as the package-level Successor.
func (kd *KeyDef) Successor(key []byte) ([]byte, bool) {
	return Successor(key)
}

// InfimumKey appends the smallest key of this index.
func (kd *KeyDef) InfimumKey(buf []byte) []byte {
	return append(buf, kd.storageForm[:]...)
}

// SupremumKey appends the smallest key of the next index number, which
// is greater than every key of this index.
func (kd *KeyDef) SupremumKey(buf []byte) []byte {
	return appendUint32(buf, kd.indexNumber+1)
}

// CmpFullKeys compares two keys of this index over their common length, so
// a lookup key equals every key it is a prefix of. Use KeysEqual to check
// whether two keys are identical.
func (kd *KeyDef) CmpFullKeys(a, b []byte) int {
	n := min(len(a), len(b))
	return bytes.Compare(a[:n], b[:n])
}

// KeysEqual reports whether a and b are the same full key.
func (kd *KeyDef) KeysEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}

// CoversKey reports whether key belongs to this index.
func (kd *KeyDef) CoversKey(key []byte) bool {
	return len(key) >= IndexNumberSize && bytes.Equal(key[:IndexNumberSize], kd.storageForm[:])
}

// SplitKey returns the image of each key part, in order. The images alias
// key.
func (kd *KeyDef) SplitKey(key []byte) ([][]byte, error) {
	if !kd.CoversKey(key) {
		return nil, tableErrf(kd.table, kd.name, "", dataErrf(key, 0, nil, "wrong index number"), "cannot split key")
	}
	r := NewReader(key)
	r.Read(IndexNumberSize)
	parts := make([][]byte, 0, len(kd.packInfo))
	for i := range kd.packInfo {
		off := r.Offset()
		if err := kd.packInfo[i].Skip(&r); err != nil {
			metricsDecodeErrors.Inc()
			return parts, kd.fieldErr(i, err, "cannot skip")
		}
		parts = append(parts, r.Consumed(off))
	}
	return parts, nil
}

// PrimaryKeyTuple appends the primary key (of index pk) embedded into
// secondary key key. The column images are copied as is, no decoding
// happens.
func (kd *KeyDef) PrimaryKeyTuple(buf []byte, pk *KeyDef, key []byte) ([]byte, error) {
	out, err := kd.primaryKeyTuple(buf, pk, key)
	if err != nil && IsDecodeError(err) {
		metricsDecodeErrors.Inc()
	}
	return out, err
}

func (kd *KeyDef) primaryKeyTuple(buf []byte, pk *KeyDef, key []byte) ([]byte, error) {
	if kd.IsPrimary() || !pk.IsPrimary() || len(pk.packInfo) != kd.nPKKeyParts {
		return buf, tableErrf(kd.table, kd.name, "", nil, "cannot extract primary key %s from %s", pk, kd)
	}
	if !kd.CoversKey(key) {
		return buf, tableErrf(kd.table, kd.name, "", dataErrf(key, 0, nil, "wrong index number"), "cannot extract primary key")
	}

	var startsBuf, endsBuf [16]int
	starts, ends := startsBuf[:0], endsBuf[:0]
	for range kd.nPKKeyParts {
		starts = append(starts, -1)
		ends = append(ends, -1)
	}

	r := NewReader(key)
	r.Read(IndexNumberSize)
	for i := range kd.packInfo {
		off := r.Offset()
		if err := kd.packInfo[i].Skip(&r); err != nil {
			return buf, kd.fieldErr(i, err, "cannot skip")
		}
		if p := kd.pkPartNo[i]; p >= 0 {
			starts[p], ends[p] = off, r.Offset()
		}
	}
	if r.Remaining() != 0 {
		return buf, tableErrf(kd.table, kd.name, "", dataErrf(key, r.Offset(), nil, "%d trailing bytes", r.Remaining()), "cannot extract primary key")
	}

	start := len(buf)
	buf = append(buf, pk.storageForm[:]...)
	for p := range starts {
		if starts[p] < 0 {
			return buf[:start], tableErrf(kd.table, kd.name, "", nil, "primary key part %d is not in the index", p)
		}
		buf = append(buf, key[starts[p]:ends[p]]...)
	}
	return buf, nil
}
