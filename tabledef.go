package datadic

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// DictPartition is the store partition holding the data dictionary.
const DictPartition = "__system__"

// Dictionary key tags. Each record key is the tag byte followed by the
// qualified table name, except for the high-water mark.
const (
	ddlEntryIndexNumber    = 1 // index numbers + auto-increment value
	ddlEntrySchema         = 2 // msgpack TableSchema
	ddlEntryMaxIndexNumber = 3 // next unused index number

	// Index numbers below this are never issued.
	firstIndexNumber = ddlEntryIndexNumber + 1
)

func ddlKey(tag byte, name string) []byte {
	key := make([]byte, 0, 1+len(name))
	key = append(key, tag)
	return append(key, name...)
}

var maxIndexNumberKey = []byte{ddlEntryMaxIndexNumber}

// encodeDDLRecord produces {count:32} {index number:32}* {auto increment:64},
// all big-endian.
func encodeDDLRecord(buf []byte, numbers []uint32, autoIncr uint64) []byte {
	buf = ensureCapacity(buf, len(buf)+4+4*len(numbers)+8)
	buf = appendUint32(buf, uint32(len(numbers)))
	for _, n := range numbers {
		buf = appendUint32(buf, n)
	}
	return appendUint64(buf, autoIncr)
}

func decodeDDLRecord(data []byte) (numbers []uint32, autoIncr uint64, err error) {
	r := NewReader(data)
	b, ok := r.Read(4)
	if !ok {
		return nil, 0, dataErrf(data, 0, ErrInsufficientData, "truncated index count")
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(n)*4+8 != uint64(r.Remaining()) {
		return nil, 0, dataErrf(data, r.Offset(), nil, "record length %d does not match index count %d", len(data), n)
	}
	numbers = make([]uint32, n)
	for i := range numbers {
		b, _ = r.Read(4)
		numbers[i] = binary.BigEndian.Uint32(b)
	}
	b, _ = r.Read(8)
	return numbers, binary.BigEndian.Uint64(b), nil
}

/*
TableDef is the dictionary entry of one table: the key definitions of its
indexes (index 0 is the primary key) and its auto-increment counter.

There is only one TableDef per table name in a DictManager. Key definitions
are immutable and can be used without locking; the auto-increment counter
has its own lock.
*/
type TableDef struct {
	name    string
	schema  *TableSchema
	keyDefs []*KeyDef

	mu       sync.Mutex
	autoIncr uint64
}

// NewTableDef sets up key definitions for every index of scm, using the
// given index numbers in index order.
func NewTableDef(name string, scm *TableSchema, indexNumbers []uint32) (*TableDef, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}
	if len(indexNumbers) != len(scm.Indexes) {
		return nil, tableErrf(name, "", "", nil, "%d index numbers for %d indexes", len(indexNumbers), len(scm.Indexes))
	}
	for i, n := range indexNumbers {
		if err := validateIndexNumber(n); err != nil {
			return nil, tableErrf(name, scm.Indexes[i].Name, "", err, "cannot set up")
		}
		if slices.Contains(indexNumbers[:i], n) {
			return nil, tableErrf(name, scm.Indexes[i].Name, "", fmt.Errorf("%w: %d used twice", ErrIndexNumber, n), "cannot set up")
		}
	}
	tbl := &TableDef{
		name:     name,
		schema:   scm,
		keyDefs:  make([]*KeyDef, len(indexNumbers)),
		autoIncr: 1,
	}
	for i, n := range indexNumbers {
		kd := NewKeyDef(n, i)
		if err := kd.Setup(name, scm); err != nil {
			return nil, err
		}
		tbl.keyDefs[i] = kd
	}
	return tbl, nil
}

// validateIndexNumber rejects the numbers reserved for the dictionary and
// the last one, which SupremumKey needs.
func validateIndexNumber(n uint32) error {
	if n < firstIndexNumber || n == ^uint32(0) {
		return fmt.Errorf("%w: %d", ErrIndexNumber, n)
	}
	return nil
}

func (tbl *TableDef) maxIndexNumber() uint32 {
	var n uint32
	for _, kd := range tbl.keyDefs {
		n = max(n, kd.IndexNumber())
	}
	return n
}

// validateTableName requires the "dbname.tablename" form.
func validateTableName(name string) error {
	db, tbl, ok := strings.Cut(name, ".")
	if !ok || db == "" || tbl == "" {
		return fmt.Errorf("invalid table name %q, expected dbname.tablename", name)
	}
	return nil
}

func (tbl *TableDef) Name() string         { return tbl.name }
func (tbl *TableDef) Schema() *TableSchema { return tbl.schema }
func (tbl *TableDef) KeyCount() int        { return len(tbl.keyDefs) }
func (tbl *TableDef) KeyDef(i int) *KeyDef { return tbl.keyDefs[i] }
func (tbl *TableDef) PrimaryKey() *KeyDef  { return tbl.keyDefs[0] }

func (tbl *TableDef) KeyDefNamed(name string) *KeyDef {
	if i := tbl.schema.IndexNamed(name); i >= 0 {
		return tbl.keyDefs[i]
	}
	return nil
}

// KeyDefForKey returns the index a key belongs to, or nil.
func (tbl *TableDef) KeyDefForKey(key []byte) *KeyDef {
	for _, kd := range tbl.keyDefs {
		if kd.CoversKey(key) {
			return kd
		}
	}
	return nil
}

func (tbl *TableDef) IndexNumbers() []uint32 {
	result := make([]uint32, len(tbl.keyDefs))
	for i, kd := range tbl.keyDefs {
		result[i] = kd.indexNumber
	}
	return result
}

// NextAutoIncrement returns the current auto-increment value and advances it.
func (tbl *TableDef) NextAutoIncrement() uint64 {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	v := tbl.autoIncr
	tbl.autoIncr++
	return v
}

func (tbl *TableDef) AutoIncrement() uint64 {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return tbl.autoIncr
}

// UpdateAutoIncrement makes sure the next value issued is greater than used,
// e.g. after a row was inserted with an explicit value.
func (tbl *TableDef) UpdateAutoIncrement(used uint64) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	if used >= tbl.autoIncr {
		tbl.autoIncr = used + 1
	}
}

func (tbl *TableDef) ddlRecord() []byte {
	return encodeDDLRecord(nil, tbl.IndexNumbers(), tbl.AutoIncrement())
}

// Persist writes the index numbers and current auto-increment value to
// the dictionary partition.
func (tbl *TableDef) Persist(store Store) error {
	return store.Put(DictPartition, ddlKey(ddlEntryIndexNumber, tbl.name), tbl.ddlRecord())
}

// SchemaJSON renders the table schema as indented JSON.
func (tbl *TableDef) SchemaJSON() ([]byte, error) {
	return JSON.Encode(nil, tbl.schema)
}

// writeTo adds all dictionary records of the table to the batch.
func (tbl *TableDef) writeTo(b *Batch) error {
	rawSchema, err := schemaEncoding.Encode(nil, tbl.schema)
	if err != nil {
		return tableErrf(tbl.name, "", "", err, "")
	}
	b.Put(DictPartition, ddlKey(ddlEntryIndexNumber, tbl.name), tbl.ddlRecord())
	b.Put(DictPartition, ddlKey(ddlEntrySchema, tbl.name), rawSchema)
	return nil
}

func (tbl *TableDef) deleteFrom(b *Batch) {
	b.Delete(DictPartition, ddlKey(ddlEntryIndexNumber, tbl.name))
	b.Delete(DictPartition, ddlKey(ddlEntrySchema, tbl.name))
}

// renamed returns a copy of the table under a new name. Each key definition
// is copied and retagged with the new name; the schema is shared.
func (tbl *TableDef) renamed(name string) *TableDef {
	dup := &TableDef{
		name:     name,
		schema:   tbl.schema,
		keyDefs:  make([]*KeyDef, len(tbl.keyDefs)),
		autoIncr: tbl.AutoIncrement(),
	}
	for i, kd := range tbl.keyDefs {
		c := *kd
		c.table = name
		dup.keyDefs[i] = &c
	}
	return dup
}
