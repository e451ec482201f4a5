package datadic

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Options struct {
	// Logger defaults to zap.L().
	Logger *zap.Logger
}

/*
DictManager maps qualified table names ("dbname.tablename") to table
definitions, and persists the mapping in the dictionary partition of a
Store.

All lookups share one reader/writer lock; DDL takes it exclusively. A
mutation is made durable before the lock is released, so readers never see
a table definition that isn't stored yet.

Returned *TableDef values stay valid until the table is removed or renamed;
callers holding one across those must look the name up again.
*/
type DictManager struct {
	mu     sync.RWMutex
	tables map[string]*TableDef
	store  Store

	seq SequenceGenerator

	logger *zap.Logger
}

func NewDictManager(opt Options) *DictManager {
	dm := &DictManager{
		tables: make(map[string]*TableDef),
		logger: opt.Logger,
	}
	if dm.logger == nil {
		dm.logger = zap.L()
	}
	dm.seq.Init(firstIndexNumber)
	return dm
}

// Open creates a DictManager and loads the dictionary from store.
func Open(store Store, opt Options) (*DictManager, error) {
	dm := NewDictManager(opt)
	if err := dm.Load(store); err != nil {
		return nil, err
	}
	return dm, nil
}

// Load reads all table definitions from store, replacing whatever was
// loaded before, and binds the manager to store for subsequent writes.
func (dm *DictManager) Load(store Store) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	tables := make(map[string]*TableDef)
	owners := make(map[uint32]string)
	maxNumber := uint32(firstIndexNumber - 1)

	lower, upper := PrefixRange([]byte{ddlEntryIndexNumber})
	err := store.Iterate(DictPartition, lower, upper, func(key, value []byte) error {
		name := string(key[1:])
		numbers, autoIncr, err := decodeDDLRecord(value)
		if err != nil {
			metricsDecodeErrors.Inc()
			dm.logger.Error("corrupt dictionary record", zap.String("table", name), zap.Error(err))
			return tableErrf(name, "", "", err, "cannot load")
		}
		for _, n := range numbers {
			if err := validateIndexNumber(n); err != nil {
				return tableErrf(name, "", "", dataErrf(value, 0, err, "bad dictionary record"), "cannot load")
			}
			if owner, ok := owners[n]; ok {
				return tableErrf(name, "", "", dataErrf(value, 0, ErrIndexNumber, "index number %d also used by %s", n, owner), "cannot load")
			}
			owners[n] = name
			maxNumber = max(maxNumber, n)
		}
		tables[name] = &TableDef{name: name, autoIncr: autoIncr, keyDefs: make([]*KeyDef, len(numbers))}
		for i, n := range numbers {
			tables[name].keyDefs[i] = NewKeyDef(n, i)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Schemas are fetched after the scan; some stores don't allow reads
	// from inside Iterate.
	for name, tbl := range tables {
		rawSchema, err := store.Get(DictPartition, ddlKey(ddlEntrySchema, name))
		if err != nil {
			return err
		}
		if rawSchema == nil {
			dm.logger.Error("missing table schema", zap.String("table", name))
			return tableErrf(name, "", "", dataErrf(nil, 0, nil, "schema record missing"), "cannot load")
		}
		scm := new(TableSchema)
		if err := schemaEncoding.Decode(rawSchema, scm); err != nil {
			metricsDecodeErrors.Inc()
			dm.logger.Error("corrupt table schema", zap.String("table", name), zap.Error(err))
			return tableErrf(name, "", "", err, "cannot load")
		}
		if len(scm.Indexes) != len(tbl.keyDefs) {
			return tableErrf(name, "", "", dataErrf(rawSchema, 0, nil, "schema has %d indexes, dictionary has %d", len(scm.Indexes), len(tbl.keyDefs)), "cannot load")
		}
		tbl.schema = scm
		for _, kd := range tbl.keyDefs {
			if err := kd.Setup(name, scm); err != nil {
				return err
			}
		}
	}

	next := maxNumber + 1
	raw, err := store.Get(DictPartition, maxIndexNumberKey)
	if err != nil {
		return err
	}
	if raw != nil {
		if len(raw) != 4 {
			return dataErrf(raw, 0, nil, "invalid index number high-water mark")
		}
		next = max(next, binary.BigEndian.Uint32(raw))
	}

	dm.tables = tables
	dm.store = store
	dm.seq.Init(next)
	metricsLoad.Inc()
	dm.logger.Info("loaded data dictionary", zap.Int("tables", len(tables)), zap.Uint32("next_index_number", next))
	return nil
}

// Close releases all table definitions.
func (dm *DictManager) Close() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	clear(dm.tables)
	dm.store = nil
}

// Find returns the definition of the named table, or nil.
func (dm *DictManager) Find(name string) *TableDef {
	dm.mu.RLock()
	tbl := dm.tables[name]
	dm.mu.RUnlock()
	if tbl == nil {
		metricsFindMiss.Inc()
	} else {
		metricsFindHit.Inc()
	}
	return tbl
}

// Tables returns the definitions of all tables, sorted by name, as seen at
// one instant.
func (dm *DictManager) Tables() []*TableDef {
	dm.mu.RLock()
	result := make([]*TableDef, 0, len(dm.tables))
	for _, tbl := range dm.tables {
		result = append(result, tbl)
	}
	dm.mu.RUnlock()
	slices.SortFunc(result, func(a, b *TableDef) int {
		return strings.Compare(a.name, b.name)
	})
	return result
}

// NextNumber returns a fresh index number.
func (dm *DictManager) NextNumber() (uint32, error) {
	return dm.seq.Next()
}

// Put adds or replaces an in-memory entry without writing it. The table's
// index numbers must not belong to any other table, and are never issued
// by NextNumber afterwards.
func (dm *DictManager) Put(tbl *TableDef) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if err := dm.checkNumbersLocked(tbl); err != nil {
		return err
	}
	dm.putLocked(tbl)
	return nil
}

// checkNumbersLocked fails if another table owns one of tbl's index numbers.
func (dm *DictManager) checkNumbersLocked(tbl *TableDef) error {
	for name, other := range dm.tables {
		if name == tbl.name {
			continue
		}
		for _, kd := range tbl.keyDefs {
			if slices.Contains(other.IndexNumbers(), kd.IndexNumber()) {
				return tableErrf(tbl.name, kd.name, "", fmt.Errorf("%w: %d is used by %s", ErrIndexNumber, kd.IndexNumber(), name), "cannot add")
			}
		}
	}
	return nil
}

func (dm *DictManager) putLocked(tbl *TableDef) {
	dm.seq.Advance(tbl.maxIndexNumber() + 1)
	if old := dm.tables[tbl.name]; old != nil && old != tbl {
		dm.logger.Debug("replacing table definition", zap.String("table", tbl.name))
	}
	dm.tables[tbl.name] = tbl
	metricsPut.Inc()
}

// PutAndWrite stores tbl and then adds it to the in-memory map. If the
// write fails, the map is left unchanged.
func (dm *DictManager) PutAndWrite(tbl *TableDef) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.writeLocked(tbl)
}

func (dm *DictManager) writeLocked(tbl *TableDef) error {
	if dm.store == nil {
		return ErrNotLoaded
	}
	if err := dm.checkNumbersLocked(tbl); err != nil {
		return err
	}
	var b Batch
	if err := tbl.writeTo(&b); err != nil {
		return err
	}
	b.Put(DictPartition, maxIndexNumberKey, appendUint32(nil, max(dm.seq.Peek(), tbl.maxIndexNumber()+1)))
	if err := dm.store.Write(&b); err != nil {
		dm.logger.Error("failed to write table definition", zap.String("table", tbl.name), zap.Error(err))
		return err
	}
	metricsWrite.Inc()
	dm.putLocked(tbl)
	return nil
}

// CreateTable assigns fresh index numbers to every index of scm and
// persists the new table.
func (dm *DictManager) CreateTable(name string, scm *TableSchema) (*TableDef, error) {
	if err := validateTableName(name); err != nil {
		return nil, err
	}
	if err := scm.Validate(); err != nil {
		return nil, tableErrf(name, "", "", err, "invalid schema")
	}
	if dm.Find(name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	numbers := make([]uint32, len(scm.Indexes))
	for i := range numbers {
		n, err := dm.NextNumber()
		if err != nil {
			return nil, err
		}
		numbers[i] = n
	}
	tbl, err := NewTableDef(name, scm, numbers)
	if err != nil {
		return nil, err
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.tables[name] != nil {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	if err := dm.writeLocked(tbl); err != nil {
		return nil, err
	}
	dm.logger.Info("created table", zap.String("table", name), zap.Uint32s("index_numbers", numbers))
	return tbl, nil
}

// Remove deletes the table's dictionary records and its in-memory entry.
// The index numbers are not reused.
func (dm *DictManager) Remove(tbl *TableDef) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.store == nil {
		return ErrNotLoaded
	}
	if dm.tables[tbl.name] != tbl {
		return fmt.Errorf("%w: %s", ErrTableNotFound, tbl.name)
	}

	var b Batch
	tbl.deleteFrom(&b)
	if err := dm.store.Write(&b); err != nil {
		dm.logger.Error("failed to delete table definition", zap.String("table", tbl.name), zap.Error(err))
		return err
	}
	delete(dm.tables, tbl.name)
	metricsRemove.Inc()
	dm.logger.Info("removed table", zap.String("table", tbl.name))
	return nil
}

// Rename moves a table to a new name. The dictionary records are moved with
// one batch write, and the map is only updated once that succeeds.
func (dm *DictManager) Rename(from, to string) error {
	if err := validateTableName(to); err != nil {
		return err
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.store == nil {
		return ErrNotLoaded
	}
	old := dm.tables[from]
	if old == nil {
		return fmt.Errorf("%w: %s", ErrTableNotFound, from)
	}
	if dm.tables[to] != nil {
		return fmt.Errorf("%w: %s", ErrTableExists, to)
	}

	tbl := old.renamed(to)
	var b Batch
	old.deleteFrom(&b)
	if err := tbl.writeTo(&b); err != nil {
		return err
	}
	if err := dm.store.Write(&b); err != nil {
		dm.logger.Error("failed to rename table", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return err
	}
	delete(dm.tables, from)
	dm.tables[to] = tbl
	metricsRename.Inc()
	dm.logger.Info("renamed table", zap.String("from", from), zap.String("to", to))
	return nil
}
