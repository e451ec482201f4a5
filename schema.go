package datadic

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnKind selects how a column is packed into a mem-comparable key.
type ColumnKind uint8

const (
	KindInt       ColumnKind = iota + 1 // signed integer, Width bytes
	KindUint                            // unsigned integer, Width bytes
	KindDouble                          // IEEE 754 float64
	KindBinary                          // fixed-width bytes, zero padded to Width
	KindVarBinary                       // up to Width bytes
	KindText                            // up to Width characters under Collation
)

var kindNames = map[ColumnKind]string{
	KindInt:       "int",
	KindUint:      "uint",
	KindDouble:    "double",
	KindBinary:    "binary",
	KindVarBinary: "varbinary",
	KindText:      "text",
}

func (k ColumnKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k ColumnKind) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, k.String()), nil
}

const DefaultPartition = "default"

type Column struct {
	Name      string     `msgpack:"n" json:"name"`
	Kind      ColumnKind `msgpack:"k" json:"kind"`
	Width     int        `msgpack:"w,omitempty" json:"width,omitempty"`
	Nullable  bool       `msgpack:"null,omitempty" json:"nullable,omitempty"`
	Collation string     `msgpack:"c,omitempty" json:"collation,omitempty"`
}

func (col *Column) String() string {
	var buf strings.Builder
	buf.WriteString(col.Name)
	buf.WriteByte(' ')
	buf.WriteString(col.Kind.String())
	if col.Width != 0 && col.Kind != KindDouble {
		fmt.Fprintf(&buf, "(%d)", col.Width)
	}
	if col.Collation != "" {
		buf.WriteString(" collate ")
		buf.WriteString(col.Collation)
	}
	if !col.Nullable {
		buf.WriteString(" not null")
	}
	return buf.String()
}

func (col *Column) validate() error {
	switch col.Kind {
	case KindInt, KindUint:
		switch col.Width {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("column %s: invalid integer width %d", col.Name, col.Width)
		}
	case KindDouble:
	case KindBinary, KindVarBinary, KindText:
		if col.Width <= 0 {
			return fmt.Errorf("column %s: invalid width %d", col.Name, col.Width)
		}
	default:
		return fmt.Errorf("column %s: invalid kind %v", col.Name, col.Kind)
	}
	if col.Kind == KindText {
		if _, err := lookupCollation(col.Collation); err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
	}
	return nil
}

type IndexSchema struct {
	Name      string   `msgpack:"n" json:"name"`
	Columns   []string `msgpack:"c" json:"columns"`
	Partition string   `msgpack:"p,omitempty" json:"partition,omitempty"`
}

// TableSchema describes the columns and indexes of a table. Indexes[0] is
// the primary key. The package never modifies a schema it is given.
type TableSchema struct {
	Columns []*Column      `msgpack:"c" json:"columns"`
	Indexes []*IndexSchema `msgpack:"i" json:"indexes"`
}

// ColumnPos returns the row position of the named column, or -1.
func (scm *TableSchema) ColumnPos(name string) int {
	for i, col := range scm.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

func (scm *TableSchema) IndexNamed(name string) int {
	for i, idx := range scm.Indexes {
		if strings.EqualFold(idx.Name, name) {
			return i
		}
	}
	return -1
}

// Validate checks the schema is usable for building key definitions.
func (scm *TableSchema) Validate() error {
	if len(scm.Indexes) == 0 {
		return ErrNoPrimaryKey
	}
	columns := make(map[string]bool, len(scm.Columns))
	for _, col := range scm.Columns {
		lower := strings.ToLower(col.Name)
		if columns[lower] {
			return fmt.Errorf("duplicate column name %q", col.Name)
		}
		columns[lower] = true
		if err := col.validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(scm.Indexes))
	for i, idx := range scm.Indexes {
		lower := strings.ToLower(idx.Name)
		if seen[lower] {
			return fmt.Errorf("duplicate index name %q", idx.Name)
		}
		seen[lower] = true
		if len(idx.Columns) == 0 {
			return fmt.Errorf("index %s has no columns", idx.Name)
		}
		for _, name := range idx.Columns {
			pos := scm.ColumnPos(name)
			if pos < 0 {
				return fmt.Errorf("index %s: %w %q", idx.Name, ErrUnknownColumn, name)
			}
			if i == 0 && scm.Columns[pos].Nullable {
				return fmt.Errorf("primary key column %s must not be nullable", name)
			}
		}
	}
	return nil
}

// NewRow returns an all-NULL row sized for this schema.
func (scm *TableSchema) NewRow() Row {
	return make(Row, len(scm.Columns))
}

// Row holds one value per table column, in column order. A nil element is
// SQL NULL. Decoded values are int64, uint64, float64, []byte or string
// depending on the column kind.
type Row []any

func IntColumn(name string, width int) *Column {
	return &Column{Name: name, Kind: KindInt, Width: width}
}

func UintColumn(name string, width int) *Column {
	return &Column{Name: name, Kind: KindUint, Width: width}
}

func DoubleColumn(name string) *Column {
	return &Column{Name: name, Kind: KindDouble}
}

func BinaryColumn(name string, width int) *Column {
	return &Column{Name: name, Kind: KindBinary, Width: width}
}

func VarBinaryColumn(name string, maxLen int) *Column {
	return &Column{Name: name, Kind: KindVarBinary, Width: maxLen}
}

func TextColumn(name string, maxChars int, collation string) *Column {
	return &Column{Name: name, Kind: KindText, Width: maxChars, Collation: collation}
}

// Null marks the column nullable and returns it.
func (col *Column) Null() *Column {
	col.Nullable = true
	return col
}

func Index(name string, columns ...string) *IndexSchema {
	return &IndexSchema{Name: name, Columns: columns}
}

func (idx *IndexSchema) InPartition(partition string) *IndexSchema {
	idx.Partition = partition
	return idx
}
