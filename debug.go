package datadic

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpTableHeaders = DumpFlags(1 << iota)
	DumpColumns
	DumpIndexes
	DumpKeyParts

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep = "  "
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump describes every loaded table, for debugging.
func (dm *DictManager) Dump(f DumpFlags) string {
	var buf strings.Builder
	for _, tbl := range dm.Tables() {
		tbl.dump(&buf, f)
	}
	return buf.String()
}

func (tbl *TableDef) Dump(f DumpFlags) string {
	var buf strings.Builder
	tbl.dump(&buf, f)
	return buf.String()
}

func (tbl *TableDef) dump(w *strings.Builder, f DumpFlags) {
	if f.Contains(DumpTableHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d indexes, auto_increment = %d)\n", tbl.name, len(tbl.keyDefs), tbl.AutoIncrement())
	}
	if f.Contains(DumpColumns) {
		if f.Contains(DumpTableHeaders) {
			fmt.Fprintln(w, dumpSep2)
		}
		for i, col := range tbl.schema.Columns {
			fmt.Fprintf(w, "%s%d: %s\n", indentStep, i, col)
		}
	}
	if f.Contains(DumpIndexes) {
		if f.Contains(DumpTableHeaders) {
			fmt.Fprintln(w, dumpSep2)
		}
		for _, kd := range tbl.keyDefs {
			fmt.Fprintf(w, "%s%s #%d prefix=%s partition=%s max_len=%d max_unpack=%d\n", indentStep, kd.name, kd.indexNumber, hexstr(kd.storageForm[:]), kd.partition, kd.maxLength, kd.maxUnpackLen)
			if !f.Contains(DumpKeyParts) {
				continue
			}
			for i := range kd.packInfo {
				fpi := &kd.packInfo[i]
				var ext string
				if i >= kd.userKeyParts {
					ext = " (pk extension)"
				}
				fmt.Fprintf(w, "%s%s%d: %s image<=%d unpack<=%d pk_part=%d%s\n", indentStep, indentStep, i, fpi.Column.Name, fpi.MaxImageLen, fpi.MaxUnpackLen, kd.pkPartNo[i], ext)
			}
		}
	}
}

// FormatRow renders the key columns of a row decoded by kd.
func (kd *KeyDef) FormatRow(row Row) string {
	var buf strings.Builder
	for i := range kd.packInfo {
		fpi := &kd.packInfo[i]
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(fpi.Column.Name)
		buf.WriteByte('=')
		switch v := row[fpi.FieldPos].(type) {
		case nil:
			buf.WriteString("NULL")
		case []byte:
			buf.WriteString("0x")
			buf.WriteString(hex.EncodeToString(v))
		case string:
			fmt.Fprintf(&buf, "%q", v)
		default:
			fmt.Fprint(&buf, v)
		}
	}
	return buf.String()
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}
