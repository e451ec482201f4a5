package datadic

import (
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	dm := newTestDict(t, NewMemStore())
	if _, err := dm.CreateTable("db.t1", t1Schema()); err != nil {
		t.Fatal(err)
	}

	s := dm.Dump(DumpAll)
	for _, want := range []string{
		"db.t1 (2 indexes, auto_increment = 1)",
		"0: id int(4) not null",
		"1: name text(20)",
		"PRIMARY #2 prefix=00000002 partition=default",
		"idx1 #3 prefix=00000003",
		"1: id image<=4 unpack<=0 pk_part=0 (pk extension)",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("Dump does not contain %q:\n%s", want, s)
		}
	}

	s = dm.Find("db.t1").Dump(DumpTableHeaders)
	if strings.Contains(s, "PRIMARY") || !strings.Contains(s, "db.t1") {
		t.Errorf("Dump(DumpTableHeaders) = %q, wanted header only", s)
	}
}

func TestKeyDef_FormatRow(t *testing.T) {
	scm := &TableSchema{
		Columns: []*Column{IntColumn("id", 4), VarBinaryColumn("b", 4).Null(), TextColumn("s", 4, "").Null()},
		Indexes: []*IndexSchema{Index("PRIMARY", "id"), Index("bs", "b", "s")},
	}
	tbl, err := NewTableDef("db.t", scm, []uint32{10, 11})
	if err != nil {
		t.Fatal(err)
	}
	got := tbl.KeyDef(1).FormatRow(Row{int64(7), []byte{0xAB}, nil})
	if want := `b=0xab, s=NULL, id=7`; got != want {
		t.Fatalf("FormatRow = %q, wanted %q", got, want)
	}
	got = tbl.KeyDef(1).FormatRow(Row{int64(7), nil, "x"})
	if want := `b=NULL, s="x", id=7`; got != want {
		t.Fatalf("FormatRow = %q, wanted %q", got, want)
	}
}

func TestHexstr(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAA, 0xBB}); got != "aabb" {
		t.Fatalf("hexstr = %q, wanted aabb", got)
	}
}
