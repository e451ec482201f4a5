package datadic

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/go-faker/faker/v4"
)

func setupField(t testing.TB, col *Column) *FieldPackInfo {
	t.Helper()
	fpi := new(FieldPackInfo)
	if err := fpi.setup(col, 0); err != nil {
		t.Fatalf("setup(%v) failed: %v", col, err)
	}
	return fpi
}

func packField(t testing.TB, fpi *FieldPackInfo, v any) []byte {
	t.Helper()
	b, err := fpi.Pack(nil, v)
	if err != nil {
		t.Fatalf("Pack(%v) failed: %v", v, err)
	}
	if len(b) > fpi.MaxImageLen {
		t.Fatalf("Pack(%v) = %d bytes, exceeds MaxImageLen %d", v, len(b), fpi.MaxImageLen)
	}
	return b
}

func unpackField(t testing.TB, fpi *FieldPackInfo, image, unpackInfo []byte) any {
	t.Helper()
	r, u := NewReader(image), NewReader(unpackInfo)
	v, err := fpi.Unpack(&r, &u)
	if err != nil {
		t.Fatalf("Unpack(%x) failed: %v", image, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Unpack(%x) left %d bytes", image, r.Remaining())
	}
	if u.Remaining() != 0 {
		t.Fatalf("Unpack(%x) left %d bytes of unpack info", image, u.Remaining())
	}

	r = NewReader(image)
	if err := fpi.Skip(&r); err != nil || r.Remaining() != 0 {
		t.Fatalf("Skip(%x) = %v with %d bytes left, wanted nil with none", image, err, r.Remaining())
	}
	return v
}

// checkAscending packs values (given in ascending SQL order) and verifies
// that the images sort the same way and decode back.
func checkAscending(t *testing.T, col *Column, values []any) {
	t.Helper()
	fpi := setupField(t, col)
	var prev []byte
	for i, v := range values {
		image := packField(t, fpi, v)
		if i > 0 && bytes.Compare(prev, image) >= 0 {
			t.Fatalf("%v: image of %v (%x) does not sort after image of %v (%x)", col, v, image, values[i-1], prev)
		}
		unpackInfo := fpi.MakeUnpackInfo(nil, v)
		if len(unpackInfo) > fpi.MaxUnpackLen {
			t.Fatalf("%v: unpack info of %v is %d bytes, exceeds %d", col, v, len(unpackInfo), fpi.MaxUnpackLen)
		}
		if got := unpackField(t, fpi, image, unpackInfo); !reflect.DeepEqual(got, v) {
			t.Fatalf("%v: Unpack(Pack(%#v)) = %#v", col, v, got)
		}
		prev = image
	}
}

func TestFieldCodec_Int(t *testing.T) {
	checkAscending(t, IntColumn("a", 1), []any{int64(-128), int64(-1), int64(0), int64(1), int64(127)})
	checkAscending(t, IntColumn("a", 2), []any{int64(-32768), int64(-300), int64(0), int64(255), int64(256), int64(32767)})
	checkAscending(t, IntColumn("a", 4), []any{int64(math.MinInt32), int64(-5), int64(0), int64(5), int64(1 << 20), int64(math.MaxInt32)})
	checkAscending(t, IntColumn("a", 8), []any{int64(math.MinInt64), int64(-1), int64(0), int64(math.MaxInt64)})
}

func TestFieldCodec_IntImage(t *testing.T) {
	fpi := setupField(t, IntColumn("id", 4))
	if got, want := packField(t, fpi, 5), []byte{0x80, 0, 0, 5}; !bytes.Equal(got, want) {
		t.Fatalf("Pack(5) = %x, wanted %x", got, want)
	}
	if got, want := packField(t, fpi, -1), []byte{0x7F, 0xFF, 0xFF, 0xFF}; !bytes.Equal(got, want) {
		t.Fatalf("Pack(-1) = %x, wanted %x", got, want)
	}
}

func TestFieldCodec_IntRange(t *testing.T) {
	fpi := setupField(t, IntColumn("a", 1))
	for _, v := range []any{128, -129, uint64(math.MaxUint64)} {
		if _, err := fpi.Pack(nil, v); err == nil {
			t.Errorf("Pack(%v) into int(1) succeeded, wanted error", v)
		}
	}
	if _, err := fpi.Pack(nil, "x"); !errors.Is(err, ErrValueType) {
		t.Errorf("Pack(string) = %v, wanted ErrValueType", err)
	}
}

func TestFieldCodec_Uint(t *testing.T) {
	checkAscending(t, UintColumn("a", 2), []any{uint64(0), uint64(1), uint64(256), uint64(65535)})
	checkAscending(t, UintColumn("a", 8), []any{uint64(0), uint64(1 << 40), uint64(math.MaxUint64)})

	fpi := setupField(t, UintColumn("a", 2))
	if _, err := fpi.Pack(nil, 65536); !errors.Is(err, ErrValueRange) {
		t.Errorf("Pack(65536) = %v, wanted ErrValueRange", err)
	}
	if _, err := fpi.Pack(nil, -1); !errors.Is(err, ErrValueType) {
		t.Errorf("Pack(-1) = %v, wanted ErrValueType", err)
	}
}

func TestFieldCodec_Double(t *testing.T) {
	checkAscending(t, DoubleColumn("d"), []any{
		math.Inf(-1), -math.MaxFloat64, -1.5, -math.SmallestNonzeroFloat64,
		0.0, math.SmallestNonzeroFloat64, 1e-300, 2.0, math.MaxFloat64, math.Inf(1),
	})

	fpi := setupField(t, DoubleColumn("d"))
	if neg, pos := packField(t, fpi, math.Copysign(0, -1)), packField(t, fpi, 0.0); !bytes.Equal(neg, pos) {
		t.Fatalf("Pack(-0) = %x, Pack(+0) = %x, wanted equal", neg, pos)
	}
	if _, err := fpi.Pack(nil, math.NaN()); !errors.Is(err, ErrValueRange) {
		t.Fatalf("Pack(NaN) = %v, wanted ErrValueRange", err)
	}
}

func TestFieldCodec_Binary(t *testing.T) {
	fpi := setupField(t, BinaryColumn("b", 4))
	if got, want := packField(t, fpi, []byte{1, 2}), []byte{1, 2, 0, 0}; !bytes.Equal(got, want) {
		t.Fatalf("Pack = %x, wanted %x", got, want)
	}
	if got := unpackField(t, fpi, []byte{1, 2, 0, 0}, nil); !reflect.DeepEqual(got, []byte{1, 2, 0, 0}) {
		t.Fatalf("Unpack = %x, wanted 01020000", got)
	}
	if _, err := fpi.Pack(nil, []byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrValueRange) {
		t.Fatalf("Pack(5 bytes) = %v, wanted ErrValueRange", err)
	}
}

func TestFieldCodec_VarBinary(t *testing.T) {
	checkAscending(t, VarBinaryColumn("v", 8), []any{
		[]byte{}, []byte{0}, []byte{0, 0}, []byte{0, 1}, []byte{1}, []byte{1, 0}, []byte{0xFF}, []byte{0xFF, 0xFF},
	})

	fpi := setupField(t, VarBinaryColumn("v", 8))
	if got, want := packField(t, fpi, []byte{'a', 0, 'b'}), []byte{'a', 0, 0xFF, 'b', 0, 1}; !bytes.Equal(got, want) {
		t.Fatalf("Pack = %x, wanted %x", got, want)
	}
}

func TestFieldCodec_VarBinaryCorrupt(t *testing.T) {
	fpi := setupField(t, VarBinaryColumn("v", 8))
	tests := []struct {
		name  string
		image []byte
	}{
		{"no terminator", []byte{'a', 'b'}},
		{"dangling escape", []byte{'a', 0}},
		{"bad escape", []byte{'a', 0, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.image)
			if _, err := fpi.Unpack(&r, nil); !IsDecodeError(err) {
				t.Fatalf("Unpack(%x) = %v, wanted a decode error", tt.image, err)
			}
			r = NewReader(tt.image)
			if err := fpi.Skip(&r); !IsDecodeError(err) {
				t.Fatalf("Skip(%x) = %v, wanted a decode error", tt.image, err)
			}
		})
	}
}

func TestFieldCodec_Nullable(t *testing.T) {
	fpi := setupField(t, IntColumn("a", 4).Null())
	null := packField(t, fpi, nil)
	if !bytes.Equal(null, []byte{0}) {
		t.Fatalf("Pack(NULL) = %x, wanted 00", null)
	}
	minValue := packField(t, fpi, math.MinInt32)
	if bytes.Compare(null, minValue) >= 0 {
		t.Fatalf("NULL (%x) does not sort before MinInt32 (%x)", null, minValue)
	}
	if fpi.MaxImageLen != 5 {
		t.Fatalf("MaxImageLen = %d, wanted 5", fpi.MaxImageLen)
	}
	if got := unpackField(t, fpi, null, nil); got != nil {
		t.Fatalf("Unpack(NULL) = %v, wanted nil", got)
	}

	r := NewReader([]byte{0x02, 0, 0, 0, 0})
	if _, err := fpi.Unpack(&r, nil); !IsDecodeError(err) {
		t.Fatalf("Unpack(bad indicator) = %v, wanted a decode error", err)
	}

	notNull := setupField(t, IntColumn("a", 4))
	if _, err := notNull.Pack(nil, nil); !errors.Is(err, ErrValueType) {
		t.Fatalf("Pack(NULL) into NOT NULL = %v, wanted ErrValueType", err)
	}
}

func TestFieldCodec_TextBinaryCollation(t *testing.T) {
	checkAscending(t, TextColumn("s", 10, CollationUTF8MB4Bin.Name), []any{"", "A", "B", "a", "ab", "b", "é"})

	fpi := setupField(t, TextColumn("s", 10, ""))
	if fpi.Collation != CollationUTF8MB4Bin || fpi.MaxUnpackLen != 0 {
		t.Fatalf("default collation = %v, MaxUnpackLen = %d, wanted utf8mb4_bin, 0", fpi.Collation.Name, fpi.MaxUnpackLen)
	}
	if got, want := packField(t, fpi, "ab"), []byte{'a', 'b', 0, 1}; !bytes.Equal(got, want) {
		t.Fatalf("Pack(ab) = %x, wanted %x", got, want)
	}
	if _, err := fpi.Pack(nil, strings.Repeat("x", 11)); !errors.Is(err, ErrValueRange) {
		t.Fatalf("Pack(11 chars) = %v, wanted ErrValueRange", err)
	}
	packField(t, fpi, strings.Repeat("é", 10))
}

func TestFieldCodec_TextCaseInsensitive(t *testing.T) {
	fpi := setupField(t, TextColumn("s", 20, CollationGeneralCI.Name))
	if fpi.MaxUnpackLen == 0 {
		t.Fatalf("MaxUnpackLen = 0, wanted unpack info for %s", fpi.Collation.Name)
	}

	lower, upper := packField(t, fpi, "ab"), packField(t, fpi, "AB")
	if !bytes.Equal(lower, upper) {
		t.Fatalf("Pack(ab) = %x, Pack(AB) = %x, wanted equal", lower, upper)
	}
	if b := packField(t, fpi, "b"); bytes.Compare(upper, b) >= 0 {
		t.Fatalf("Pack(AB) = %x does not sort before Pack(b) = %x", upper, b)
	}

	for _, s := range []string{"ab", "AB", "Ab"} {
		info := fpi.MakeUnpackInfo(nil, s)
		if got := unpackField(t, fpi, packField(t, fpi, s), info); got != s {
			t.Fatalf("Unpack = %q, wanted %q", got, s)
		}
	}

	r, u := NewReader(lower), NewReader(nil)
	if _, err := fpi.Unpack(&r, &u); !IsDecodeError(err) || !errors.Is(err, ErrMissingUnpackInfo) {
		t.Fatalf("Unpack without unpack info = %v, wanted ErrMissingUnpackInfo", err)
	}
}

func TestFieldCodec_TextAccentInsensitive(t *testing.T) {
	fpi := setupField(t, TextColumn("s", 20, Collation0900AICI.Name))
	if a, b := packField(t, fpi, "resume"), packField(t, fpi, "Résumé"); !bytes.Equal(a, b) {
		t.Fatalf("Pack(resume) = %x, Pack(Résumé) = %x, wanted equal", a, b)
	}

	cs := setupField(t, TextColumn("s", 20, Collation0900ASCS.Name))
	if a, b := packField(t, cs, "ab"), packField(t, cs, "AB"); bytes.Equal(a, b) {
		t.Fatalf("Pack(ab) = Pack(AB) = %x under %s, wanted different", a, cs.Collation.Name)
	}
}

func TestFieldCodec_TextLongestExpansion(t *testing.T) {
	for _, cl := range []*Collation{CollationGeneralCI, Collation0900AICI, Collation0900ASCS} {
		for _, nullable := range []bool{false, true} {
			col := TextColumn("s", 1, cl.Name)
			if nullable {
				col = col.Null()
			}
			packField(t, setupField(t, col), "\uFDFA")
		}
	}
}

func TestFieldCodec_TextSortKeyTooLong(t *testing.T) {
	fpi := setupField(t, TextColumn("s", 4, Collation0900ASCS.Name))
	fpi.MaxImageLen = 8
	b, err := fpi.Pack([]byte{0xAA}, "\uFDFA")
	if !errors.Is(err, ErrValueRange) {
		t.Fatalf("Pack(U+FDFA) = %v, wanted ErrValueRange", err)
	}
	if !bytes.Equal(b, []byte{0xAA}) {
		t.Fatalf("Pack(U+FDFA) left %x in the buffer", b)
	}
}

func TestFieldCodec_TextRandom(t *testing.T) {
	for _, cl := range []*Collation{CollationUTF8MB4Bin, CollationGeneralCI, Collation0900AICI} {
		fpi := setupField(t, TextColumn("s", 200, cl.Name).Null())
		words := make([]string, 50)
		images := make([][]byte, len(words))
		for i := range words {
			words[i] = faker.Word()
			images[i] = packField(t, fpi, words[i])
			info := fpi.MakeUnpackInfo(nil, words[i])
			if got := unpackField(t, fpi, images[i], info); got != words[i] {
				t.Fatalf("%s: Unpack = %q, wanted %q", cl.Name, got, words[i])
			}
		}
		if !cl.Binary {
			continue
		}
		slices.SortFunc(images, bytes.Compare)
		slices.Sort(words)
		for i := range words {
			if got := unpackField(t, fpi, images[i], nil); got != words[i] {
				t.Fatalf("%s: image #%d = %q, wanted %q", cl.Name, i, got, words[i])
			}
		}
	}
}

func TestFieldCodec_UnknownCollation(t *testing.T) {
	var fpi FieldPackInfo
	err := fpi.setup(TextColumn("s", 10, "klingon_ci"), 0)
	if !errors.Is(err, ErrUnknownCollation) {
		t.Fatalf("setup = %v, wanted ErrUnknownCollation", err)
	}
}
