package datadic

import (
	"fmt"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collation turns text into mem-comparable sort keys. Binary collations
// use the UTF-8 bytes as is; the others derive keys with x/text/collate,
// which discards case and/or accents and therefore needs unpack info to
// get the original value back.
type Collation struct {
	Name   string
	ID     int
	Binary bool

	pool sync.Pool
}

// Bounds of x/text sort keys. The worst single character is U+FDFA, which
// expands to 18 collation elements (94 key bytes with all levels). Sort keys
// longer than the bound are rejected when packing.
const (
	collationKeyBytesPerChar = 96
	collationKeyOverhead     = 8
)

type collator struct {
	c   *collate.Collator
	buf collate.Buffer
}

func newCollation(name string, id int, opts ...collate.Option) *Collation {
	cl := &Collation{Name: name, ID: id}
	if opts == nil {
		cl.Binary = true
		return cl
	}
	cl.pool.New = func() any {
		return &collator{c: collate.New(language.Und, opts...)}
	}
	return cl
}

var (
	CollationBinary      = newCollation("binary", 63)
	CollationUTF8MB4Bin  = newCollation("utf8mb4_bin", 46)
	CollationGeneralCI   = newCollation("utf8mb4_general_ci", 45, collate.IgnoreCase)
	Collation0900AICI    = newCollation("utf8mb4_0900_ai_ci", 255, collate.IgnoreCase, collate.IgnoreDiacritics)
	Collation0900ASCS    = newCollation("utf8mb4_0900_as_cs", 278, collate.Force)
	DefaultCollationName = CollationUTF8MB4Bin.Name
)

var collationsByName = map[string]*Collation{
	CollationBinary.Name:     CollationBinary,
	CollationUTF8MB4Bin.Name: CollationUTF8MB4Bin,
	CollationGeneralCI.Name:  CollationGeneralCI,
	Collation0900AICI.Name:   Collation0900AICI,
	Collation0900ASCS.Name:   Collation0900ASCS,
}

func lookupCollation(name string) (*Collation, error) {
	if name == "" {
		name = DefaultCollationName
	}
	cl := collationsByName[name]
	if cl == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownCollation, name)
	}
	return cl, nil
}

// AppendSortKey appends the mem-comparable sort key of s, not yet escaped.
func (cl *Collation) AppendSortKey(buf []byte, s string) []byte {
	if cl.Binary {
		return append(buf, s...)
	}
	c := cl.pool.Get().(*collator)
	key := c.c.KeyFromString(&c.buf, s)
	buf = appendRaw(buf, key)
	c.buf.Reset()
	cl.pool.Put(c)
	return buf
}

// maxSortKeyLen bounds the sort key of a value of up to maxChars characters.
func (cl *Collation) maxSortKeyLen(maxChars int) int {
	if cl.Binary {
		return maxChars * 4
	}
	return maxChars*collationKeyBytesPerChar + collationKeyOverhead
}
