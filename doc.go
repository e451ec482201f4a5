/*
Package datadic implements the key encoding and data dictionary layer that
sits between a relational engine and an ordered key-value store.

It does two things:

1. Encodes index entries (typed, multi-column SQL values) into byte strings
whose bytes.Compare order matches SQL order, and decodes them back.

2. Keeps the data dictionary: which index numbers belong to which table,
plus per-table auto-increment counters, persisted in the store.

# Technical Details

**Partitions.**
We rely on named partitions of the key-value store (Bolt buckets, column
families). The dictionary lives in DictPartition; index data goes into the
partition named by each index (DefaultPartition unless configured).

**Index numbers.**
Every index gets a unique 32-bit number from a sequence. Numbers are never
reused, even if a table is dropped: the next unused number is persisted as a
high-water mark together with every table definition.

## Binary encoding

**Key**: index number (4 bytes, big-endian), then the image of each key part.

**Key part image**: for nullable columns, a NULL indicator byte first (0x00 for
NULL, after which nothing follows; 0x01 otherwise). Then:
  - signed int: big-endian, sign bit flipped, column width bytes;
  - unsigned int: big-endian, column width bytes;
  - double: IEEE 754 bits, all flipped for negatives, sign bit set otherwise;
  - binary(n): value zero-padded to n bytes;
  - varbinary, text: bytes (text: collation sort key), with 0x00 written as
    0x00 0xFF, terminated by 0x00 0x01.

Secondary index keys are followed by the primary key columns the index
doesn't contain, so they are unique and the primary key can be extracted.

**Unpack info**: for each key part whose image can't be decoded (text under
a non-binary collation), uvarint length and the original bytes. Stored next
to the key, e.g. as the value of a secondary index entry.

**Dictionary records** (in DictPartition):
 1. 0x01 + "db.table" → index count (4 bytes), index numbers (4 bytes each),
    auto-increment value (8 bytes), all big-endian.
 2. 0x02 + "db.table" → msgpack of TableSchema.
 3. 0x03 → next unused index number (4 bytes).
*/
package datadic
