package datadic

import "errors"

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("store closed")

// Store is an ordered key-value store with named partitions (Bolt buckets,
// column families, etc.). Errors it returns are passed to callers as is.
type Store interface {
	// Get returns the value of key, or nil if there is none. The result is
	// owned by the caller.
	Get(partition string, key []byte) ([]byte, error)

	Put(partition string, key, value []byte) error

	// Delete removes key; deleting a missing key is not an error.
	Delete(partition string, key []byte) error

	// Iterate calls f for each key in [lower, upper) in ascending order.
	// A nil upper means no upper bound. Keys and values passed to f are only
	// valid until f returns. Iteration stops at the first error from f.
	Iterate(partition string, lower, upper []byte, f func(key, value []byte) error) error

	// Write applies all operations of the batch atomically and durably.
	Write(b *Batch) error

	Close() error
}

type batchOpKind uint8

const (
	batchPut batchOpKind = iota
	batchDelete
)

type batchOp struct {
	kind      batchOpKind
	partition string
	key       []byte
	value     []byte
}

// Batch collects writes to be applied atomically by Store.Write.
type Batch struct {
	ops []batchOp
}

func (b *Batch) Put(partition string, key, value []byte) {
	b.ops = append(b.ops, batchOp{batchPut, partition, key, value})
}

func (b *Batch) Delete(partition string, key []byte) {
	b.ops = append(b.ops, batchOp{batchDelete, partition, key, nil})
}

func (b *Batch) Len() int {
	return len(b.ops)
}

func (b *Batch) Reset() {
	clear(b.ops)
	b.ops = b.ops[:0]
}

// PrefixRange returns the bounds covering all keys starting with prefix.
func PrefixRange(prefix []byte) (lower, upper []byte) {
	upper, ok := Successor(append([]byte(nil), prefix...))
	if !ok {
		upper = nil
	}
	return prefix, upper
}
