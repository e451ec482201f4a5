package datadic

import (
	"bytes"
	"fmt"
	"slices"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

type BoltOptions struct {
	IsTesting bool
	MmapSize  int
	Timeout   time.Duration
}

// BoltStore keeps each partition in a top-level Bolt bucket. Buckets are
// created on first write.
type BoltStore struct {
	bdb *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

func OpenBolt(path string, opt BoltOptions) (*BoltStore, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("datadic: %w", err)
	}
	return NewBoltStore(bdb), nil
}

// NewBoltStore wraps an already open Bolt database.
func NewBoltStore(bdb *bbolt.DB) *BoltStore {
	return &BoltStore{bdb: bdb}
}

func (s *BoltStore) Bolt() *bbolt.DB {
	return s.bdb
}

func (s *BoltStore) Get(partition string, key []byte) ([]byte, error) {
	var result []byte
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(partition))
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			result = slices.Clone(v)
		}
		return nil
	})
	return result, err
}

func (s *BoltStore) Put(partition string, key, value []byte) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(unsafeBytesFromString(partition))
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
}

func (s *BoltStore) Delete(partition string, key []byte) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(partition))
		if b == nil {
			return nil
		}
		return b.Delete(key)
	})
}

func (s *BoltStore) Iterate(partition string, lower, upper []byte, f func(key, value []byte) error) error {
	return s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(unsafeBytesFromString(partition))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if lower == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(lower)
		}
		for ; k != nil; k, v = c.Next() {
			if upper != nil && bytes.Compare(k, upper) >= 0 {
				break
			}
			if err := f(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Write(batch *Batch) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		for _, op := range batch.ops {
			name := unsafeBytesFromString(op.partition)
			switch op.kind {
			case batchPut:
				b, err := btx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				if err := b.Put(op.key, op.value); err != nil {
					return err
				}
			case batchDelete:
				if b := btx.Bucket(name); b != nil {
					if err := b.Delete(op.key); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
