package datadic

import (
	"bytes"
	"slices"
	"sort"
	"sync"
)

// MemStore is a transient in-memory Store, intended for tests.
type MemStore struct {
	mu         sync.RWMutex
	partitions map[string]*memPartition
	closed     bool
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{partitions: make(map[string]*memPartition)}
}

type memPartition struct {
	items []memKV // sorted by key
}

type memKV struct {
	key   []byte
	value []byte
}

func (p *memPartition) find(key []byte) (idx int, ok bool) {
	items := p.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

func (p *memPartition) put(key, value []byte) {
	key = slices.Clone(key)
	value = slices.Clone(value)
	if value == nil {
		value = []byte{}
	}
	i, ok := p.find(key)
	if ok {
		p.items[i].value = value
		return
	}
	p.items = slices.Insert(p.items, i, memKV{key: key, value: value})
}

func (p *memPartition) delete(key []byte) {
	if i, ok := p.find(key); ok {
		p.items = slices.Delete(p.items, i, i+1)
	}
}

func (s *MemStore) partitionLocked(name string, create bool) *memPartition {
	p := s.partitions[name]
	if p == nil && create {
		p = &memPartition{}
		s.partitions[name] = p
	}
	return p
}

func (s *MemStore) Get(partition string, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	p := s.partitions[partition]
	if p == nil {
		return nil, nil
	}
	if i, ok := p.find(key); ok {
		return slices.Clone(p.items[i].value), nil
	}
	return nil, nil
}

func (s *MemStore) Put(partition string, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.partitionLocked(partition, true).put(key, value)
	return nil
}

func (s *MemStore) Delete(partition string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if p := s.partitions[partition]; p != nil {
		p.delete(key)
	}
	return nil
}

// Iterate runs f over a snapshot, so f may write to the store.
func (s *MemStore) Iterate(partition string, lower, upper []byte, f func(key, value []byte) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	var items []memKV
	if p := s.partitions[partition]; p != nil {
		i, _ := p.find(lower)
		for ; i < len(p.items); i++ {
			if upper != nil && bytes.Compare(p.items[i].key, upper) >= 0 {
				break
			}
			items = append(items, p.items[i])
		}
	}
	s.mu.RUnlock()

	for _, kv := range items {
		if err := f(kv.key, kv.value); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Write(b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	for _, op := range b.ops {
		switch op.kind {
		case batchPut:
			s.partitionLocked(op.partition, true).put(op.key, op.value)
		case batchDelete:
			if p := s.partitions[op.partition]; p != nil {
				p.delete(op.key)
			}
		}
	}
	return nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.partitions = nil
	return nil
}

// KeyCount returns the number of keys in the partition.
func (s *MemStore) KeyCount(partition string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.partitions[partition]; p != nil {
		return len(p.items)
	}
	return 0
}
