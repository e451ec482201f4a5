package datadic

import "sync"

// SequenceGenerator issues index numbers. Its performance is not a concern.
type SequenceGenerator struct {
	mu   sync.Mutex
	next uint32
}

func (sg *SequenceGenerator) Init(initial uint32) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.next = initial
}

// Next returns a number never returned before by this generator.
func (sg *SequenceGenerator) Next() (uint32, error) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	// The last number is kept free so that SupremumKey never wraps around.
	if sg.next == ^uint32(0) {
		return 0, ErrIndexNumbers
	}
	n := sg.next
	sg.next++
	return n, nil
}

// Advance makes sure Next never returns a number below n.
func (sg *SequenceGenerator) Advance(n uint32) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.next = max(sg.next, n)
}

// Peek returns the number Next would return.
func (sg *SequenceGenerator) Peek() uint32 {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return sg.next
}
