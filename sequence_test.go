package datadic

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func TestSequenceGenerator(t *testing.T) {
	var sg SequenceGenerator
	sg.Init(firstIndexNumber)
	for want := uint32(firstIndexNumber); want < firstIndexNumber+3; want++ {
		n, err := sg.Next()
		if err != nil || n != want {
			t.Fatalf("Next = (%d, %v), wanted (%d, nil)", n, err, want)
		}
	}
	if sg.Peek() != firstIndexNumber+3 {
		t.Fatalf("Peek = %d, wanted %d", sg.Peek(), firstIndexNumber+3)
	}
}

func TestSequenceGenerator_Advance(t *testing.T) {
	var sg SequenceGenerator
	sg.Init(10)
	sg.Advance(5)
	if sg.Peek() != 10 {
		t.Fatalf("Peek after Advance(5) = %d, wanted 10", sg.Peek())
	}
	sg.Advance(20)
	if n, err := sg.Next(); err != nil || n != 20 {
		t.Fatalf("Next after Advance(20) = (%d, %v), wanted (20, nil)", n, err)
	}
}

func TestSequenceGenerator_Exhausted(t *testing.T) {
	var sg SequenceGenerator
	sg.Init(math.MaxUint32 - 1)
	if n, err := sg.Next(); err != nil || n != math.MaxUint32-1 {
		t.Fatalf("Next = (%d, %v), wanted (%d, nil)", n, err, uint32(math.MaxUint32-1))
	}
	if _, err := sg.Next(); !errors.Is(err, ErrIndexNumbers) {
		t.Fatalf("Next = %v, wanted ErrIndexNumbers", err)
	}
}

func TestSequenceGenerator_Concurrent(t *testing.T) {
	var sg SequenceGenerator
	sg.Init(100)

	const workers, perWorker = 8, 100
	results := make(chan uint32, workers*perWorker)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				n, err := sg.Next()
				if err != nil {
					t.Error(err)
					return
				}
				results <- n
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint32]bool)
	for n := range results {
		if seen[n] {
			t.Fatalf("number %d issued twice", n)
		}
		seen[n] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("issued %d numbers, wanted %d", len(seen), workers*perWorker)
	}
}
