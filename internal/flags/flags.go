// Package flags implements the owned set of device-resident completion
// counters and its host-side exactly-once predicate.
//
// A FlagSet owns N counters in device memory. Parallel workers signal
// through the non-owning Flags writer view, which supports only an atomic
// increment; reading counters back is an owner-only operation. The split
// keeps the two views' operations disjoint: the writer view cannot read, and
// the owner is never copied into worker contexts.
package flags

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cpoole/graphwitness/internal/devmem"
)

// ErrClosed indicates the flag set's storage was already released.
var ErrClosed = errors.New("flags: flag set already closed")

// FlagSet owns n zero-initialized counters in device memory. Counters are
// monotonically non-decreasing for the set's lifetime: they are only ever
// incremented, never reset.
//
// A FlagSet must not be copied: outstanding writer views capture the storage
// identity, and a relocated copy would invalidate them silently. Construct
// with New and share the *FlagSet.
type FlagSet struct {
	mu     sync.Mutex
	alloc  devmem.Allocator
	block  devmem.Block
	n      int
	closed bool
}

// New allocates n zero-filled counters from the device allocator.
// Allocation failure is returned as-is; no partially constructed set
// survives.
func New(alloc devmem.Allocator, n int) (*FlagSet, error) {
	if n < 1 {
		return nil, fmt.Errorf("flags: counter count must be at least 1, got %d", n)
	}

	block, err := alloc.Alloc(n)
	if err != nil {
		return nil, fmt.Errorf("flags: allocating %d counters: %w", n, err)
	}
	if err := alloc.Zero(block); err != nil {
		_ = alloc.Free(block)
		return nil, fmt.Errorf("flags: zeroing counters: %w", err)
	}

	return &FlagSet{alloc: alloc, block: block, n: n}, nil
}

// Len returns the number of counters.
func (s *FlagSet) Len() int {
	return s.n
}

// Close releases the counter storage exactly once. All writer views become
// invalid. A second Close returns ErrClosed.
func (s *FlagSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.alloc.Free(s.block)
}

// Handle returns the non-owning writer view. The view is trivially copyable
// and safe to pass by value into any number of worker goroutines; it is valid
// only until the owning set is closed.
func (s *FlagSet) Handle() Flags {
	return Flags{words: s.block.Words()}
}

// AllSetOnce copies every counter back to the host and reports whether each
// one equals exactly 1: every expected signal fired, once, with no
// duplicates. A copy-back failure is returned as an error, never folded into
// a false result.
func (s *FlagSet) AllSetOnce() (bool, error) {
	vals, err := s.Counters()
	if err != nil {
		return false, err
	}
	for _, v := range vals {
		if v != 1 {
			return false, nil
		}
	}
	return true, nil
}

// AllUnset is the strict logical negation of AllSetOnce: true whenever at
// least one counter is 0 or greater than 1. It is deliberately not an
// "all counters are zero" check.
func (s *FlagSet) AllUnset() (bool, error) {
	ok, err := s.AllSetOnce()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Counters copies all counter values back to host memory.
func (s *FlagSet) Counters() ([]int64, error) {
	vals, err := s.alloc.ReadBack(s.block)
	if err != nil {
		return nil, fmt.Errorf("flags: copying counters to host: %w", err)
	}
	return vals, nil
}

// Flags is the non-owning writer view of a FlagSet. It supports exactly one
// operation: an atomic increment of a single counter.
type Flags struct {
	words []int64
}

// Set atomically increments the counter at index i. It is lock-free and safe
// under arbitrary concurrent invocation from any number of goroutines; there
// is no ordering relationship between counters beyond the atomicity of each
// increment. Out-of-range indices panic like any slice access.
func (f Flags) Set(i int) {
	atomic.AddInt64(&f.words[i], 1)
}
