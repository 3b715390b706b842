// Package devmem provides the device memory surface the flag storage
// consumes: allocate, zero, free, and copy-back to host-visible memory.
//
// The Sim allocator stands in for real device memory. It tracks live
// allocations so teardown tests can assert that every block is released
// exactly once, and it supports one-shot fault injection so error paths
// (allocation failure, copy-back failure) can be exercised from tests.
package devmem

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrBadSize indicates an allocation request below one word.
	ErrBadSize = errors.New("devmem: allocation size must be at least one word")
	// ErrDoubleFree indicates a block was freed more than once.
	ErrDoubleFree = errors.New("devmem: block already freed")
	// ErrStaleBlock indicates a block that does not belong to a live allocation.
	ErrStaleBlock = errors.New("devmem: block does not belong to a live allocation")
)

// Block is a non-owning reference to one device allocation. Blocks are
// trivially copyable; their validity is bounded by the owning allocator's
// Free. Using a block after Free is reported as ErrStaleBlock.
type Block struct {
	id    uint64
	words []int64
}

// Words exposes the raw counter words backing the block. Concurrent writers
// must go through sync/atomic on individual words.
func (b Block) Words() []int64 {
	return b.words
}

// Len returns the number of words in the block.
func (b Block) Len() int {
	return len(b.words)
}

// Allocator is the device memory contract consumed by flag storage.
type Allocator interface {
	// Alloc obtains a block of the given word count. The block's contents
	// are unspecified until Zero is called.
	Alloc(words int) (Block, error)

	// Zero fills the block with zeroes.
	Zero(b Block) error

	// Free releases the block. Each block may be freed exactly once.
	Free(b Block) error

	// ReadBack copies the block's words into host-visible memory.
	ReadBack(b Block) ([]int64, error)
}

// Sim is a simulated device arena backed by host memory.
//
// All methods are safe for concurrent use. Individual words are written with
// atomic operations so parallel workers incrementing counters never lose
// updates, matching the fetch-add semantics of real device atomics.
type Sim struct {
	mu      sync.Mutex
	nextID  uint64
	live    map[uint64]Block
	allocErr error
	readErr  error
}

// NewSim creates an empty simulated arena.
func NewSim() *Sim {
	return &Sim{live: make(map[uint64]Block)}
}

// FailNextAlloc arms a one-shot failure for the next Alloc call.
func (s *Sim) FailNextAlloc(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocErr = err
}

// FailNextReadBack arms a one-shot failure for the next ReadBack call.
func (s *Sim) FailNextReadBack(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Live returns the number of outstanding allocations.
func (s *Sim) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Alloc obtains a block of the given word count.
func (s *Sim) Alloc(words int) (Block, error) {
	if words < 1 {
		return Block{}, fmt.Errorf("%w: %d", ErrBadSize, words)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.allocErr != nil {
		err := s.allocErr
		s.allocErr = nil
		return Block{}, err
	}

	s.nextID++
	b := Block{id: s.nextID, words: make([]int64, words)}
	s.live[b.id] = b
	return b, nil
}

// Zero fills the block with zeroes.
func (s *Sim) Zero(b Block) error {
	if err := s.checkLive(b); err != nil {
		return err
	}
	for i := range b.words {
		atomic.StoreInt64(&b.words[i], 0)
	}
	return nil
}

// Free releases the block. Freeing a block twice returns ErrDoubleFree.
func (s *Sim) Free(b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[b.id]; !ok {
		return fmt.Errorf("%w (block %d)", ErrDoubleFree, b.id)
	}
	delete(s.live, b.id)
	return nil
}

// ReadBack copies the block's words into a fresh host-side slice.
func (s *Sim) ReadBack(b Block) ([]int64, error) {
	s.mu.Lock()
	if s.readErr != nil {
		err := s.readErr
		s.readErr = nil
		s.mu.Unlock()
		return nil, err
	}
	_, ok := s.live[b.id]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w (block %d)", ErrStaleBlock, b.id)
	}

	out := make([]int64, len(b.words))
	for i := range b.words {
		out[i] = atomic.LoadInt64(&b.words[i])
	}
	return out, nil
}

func (s *Sim) checkLive(b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[b.id]; !ok {
		return fmt.Errorf("%w (block %d)", ErrStaleBlock, b.id)
	}
	return nil
}
