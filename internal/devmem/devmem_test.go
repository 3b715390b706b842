package devmem

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSim_AllocZeroReadBack(t *testing.T) {
	sim := NewSim()

	b, err := sim.Alloc(4)
	require.NoError(t, err)
	require.NoError(t, sim.Zero(b))
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, 1, sim.Live())

	atomic.AddInt64(&b.Words()[2], 3)

	vals, err := sim.ReadBack(b)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 3, 0}, vals)

	require.NoError(t, sim.Free(b))
	assert.Equal(t, 0, sim.Live())
}

func TestSim_BadSize(t *testing.T) {
	sim := NewSim()
	_, err := sim.Alloc(0)
	assert.ErrorIs(t, err, ErrBadSize)
	_, err = sim.Alloc(-3)
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestSim_DoubleFree(t *testing.T) {
	sim := NewSim()
	b, err := sim.Alloc(1)
	require.NoError(t, err)

	require.NoError(t, sim.Free(b))
	assert.ErrorIs(t, sim.Free(b), ErrDoubleFree)
}

func TestSim_StaleBlock(t *testing.T) {
	sim := NewSim()
	b, err := sim.Alloc(2)
	require.NoError(t, err)
	require.NoError(t, sim.Free(b))

	assert.ErrorIs(t, sim.Zero(b), ErrStaleBlock)
	_, err = sim.ReadBack(b)
	assert.ErrorIs(t, err, ErrStaleBlock)
}

func TestSim_FailNextAlloc(t *testing.T) {
	sim := NewSim()
	boom := errors.New("arena exhausted")
	sim.FailNextAlloc(boom)

	_, err := sim.Alloc(1)
	assert.ErrorIs(t, err, boom)

	// One-shot: the next allocation succeeds.
	b, err := sim.Alloc(1)
	require.NoError(t, err)
	require.NoError(t, sim.Free(b))
}

func TestSim_FailNextReadBack(t *testing.T) {
	sim := NewSim()
	b, err := sim.Alloc(1)
	require.NoError(t, err)

	boom := errors.New("copy engine fault")
	sim.FailNextReadBack(boom)

	_, err = sim.ReadBack(b)
	assert.ErrorIs(t, err, boom)

	vals, err := sim.ReadBack(b)
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, vals)
}

func TestSim_ConcurrentWords(t *testing.T) {
	sim := NewSim()
	b, err := sim.Alloc(1)
	require.NoError(t, err)
	require.NoError(t, sim.Zero(b))

	const workers = 32
	const perWorker = 250

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				atomic.AddInt64(&b.Words()[0], 1)
			}
		}()
	}
	wg.Wait()

	vals, err := sim.ReadBack(b)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), vals[0])
}
