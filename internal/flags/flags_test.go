package flags

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpoole/graphwitness/internal/devmem"
)

func newSet(t *testing.T, n int) (*devmem.Sim, *FlagSet) {
	t.Helper()
	sim := devmem.NewSim()
	fs, err := New(sim, n)
	require.NoError(t, err)
	return sim, fs
}

func TestNew_RejectsZeroCounters(t *testing.T) {
	_, err := New(devmem.NewSim(), 0)
	assert.Error(t, err)
}

func TestNew_AllocationFailure(t *testing.T) {
	sim := devmem.NewSim()
	boom := errors.New("device out of memory")
	sim.FailNextAlloc(boom)

	fs, err := New(sim, 4)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, fs)
	// No partially constructed set may leak an allocation.
	assert.Equal(t, 0, sim.Live())
}

func TestAllSetOnce_EverySubset(t *testing.T) {
	// For every subset S of {0..n-1}, signaling exactly the indices in S
	// once yields AllSetOnce == (S is the full set).
	const n = 4
	for mask := 0; mask < 1<<n; mask++ {
		_, fs := newSet(t, n)
		h := fs.Handle()
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				h.Set(i)
			}
		}

		got, err := fs.AllSetOnce()
		require.NoError(t, err)
		assert.Equal(t, mask == 1<<n-1, got, "mask %b", mask)

		unset, err := fs.AllUnset()
		require.NoError(t, err)
		assert.Equal(t, !got, unset, "mask %b", mask)

		require.NoError(t, fs.Close())
	}
}

func TestAllSetOnce_DuplicateSignal(t *testing.T) {
	_, fs := newSet(t, 2)
	h := fs.Handle()
	h.Set(0)
	h.Set(0)
	h.Set(1)

	got, err := fs.AllSetOnce()
	require.NoError(t, err)
	assert.False(t, got, "a duplicate signal must not count as exactly-once")
}

func TestAllUnset_IsNegationEvenWhenAllZero(t *testing.T) {
	// AllUnset is the negation of AllSetOnce, not an "all zero" check. With
	// no signals fired both disagree with their intuitive readings: nothing
	// is set, and AllUnset is simply !AllSetOnce == true.
	_, fs := newSet(t, 3)

	once, err := fs.AllSetOnce()
	require.NoError(t, err)
	unset, err := fs.AllUnset()
	require.NoError(t, err)
	assert.False(t, once)
	assert.True(t, unset)

	// And with every counter above one, AllUnset stays true as well.
	h := fs.Handle()
	for i := 0; i < fs.Len(); i++ {
		h.Set(i)
		h.Set(i)
	}
	once, err = fs.AllSetOnce()
	require.NoError(t, err)
	unset, err = fs.AllUnset()
	require.NoError(t, err)
	assert.False(t, once)
	assert.True(t, unset)
}

func TestSet_ConcurrentIncrementsAreLossless(t *testing.T) {
	_, fs := newSet(t, 1)
	h := fs.Handle()

	const workers = 64
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h.Set(0)
			}
		}()
	}
	wg.Wait()

	vals, err := fs.Counters()
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), vals[0])
}

func TestAllSetOnce_CopyBackFailureIsFatal(t *testing.T) {
	sim, fs := newSet(t, 2)
	fs.Handle().Set(0)

	boom := errors.New("copy engine fault")
	sim.FailNextReadBack(boom)

	_, err := fs.AllSetOnce()
	assert.ErrorIs(t, err, boom, "copy-back failure must surface as an error, not as false")
}

func TestClose_ExactlyOnce(t *testing.T) {
	sim, fs := newSet(t, 2)

	require.NoError(t, fs.Close())
	assert.Equal(t, 0, sim.Live())
	assert.ErrorIs(t, fs.Close(), ErrClosed)
}

func TestCounters_AfterCloseIsStale(t *testing.T) {
	_, fs := newSet(t, 1)
	require.NoError(t, fs.Close())

	_, err := fs.Counters()
	assert.ErrorIs(t, err, devmem.ErrStaleBlock)
}
