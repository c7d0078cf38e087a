package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func TestDedupCache_ExecuteRunsOncePerKey(t *testing.T) {
	cache := NewDedupCache(time.Minute, 100, 1<<20)
	calls := 0

	for i := 0; i < 3; i++ {
		data, deduped, err := cache.Execute("s1", "inv1", "fp1", func() (any, int, error) {
			calls++
			return "result", len("result"), nil
		})
		require.NoError(t, err)
		require.Equal(t, "result", data)
		if i > 0 {
			require.True(t, deduped)
		}
	}
	require.Equal(t, 1, calls)
}

func TestDedupCache_ConcurrentCallsCollapseViaSingleflight(t *testing.T) {
	cache := NewDedupCache(time.Minute, 100, 1<<20)
	var calls int
	var mu sync.Mutex
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]any, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data, _, err := cache.Execute("s1", "inv1", "fp1", func() (any, int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				close(started)
				<-release
				return "done", 4, nil
			})
			require.NoError(t, err)
			results[idx] = data
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	require.Equal(t, 1, calls)
	for _, r := range results {
		require.Equal(t, "done", r)
	}
}

func TestDedupCache_MismatchedFingerprintDuringTTLFailsArgs(t *testing.T) {
	cache := NewDedupCache(time.Minute, 100, 1<<20)

	_, _, err := cache.Execute("s1", "inv1", "fp1", func() (any, int, error) {
		return "first", 5, nil
	})
	require.NoError(t, err)

	_, _, err = cache.Execute("s1", "inv1", "fp2", func() (any, int, error) {
		t.Fatal("fn should not run for a fingerprint mismatch")
		return nil, 0, nil
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeArgs, pkgerrors.Code(err))
}

func TestDedupCache_ExpiredEntryReexecutes(t *testing.T) {
	cache := NewDedupCache(10*time.Millisecond, 100, 1<<20)
	calls := 0

	_, _, err := cache.Execute("s1", "inv1", "fp1", func() (any, int, error) {
		calls++
		return "v1", 2, nil
	})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, deduped, err := cache.Execute("s1", "inv1", "fp1", func() (any, int, error) {
		calls++
		return "v2", 2, nil
	})
	require.NoError(t, err)
	require.False(t, deduped)
	require.Equal(t, 2, calls)
}

func TestDedupCache_EntryCapEvictsOldest(t *testing.T) {
	cache := NewDedupCache(time.Minute, 2, 1<<20)

	for i := 0; i < 3; i++ {
		invID := string(rune('a' + i))
		_, _, err := cache.Execute("s1", invID, "fp", func() (any, int, error) {
			return invID, 1, nil
		})
		require.NoError(t, err)
	}

	require.LessOrEqual(t, len(cache.entries), 2)
}
