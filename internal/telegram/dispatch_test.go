package telegram

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedQueuePreservesOrderPerKey(t *testing.T) {
	q := newKeyedQueue()
	var mu sync.Mutex
	seen := map[int64][]int{}

	for i := 0; i < 50; i++ {
		for _, key := range []int64{1, 2, 3} {
			q.Go(key, func() {
				if i%7 == 0 {
					time.Sleep(time.Millisecond)
				}
				mu.Lock()
				seen[key] = append(seen[key], i)
				mu.Unlock()
			})
		}
	}
	q.Wait()

	for _, key := range []int64{1, 2, 3} {
		require.Len(t, seen[key], 50)
		for i, v := range seen[key] {
			assert.Equal(t, i, v)
		}
	}
	assert.Zero(t, q.pending())
}

func TestKeyedQueueRunsKeysInParallel(t *testing.T) {
	q := newKeyedQueue()
	release := make(chan struct{})
	started := make(chan struct{})

	q.Go(1, func() { <-release })
	q.Go(2, func() { close(started) })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task for another key was blocked")
	}
	close(release)
	q.Wait()
}
