package telegram

import "sync"

// keyedQueue runs tasks concurrently across keys and in submission order
// within a key. Each task waits for the one submitted before it for the same
// key.
type keyedQueue struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
	wg    sync.WaitGroup
}

func newKeyedQueue() *keyedQueue {
	return &keyedQueue{tails: make(map[int64]chan struct{})}
}

func (q *keyedQueue) Go(key int64, fn func()) {
	done := make(chan struct{})
	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			q.mu.Lock()
			if q.tails[key] == done {
				delete(q.tails, key)
			}
			q.mu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// Wait blocks until every submitted task has finished.
func (q *keyedQueue) Wait() {
	q.wg.Wait()
}

func (q *keyedQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
