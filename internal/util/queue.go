package util

import "sync"

// KeyedQueue runs functions in the background, one at a time per key and in
// submission order. Functions under different keys run concurrently. The zero
// value is ready to use.
type KeyedQueue struct {
	mu      sync.Mutex
	pending map[string][]func()
	wg      sync.WaitGroup
}

// Go queues fn behind any earlier work submitted under key.
func (q *KeyedQueue) Go(key string, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		q.pending = make(map[string][]func())
	}
	queued, draining := q.pending[key]
	q.pending[key] = append(queued, fn)
	if !draining {
		q.wg.Add(1)
		go q.drain(key)
	}
}

// Wait blocks until all submitted work has returned.
func (q *KeyedQueue) Wait() {
	q.wg.Wait()
}

func (q *KeyedQueue) drain(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.pending[key]
		if len(queued) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		fn := queued[0]
		q.pending[key] = queued[1:]
		q.mu.Unlock()
		fn()
	}
}
