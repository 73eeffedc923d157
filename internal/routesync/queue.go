package routesync

import "sync"

// tourQueue orders operations per tour id. Each operation waits for the
// one submitted before it for the same id, so operations run one at a time
// and in submission order.
type tourQueue struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
}

func newTourQueue() *tourQueue {
	return &tourQueue{tails: make(map[int64]chan struct{})}
}

// enqueue registers an operation for id. The caller must wait on prev (nil
// when the queue was empty) before running and must call done exactly once
// afterwards.
func (q *tourQueue) enqueue(id int64) (prev <-chan struct{}, done func()) {
	cur := make(chan struct{})

	q.mu.Lock()
	p := q.tails[id]
	q.tails[id] = cur
	q.mu.Unlock()

	var once sync.Once
	done = func() {
		once.Do(func() {
			close(cur)
			q.mu.Lock()
			if q.tails[id] == cur {
				delete(q.tails, id)
			}
			q.mu.Unlock()
		})
	}
	if p == nil {
		return nil, done
	}
	return p, done
}

// inFlight returns the number of tour ids with queued or running work.
func (q *tourQueue) inFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
