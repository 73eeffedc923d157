package routesync

import (
	"sync"
	"testing"
)

func TestTourQueue_FIFOPerID(t *testing.T) {
	q := newTourQueue()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	prevs := make([]<-chan struct{}, 3)
	dones := make([]func(), 3)
	for i := range prevs {
		prevs[i], dones[i] = q.enqueue(7)
	}
	if prevs[0] != nil {
		t.Fatal("first operation should not wait")
	}

	// Start in reverse to show ordering comes from the queue, not from
	// goroutine start order.
	for i := len(prevs) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if prevs[i] != nil {
				<-prevs[i]
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			dones[i]()
		}(i)
	}
	wg.Wait()

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("order = %v, want [0 1 2]", order)
	}
	if n := q.inFlight(); n != 0 {
		t.Errorf("inFlight = %d after all done, want 0", n)
	}
}

func TestTourQueue_IndependentIDs(t *testing.T) {
	q := newTourQueue()
	_, doneA := q.enqueue(1)
	prevB, doneB := q.enqueue(2)
	if prevB != nil {
		t.Error("different tour ids must not wait on each other")
	}
	if n := q.inFlight(); n != 2 {
		t.Errorf("inFlight = %d, want 2", n)
	}

	doneA()
	doneA() // second call is a no-op
	doneB()

	if n := q.inFlight(); n != 0 {
		t.Errorf("inFlight = %d, want 0", n)
	}
}
