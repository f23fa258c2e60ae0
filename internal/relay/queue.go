package relay

import (
	"sync"
	"time"
)

type progressItem struct {
	progress float64
	message  string
	sentinel bool
}

// queue is an unbounded single-producer single-consumer FIFO. Pushes never
// block, so a producer keeps going even when nobody reads any more. Once the
// sentinel is in, later pushes are dropped.
type queue struct {
	mu     sync.Mutex
	items  []progressItem
	sealed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(it progressItem) bool {
	q.mu.Lock()
	if q.sealed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, it)
	if it.sentinel {
		q.sealed = true
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop waits at most timeout for the next item.
func (q *queue) pop(timeout time.Duration) (progressItem, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = progressItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-timer.C:
			return progressItem{}, false
		}
	}
}
