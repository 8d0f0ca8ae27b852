package engine

import (
	"sync"
	"time"
)

// entry wraps a submitted payload together with the completion handle the
// demultiplexer will resolve once the batch carrying it has been handled.
// An entry is owned by the queue until it is drained, then exclusively by
// the in-flight dispatch.
type entry[Req, Res any] struct {
	payload    Req
	done       *completion[Res]
	enqueuedAt time.Time
}

// queue is the ordered collection of entries awaiting dispatch. Draining
// is indivisible with respect to concurrent enqueues: an enqueue racing a
// drain lands fully in the drained batch or fully in the next one, never
// split or lost.
type queue[Req, Res any] struct {
	mu      sync.Mutex
	entries []*entry[Req, Res]
}

func newQueue[Req, Res any]() *queue[Req, Res] {
	return &queue[Req, Res]{}
}

// enqueue appends e to the tail and returns the queue length after the
// append, so the caller can evaluate its flush policy against the exact
// state this entry produced.
func (q *queue[Req, Res]) enqueue(e *entry[Req, Res]) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, e)
	return len(q.entries)
}

// drainAll atomically removes and returns every queued entry in enqueue
// order, leaving the queue empty.
func (q *queue[Req, Res]) drainAll() []*entry[Req, Res] {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.entries
	q.entries = nil
	return drained
}

func (q *queue[Req, Res]) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}
