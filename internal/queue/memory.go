package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type itemHeap []WorkItem

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].DueAt.Before(h[j].DueAt) }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(WorkItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryQueue is an in-process queue ordered by due time. Items are lost on exit.
// A delivery that is not acked within the visibility timeout is handed out again.
type MemoryQueue struct {
	mu         sync.Mutex
	items      itemHeap
	inflight   map[string]inflightItem
	seq        uint64
	visibility time.Duration
	notify     chan struct{}
	done       chan struct{}
	closed     bool
}

type inflightItem struct {
	item     WorkItem
	seq      uint64
	deadline time.Time
}

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &MemoryQueue{
		inflight:   make(map[string]inflightItem),
		visibility: visibility,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, item WorkItem) error {
	if item.DeliveryID == "" {
		item.DeliveryID = uuid.NewString()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	heap.Push(&q.items, item)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		now := time.Now()
		wait := q.reclaim(now)
		if len(q.items) > 0 {
			next := q.items[0]
			if until := next.DueAt.Sub(now); until > 0 {
				wait = min(wait, until)
			} else {
				heap.Pop(&q.items)
				q.seq++
				q.inflight[next.DeliveryID] = inflightItem{item: next, seq: q.seq, deadline: now.Add(q.visibility)}
				ack := q.ackFunc(next.DeliveryID, q.seq)
				q.mu.Unlock()
				// Other waiters may have more due items to take.
				q.wake()
				return &Delivery{Item: next, ack: ack}, nil
			}
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-q.done:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// reclaim returns expired in-flight items to the heap and reports how long
// until the next in-flight deadline. Callers hold q.mu.
func (q *MemoryQueue) reclaim(now time.Time) time.Duration {
	wait := time.Hour
	for id, f := range q.inflight {
		if until := f.deadline.Sub(now); until > 0 {
			wait = min(wait, until)
			continue
		}
		delete(q.inflight, id)
		heap.Push(&q.items, f.item)
	}
	return wait
}

// ackFunc releases the in-flight entry only while it still belongs to this
// delivery; a stale ack after redelivery is a no-op.
func (q *MemoryQueue) ackFunc(id string, seq uint64) func(context.Context) error {
	return func(context.Context) error {
		q.mu.Lock()
		defer q.mu.Unlock()
		if f, ok := q.inflight[id]; ok && f.seq == seq {
			delete(q.inflight, id)
		}
		return nil
	}
}

func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items) + len(q.inflight)), nil
}

// Close wakes blocked consumers and rejects further work.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}
