package event

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// Queue is the unbounded FIFO hand-off between the stream reader and the
// decoder. Any number of producers may Enqueue; exactly one consumer dequeues.
// Enqueue never blocks and never rejects an envelope.
type Queue struct {
	mu     sync.Mutex
	items  *linkedlistqueue.Queue
	notify chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		items:  linkedlistqueue.New(),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends env. Ownership of env passes to the queue.
func (q *Queue) Enqueue(env *Envelope) {
	q.mu.Lock()
	q.items.Enqueue(env)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len is the number of envelopes waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Size()
}

// TryDequeue returns the oldest envelope if one is waiting.
func (q *Queue) TryDequeue() (*Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.items.Dequeue()
	if !ok {
		return nil, false
	}
	return v.(*Envelope), true
}

// DequeueTimeout waits up to d for an envelope. It returns false on timeout or
// when ctx is done.
func (q *Queue) DequeueTimeout(ctx context.Context, d time.Duration) (*Envelope, bool) {
	if env, ok := q.TryDequeue(); ok {
		return env, true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			// A stale signal can arrive after the item was already taken.
			if env, ok := q.TryDequeue(); ok {
				return env, true
			}
		case <-timer.C:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}
