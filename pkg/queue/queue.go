package queue

import "sync"

// Queue is an unbounded FIFO safe for any number of producers. The single consumer
// takes everything pending with Drain, which never blocks on producers.
type Queue[T any] struct {
	mut   sync.Mutex
	items []T
}

func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Push(item T) {
	q.mut.Lock()
	defer q.mut.Unlock()
	q.items = append(q.items, item)
}

// Drain returns every pending item in insertion order and leaves the queue empty.
func (q *Queue[T]) Drain() []T {
	q.mut.Lock()
	defer q.mut.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *Queue[T]) Len() int {
	q.mut.Lock()
	defer q.mut.Unlock()
	return len(q.items)
}
