package sequence

import "container/heap"

// ranked pairs a queued value with the rank that orders it.
type ranked[T any] struct {
	value T
	rank  int64
}

// heapCore implements heap.Interface as a max-heap over rank.
type heapCore[T any] []ranked[T]

func (h heapCore[T]) Len() int           { return len(h) }
func (h heapCore[T]) Less(i, j int) bool { return h[i].rank > h[j].rank }
func (h heapCore[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *heapCore[T]) Push(x any) {
	*h = append(*h, x.(ranked[T]))
}

func (h *heapCore[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// PriorityQueue dequeues the highest-rank value first. Not safe for
// concurrent use.
type PriorityQueue[T any] struct {
	core heapCore[T]
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

// Enqueue inserts value with the given rank.
func (q *PriorityQueue[T]) Enqueue(value T, rank int64) {
	heap.Push(&q.core, ranked[T]{value: value, rank: rank})
}

// Dequeue removes and returns the highest-rank value.
func (q *PriorityQueue[T]) Dequeue() (T, bool) {
	if len(q.core) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(&q.core).(ranked[T]).value, true
}

// Peek returns the highest-rank value without removing it.
func (q *PriorityQueue[T]) Peek() (T, bool) {
	if len(q.core) == 0 {
		var zero T
		return zero, false
	}
	return q.core[0].value, true
}

func (q *PriorityQueue[T]) Len() int {
	return len(q.core)
}
