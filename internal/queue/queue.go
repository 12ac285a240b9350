// Package queue is a concurrency-safe priority queue used to hand transfer jobs
// to workers in a deterministic order.
package queue

import (
	"container/heap"
	"sync"
)

type item[T any] struct {
	value    T
	priority int
	seq      uint64
}

// itemHeap orders by priority, lower first, then by insertion order.
type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(*item[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// PriorityQueue is stable: values with equal priority come out in the order they went in.
type PriorityQueue[T any] struct {
	mu   sync.Mutex
	heap itemHeap[T]
	seq  uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.seq++
	heap.Push(&pq.heap, &item[T]{value: value, priority: priority, seq: pq.seq})
}

// Dequeue removes the value with the lowest priority. ok is false when empty.
func (pq *PriorityQueue[T]) Dequeue() (value T, ok bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.heap.Len() == 0 {
		return value, false
	}
	return heap.Pop(&pq.heap).(*item[T]).value, true
}

// DequeueAll empties the queue in priority order.
func (pq *PriorityQueue[T]) DequeueAll() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	out := make([]T, 0, pq.heap.Len())
	for pq.heap.Len() > 0 {
		out = append(out, heap.Pop(&pq.heap).(*item[T]).value)
	}
	return out
}
