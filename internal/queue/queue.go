// Package queue implements a generic binary max-heap priority queue.
// Equal priorities dequeue in insertion order (FIFO), enforced by a
// monotonically increasing sequence number as the secondary sort key.
package queue

import "sort"

type entry[T any] struct {
	item     T
	priority int
	seq      uint64
}

// less reports whether a should sit below b in the max-heap.
func (a entry[T]) less(b entry[T]) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	// Older entries (smaller seq) win ties.
	return a.seq > b.seq
}

// PriorityQueue is a binary max-heap keyed by an integer priority.
// Not safe for concurrent use; callers serialize access.
type PriorityQueue[T any] struct {
	entries []entry[T]
	nextSeq uint64
}

// New creates an empty PriorityQueue.
func New[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

// Enqueue inserts item with the given priority. O(log n).
func (q *PriorityQueue[T]) Enqueue(item T, priority int) {
	q.entries = append(q.entries, entry[T]{item: item, priority: priority, seq: q.nextSeq})
	q.nextSeq++
	q.bubbleUp(len(q.entries) - 1)
}

// Dequeue removes and returns the highest-priority item. The second
// return value is false when the queue is empty. O(log n).
func (q *PriorityQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.entries) == 0 {
		return zero, false
	}

	top := q.entries[0].item
	last := len(q.entries) - 1
	q.entries[0] = q.entries[last]
	q.entries[last] = entry[T]{} // release reference
	q.entries = q.entries[:last]
	if len(q.entries) > 0 {
		q.bubbleDown(0)
	}
	return top, true
}

// Peek returns the highest-priority item without removing it. O(1).
func (q *PriorityQueue[T]) Peek() (T, bool) {
	var zero T
	if len(q.entries) == 0 {
		return zero, false
	}
	return q.entries[0].item, true
}

// Len returns the number of queued items.
func (q *PriorityQueue[T]) Len() int {
	return len(q.entries)
}

// IsEmpty reports whether the queue holds no items.
func (q *PriorityQueue[T]) IsEmpty() bool {
	return len(q.entries) == 0
}

// Clear drops all queued items.
func (q *PriorityQueue[T]) Clear() {
	q.entries = nil
}

// ToSlice returns a snapshot of all items sorted by descending priority
// (FIFO within equal priorities). The heap is not mutated. O(n log n);
// intended for diagnostics and tests, not hot paths.
func (q *PriorityQueue[T]) ToSlice() []T {
	snapshot := make([]entry[T], len(q.entries))
	copy(snapshot, q.entries)
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[j].less(snapshot[i])
	})

	items := make([]T, len(snapshot))
	for i, e := range snapshot {
		items[i] = e.item
	}
	return items
}

func (q *PriorityQueue[T]) bubbleUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.entries[parent].less(q.entries[i]) {
			return
		}
		q.entries[parent], q.entries[i] = q.entries[i], q.entries[parent]
		i = parent
	}
}

func (q *PriorityQueue[T]) bubbleDown(i int) {
	n := len(q.entries)
	for {
		largest := i
		left := 2*i + 1
		right := 2*i + 2

		if left < n && q.entries[largest].less(q.entries[left]) {
			largest = left
		}
		if right < n && q.entries[largest].less(q.entries[right]) {
			largest = right
		}
		if largest == i {
			return
		}
		q.entries[i], q.entries[largest] = q.entries[largest], q.entries[i]
		i = largest
	}
}
