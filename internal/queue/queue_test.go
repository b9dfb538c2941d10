package queue

import (
	"math/rand"
	"testing"
)

func TestEnqueueDequeueOrdering(t *testing.T) {
	q := New[string]()
	q.Enqueue("low", 25)
	q.Enqueue("critical", 100)
	q.Enqueue("medium", 50)
	q.Enqueue("high", 75)

	want := []string{"critical", "high", "medium", "low"}
	for _, expected := range want {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue() empty, want %q", expected)
		}
		if got != expected {
			t.Errorf("Dequeue() = %q, want %q", got, expected)
		}
	}

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() on empty queue returned ok=true")
	}
}

func TestDequeueAlwaysReturnsMax(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	q := New[int]()

	// Interleave enqueues and dequeues; every dequeue must dominate
	// the remaining items.
	live := make(map[int]int) // value -> priority
	next := 0
	for i := 0; i < 500; i++ {
		if rng.Intn(3) > 0 || q.IsEmpty() {
			p := rng.Intn(120)
			q.Enqueue(next, p)
			live[next] = p
			next++
			continue
		}

		v, ok := q.Dequeue()
		if !ok {
			t.Fatal("Dequeue() failed on non-empty queue")
		}
		p := live[v]
		delete(live, v)
		for _, rest := range live {
			if rest > p {
				t.Fatalf("dequeued priority %d but %d still queued", p, rest)
			}
		}
	}
}

func TestSizeTracking(t *testing.T) {
	q := New[int]()
	if !q.IsEmpty() || q.Len() != 0 {
		t.Fatal("new queue should be empty")
	}

	for i := 0; i < 10; i++ {
		q.Enqueue(i, i)
		if q.Len() != i+1 {
			t.Errorf("Len() = %d after %d enqueues", q.Len(), i+1)
		}
	}

	for i := 9; i >= 0; i-- {
		q.Dequeue()
		if q.Len() != i {
			t.Errorf("Len() = %d, want %d", q.Len(), i)
		}
	}
}

func TestFIFOAmongEqualPriorities(t *testing.T) {
	q := New[string]()
	q.Enqueue("first", 50)
	q.Enqueue("second", 50)
	q.Enqueue("third", 50)
	q.Enqueue("urgent", 75)

	want := []string{"urgent", "first", "second", "third"}
	for _, expected := range want {
		got, _ := q.Dequeue()
		if got != expected {
			t.Errorf("Dequeue() = %q, want %q", got, expected)
		}
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	q := New[string]()
	q.Enqueue("a", 10)
	q.Enqueue("b", 20)

	for i := 0; i < 3; i++ {
		got, ok := q.Peek()
		if !ok || got != "b" {
			t.Errorf("Peek() = %q, %v, want \"b\", true", got, ok)
		}
	}
	if q.Len() != 2 {
		t.Errorf("Len() = %d after Peek, want 2", q.Len())
	}
}

func TestPeekEmpty(t *testing.T) {
	q := New[int]()
	if _, ok := q.Peek(); ok {
		t.Error("Peek() on empty queue returned ok=true")
	}
}

func TestClear(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Enqueue(i, i)
	}
	q.Clear()

	if !q.IsEmpty() {
		t.Error("queue not empty after Clear()")
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue() after Clear() returned ok=true")
	}

	// Queue remains usable after Clear.
	q.Enqueue(99, 1)
	if got, _ := q.Dequeue(); got != 99 {
		t.Errorf("Dequeue() = %d, want 99", got)
	}
}

func TestToSliceSortedDescending(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Enqueue(i, rng.Intn(50))
	}

	before := q.Len()
	snapshot := q.ToSlice()
	if len(snapshot) != before {
		t.Fatalf("ToSlice() len = %d, want %d", len(snapshot), before)
	}
	if q.Len() != before {
		t.Errorf("ToSlice() mutated queue: Len() = %d, want %d", q.Len(), before)
	}

	// Snapshot order must match repeated dequeues.
	for i, want := range snapshot {
		got, _ := q.Dequeue()
		if got != want {
			t.Fatalf("ToSlice()[%d] = %d but Dequeue() = %d", i, want, got)
		}
	}
}
