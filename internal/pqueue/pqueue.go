// Package pqueue implements a binary min-heap priority queue with a
// caller-supplied ordering function.
//
// The queue is the ordering primitive under the timer wheel: timers are
// keyed by expiry, the soonest expiry sits at the root, and a wall clock
// step that moves every key can fix the ordering in place with Reorder
// instead of draining and re-inserting. Walk visits elements for bulk key
// adjustment before a Reorder.
//
// The zero value is not usable; construct with New. A Queue is not safe
// for concurrent use.
package pqueue

// Less reports whether a orders before b.
type Less[T any] func(a, b T) bool

// Queue is a binary min-heap ordered by the Less function supplied at
// construction. The minimum element sits at the root.
type Queue[T any] struct {
	less  Less[T]
	elems []T
}

// New returns an empty queue ordered by less.
func New[T any](less Less[T]) *Queue[T] {
	return &Queue[T]{less: less}
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int { return len(q.elems) }

// Insert adds v to the queue.
func (q *Queue[T]) Insert(v T) {
	q.elems = append(q.elems, v)
	q.siftUp(len(q.elems) - 1)
}

// Peek returns the minimum element without removing it. The second
// return is false when the queue is empty.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.elems) == 0 {
		var zero T
		return zero, false
	}
	return q.elems[0], true
}

// Pop removes and returns the minimum element. The second return is
// false when the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	n := len(q.elems)
	if n == 0 {
		var zero T
		return zero, false
	}
	v := q.elems[0]
	q.elems[0] = q.elems[n-1]
	var zero T
	q.elems[n-1] = zero
	q.elems = q.elems[:n-1]
	if n > 1 {
		q.siftDown(0)
	}
	return v, true
}

// Reorder restores the heap invariant after element keys were mutated
// out from under the queue. Cost is O(n).
func (q *Queue[T]) Reorder() {
	for i := len(q.elems)/2 - 1; i >= 0; i-- {
		q.siftDown(i)
	}
}

// Walk visits every element in unspecified order. The visit function
// returns false to stop early; Walk reports whether the walk ran to
// completion.
func (q *Queue[T]) Walk(visit func(T) bool) bool {
	for _, v := range q.elems {
		if !visit(v) {
			return false
		}
	}
	return true
}

func (q *Queue[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(q.elems[i], q.elems[parent]) {
			return
		}
		q.elems[i], q.elems[parent] = q.elems[parent], q.elems[i]
		i = parent
	}
}

func (q *Queue[T]) siftDown(i int) {
	n := len(q.elems)
	for {
		min := i
		if l := 2*i + 1; l < n && q.less(q.elems[l], q.elems[min]) {
			min = l
		}
		if r := 2*i + 2; r < n && q.less(q.elems[r], q.elems[min]) {
			min = r
		}
		if min == i {
			return
		}
		q.elems[i], q.elems[min] = q.elems[min], q.elems[i]
		i = min
	}
}
