package pqueue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestInsertPopOrdering(t *testing.T) {
	q := New(intLess)
	for _, v := range []int{5, 3, 8, 1} {
		q.Insert(v)
	}
	require.Equal(t, 4, q.Len())

	var got []int
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 3, 5, 8}, got)
	assert.Equal(t, 0, q.Len())
}

func TestPeekMatchesNextPop(t *testing.T) {
	q := New(intLess)
	for _, v := range []int{7, 2, 9, 4, 2} {
		q.Insert(v)
	}
	for q.Len() > 0 {
		peeked, ok := q.Peek()
		require.True(t, ok)
		popped, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, peeked, popped)
	}
}

func TestEmptyQueue(t *testing.T) {
	q := New(intLess)

	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestDuplicateKeys(t *testing.T) {
	q := New(intLess)
	for _, v := range []int{3, 3, 1, 3, 1} {
		q.Insert(v)
	}

	var got []int
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 1, 3, 3, 3}, got)
}

type entry struct {
	key  uint64
	name string
}

func entryLess(a, b *entry) bool { return a.key < b.key }

func TestReorderAfterKeyMutation(t *testing.T) {
	a := &entry{key: 10, name: "a"}
	b := &entry{key: 20, name: "b"}
	c := &entry{key: 30, name: "c"}

	q := New(entryLess)
	for _, e := range []*entry{a, b, c} {
		q.Insert(e)
	}

	// Mutate keys so that c now orders first and a last.
	c.key = 5
	a.key = 40
	q.Reorder()

	var names []string
	for {
		e, ok := q.Pop()
		if !ok {
			break
		}
		names = append(names, e.name)
	}
	assert.Equal(t, []string{"c", "b", "a"}, names)
}

func TestWalkAdjustThenReorder(t *testing.T) {
	q := New(entryLess)
	for i := uint64(1); i <= 5; i++ {
		q.Insert(&entry{key: i * 100})
	}

	// Shift every key, as a wall clock step over realtime timers would.
	complete := q.Walk(func(e *entry) bool {
		e.key += 1000
		return true
	})
	require.True(t, complete)
	q.Reorder()

	prev := uint64(0)
	for {
		e, ok := q.Pop()
		if !ok {
			break
		}
		assert.Greater(t, e.key, uint64(1000))
		assert.GreaterOrEqual(t, e.key, prev)
		prev = e.key
	}
}

func TestWalkEarlyStop(t *testing.T) {
	q := New(intLess)
	for i := 0; i < 8; i++ {
		q.Insert(i)
	}

	seen := 0
	complete := q.Walk(func(int) bool {
		seen++
		return true
	})
	assert.True(t, complete)
	assert.Equal(t, 8, seen)

	seen = 0
	complete = q.Walk(func(int) bool {
		seen++
		return seen < 3
	})
	assert.False(t, complete)
	assert.Equal(t, 3, seen)
}

func TestRandomizedAgainstSort(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q := New(intLess)
	want := make([]int, 0, 1000)
	for i := 0; i < 1000; i++ {
		v := rng.Intn(10000)
		want = append(want, v)
		q.Insert(v)
	}
	sort.Ints(want)

	got := make([]int, 0, 1000)
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, want, got)
}

func TestInterleavedInsertPop(t *testing.T) {
	q := New(intLess)
	q.Insert(50)
	q.Insert(10)

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 10, v)

	q.Insert(5)
	q.Insert(70)

	v, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 5, v)

	v, ok = q.Peek()
	require.True(t, ok)
	assert.Equal(t, 50, v)
	assert.Equal(t, 2, q.Len())
}
