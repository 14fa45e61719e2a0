package idspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateLowestFirst(t *testing.T) {
	s := New(32, 8)
	for want := uint64(32); want < 40; want++ {
		id, ok := s.Allocate()
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 8, s.InUse())

	_, ok := s.Allocate()
	assert.False(t, ok, "range exhausted")
}

func TestAllocateNeverRepeatsOutstanding(t *testing.T) {
	s := New(32, 224)
	seen := make(map[uint64]bool)
	for {
		id, ok := s.Allocate()
		if !ok {
			break
		}
		require.False(t, seen[id], "id %d handed out twice", id)
		require.GreaterOrEqual(t, id, uint64(32))
		require.Less(t, id, uint64(256))
		seen[id] = true
	}
	assert.Len(t, seen, 224)
}

func TestReleaseMakesIDAvailable(t *testing.T) {
	s := New(32, 8)
	for i := 0; i < 4; i++ {
		_, ok := s.Allocate()
		require.True(t, ok)
	}

	s.Release(33)
	assert.False(t, s.Allocated(33))
	assert.Equal(t, 3, s.InUse())

	id, ok := s.Allocate()
	require.True(t, ok)
	assert.Equal(t, uint64(33), id, "lowest free id is reused")
}

func TestReleaseIgnoresInvalid(t *testing.T) {
	s := New(32, 8)
	id, ok := s.Allocate()
	require.True(t, ok)

	s.Release(1000)
	s.Release(0)
	s.Release(id + 1)
	assert.Equal(t, 1, s.InUse())
	assert.True(t, s.Allocated(id))
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name string
		id   uint64
		want bool
	}{
		{name: "first id in range", id: 32, want: true},
		{name: "last id in range", id: 39, want: true},
		{name: "below range", id: 31, want: false},
		{name: "past range", id: 40, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(32, 8)
			assert.Equal(t, tt.want, s.Reserve(tt.id))
			assert.Equal(t, tt.want, s.Allocated(tt.id))
		})
	}
}

func TestReserveIdempotent(t *testing.T) {
	s := New(32, 8)
	require.True(t, s.Reserve(34))
	require.True(t, s.Reserve(34))
	assert.Equal(t, 1, s.InUse())
}

func TestAllocateSkipsReserved(t *testing.T) {
	s := New(32, 8)
	require.True(t, s.Reserve(32))
	require.True(t, s.Reserve(33))

	id, ok := s.Allocate()
	require.True(t, ok)
	assert.Equal(t, uint64(34), id)
}

func TestRangeAccessors(t *testing.T) {
	s := New(32, 224)
	assert.Equal(t, uint64(32), s.Base())
	assert.Equal(t, uint64(224), s.Length())
}
