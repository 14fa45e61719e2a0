// Package idspace allocates small integer identifiers out of a fixed
// range, tracking them in a bitmap. The interrupt layer uses one to hand
// out dynamic vector numbers above the architectural exception range.
package idspace

import "math/bits"

// Space allocates ids from [base, base+length). The zero value is not
// usable; construct with New. A Space is not safe for concurrent use;
// the owner serializes access.
type Space struct {
	base   uint64
	length uint64
	words  []uint64
	inUse  int
}

// New returns a Space covering [base, base+length).
func New(base, length uint64) *Space {
	return &Space{
		base:   base,
		length: length,
		words:  make([]uint64, (length+63)/64),
	}
}

// Allocate returns the lowest free id in the range. The second return
// is false when the range is exhausted.
func (s *Space) Allocate() (uint64, bool) {
	for wi, w := range s.words {
		if w == ^uint64(0) {
			continue
		}
		bit := uint64(bits.TrailingZeros64(^w))
		off := uint64(wi)*64 + bit
		if off >= s.length {
			break
		}
		s.words[wi] = w | 1<<bit
		s.inUse++
		return s.base + off, true
	}
	return 0, false
}

// Reserve marks id as taken. It reports false when id falls outside the
// range; reserving an id that is already taken succeeds.
func (s *Space) Reserve(id uint64) bool {
	wi, bit, ok := s.locate(id)
	if !ok {
		return false
	}
	if s.words[wi]&(1<<bit) == 0 {
		s.words[wi] |= 1 << bit
		s.inUse++
	}
	return true
}

// Release returns id to the free pool. Releasing an id that is not
// taken, or one outside the range, is a no-op.
func (s *Space) Release(id uint64) {
	wi, bit, ok := s.locate(id)
	if !ok {
		return
	}
	if s.words[wi]&(1<<bit) != 0 {
		s.words[wi] &^= 1 << bit
		s.inUse--
	}
}

// Allocated reports whether id is currently taken.
func (s *Space) Allocated(id uint64) bool {
	wi, bit, ok := s.locate(id)
	return ok && s.words[wi]&(1<<bit) != 0
}

// InUse returns the number of taken ids.
func (s *Space) InUse() int { return s.inUse }

// Base returns the first id in the range.
func (s *Space) Base() uint64 { return s.base }

// Length returns the number of ids the range covers.
func (s *Space) Length() uint64 { return s.length }

func (s *Space) locate(id uint64) (word int, bit uint64, ok bool) {
	if id < s.base || id >= s.base+s.length {
		return 0, 0, false
	}
	off := id - s.base
	return int(off / 64), off % 64, true
}
