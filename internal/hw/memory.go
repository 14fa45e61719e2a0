package hw

type region struct {
	base   uint64
	length uint64
}

// Memory is a sparse simulated address space: mapped ranges define
// validity, a word store holds contents. Unwritten words in a mapped
// range read zero. It backs the frame and stack walkers.
type Memory struct {
	regions []region
	words   map[uint64]uint64
}

func NewMemory() *Memory {
	return &Memory{words: make(map[uint64]uint64)}
}

// Map marks [base, base+length) valid.
func (m *Memory) Map(base, length uint64) {
	m.regions = append(m.regions, region{base: base, length: length})
}

// Store writes a word. The address still needs a mapping before the
// walkers will read it.
func (m *Memory) Store(addr, val uint64) {
	m.words[addr] = val
}

// Valid reports whether [addr, addr+size) lies inside one mapped
// region.
func (m *Memory) Valid(addr uint64, size int) bool {
	end := addr + uint64(size)
	if end < addr {
		return false
	}
	for _, r := range m.regions {
		if addr >= r.base && end <= r.base+r.length {
			return true
		}
	}
	return false
}

// Load reads the word at addr, zero when never stored.
func (m *Memory) Load(addr uint64) uint64 {
	return m.words[addr]
}
