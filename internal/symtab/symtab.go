// Package symtab maps addresses back to symbol names for fault reports
// and stack walks. The table is fed by whoever assembles the machine
// image; lookups resolve an address to its containing symbol and offset.
package symtab

import (
	"fmt"
	"sort"
)

// Symbol is one named address range.
type Symbol struct {
	Name string
	Base uint64
	Size uint64
}

// Table is a symbol table sorted on demand. The zero value is an empty
// table; addresses then format as bare hex. A nil *Table behaves like
// an empty one.
type Table struct {
	syms   []Symbol
	sorted bool
}

// Add inserts a symbol covering [base, base+size).
func (t *Table) Add(name string, base, size uint64) {
	t.syms = append(t.syms, Symbol{Name: name, Base: base, Size: size})
	t.sorted = false
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.syms)
}

// Resolve returns the symbol containing addr and the offset into it.
func (t *Table) Resolve(addr uint64) (name string, offset uint64, ok bool) {
	if t == nil || len(t.syms) == 0 {
		return "", 0, false
	}
	t.ensureSorted()
	i := sort.Search(len(t.syms), func(i int) bool { return t.syms[i].Base > addr })
	if i == 0 {
		return "", 0, false
	}
	s := t.syms[i-1]
	if addr >= s.Base+s.Size {
		return "", 0, false
	}
	return s.Name, addr - s.Base, true
}

// Format renders addr as fixed-width hex, annotated with symbol and
// offset when the table resolves it.
func (t *Table) Format(addr uint64) string {
	name, off, ok := t.Resolve(addr)
	if !ok {
		return fmt.Sprintf("0x%016x", addr)
	}
	if off == 0 {
		return fmt.Sprintf("0x%016x (%s)", addr, name)
	}
	return fmt.Sprintf("0x%016x (%s + 0x%x)", addr, name, off)
}

func (t *Table) ensureSorted() {
	if t.sorted {
		return
	}
	sort.Slice(t.syms, func(i, j int) bool { return t.syms[i].Base < t.syms[j].Base })
	t.sorted = true
}
