package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	var tab Table
	tab.Add("runloop", 0x40_2000, 0x100)
	tab.Add("read_fault", 0x40_1000, 0x80)

	tests := []struct {
		name    string
		addr    uint64
		wantSym string
		wantOff uint64
		wantOK  bool
	}{
		{name: "base of symbol", addr: 0x40_1000, wantSym: "read_fault", wantOff: 0, wantOK: true},
		{name: "inside symbol", addr: 0x40_1024, wantSym: "read_fault", wantOff: 0x24, wantOK: true},
		{name: "last byte", addr: 0x40_107f, wantSym: "read_fault", wantOff: 0x7f, wantOK: true},
		{name: "gap between symbols", addr: 0x40_1080, wantOK: false},
		{name: "second symbol", addr: 0x40_2010, wantSym: "runloop", wantOff: 0x10, wantOK: true},
		{name: "below all symbols", addr: 0x1000, wantOK: false},
		{name: "above all symbols", addr: 0x50_0000, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sym, off, ok := tab.Resolve(tt.addr)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantSym, sym)
				assert.Equal(t, tt.wantOff, off)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	var tab Table
	tab.Add("vtimer_expire", 0x40_3000, 0x40)

	assert.Equal(t, "0x0000000000403010 (vtimer_expire + 0x10)", tab.Format(0x40_3010))
	assert.Equal(t, "0x0000000000403000 (vtimer_expire)", tab.Format(0x40_3000))
	assert.Equal(t, "0x00000000deadbeef", tab.Format(0xdeadbeef))
}

func TestNilAndEmptyTable(t *testing.T) {
	var nilTab *Table
	assert.Equal(t, "0x0000000000001234", nilTab.Format(0x1234))
	assert.Equal(t, 0, nilTab.Len())

	var empty Table
	_, _, ok := empty.Resolve(0x1234)
	assert.False(t, ok)
}

func TestAddAfterResolveResorts(t *testing.T) {
	var tab Table
	tab.Add("b", 0x2000, 0x100)
	_, _, ok := tab.Resolve(0x2000)
	assert.True(t, ok)

	tab.Add("a", 0x1000, 0x100)
	sym, _, ok := tab.Resolve(0x1040)
	assert.True(t, ok)
	assert.Equal(t, "a", sym)
	assert.Equal(t, 2, tab.Len())
}
