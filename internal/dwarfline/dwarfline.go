// Package dwarfline maps instruction addresses to source line numbers
// from DWARF line programs. It exists purely to annotate diff output;
// the alignment algorithm never consults it.
package dwarfline

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"debug/pe"
	"fmt"
	"io"
	"sort"
)

type entry struct {
	addr uint64
	line int
	file string
}

// Table is an immutable address-to-line lookup built once per object.
type Table struct {
	entries []entry
}

// New walks every compilation unit's line program into a sorted lookup
// table.
func New(d *dwarf.Data) (*Table, error) {
	t := &Table{}
	r := d.Reader()
	for {
		cu, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("read dwarf unit: %w", err)
		}
		if cu == nil {
			break
		}
		if cu.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		lr, err := d.LineReader(cu)
		if err != nil || lr == nil {
			r.SkipChildren()
			continue
		}
		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("read line program: %w", err)
			}
			if le.EndSequence {
				continue
			}
			e := entry{addr: le.Address, line: le.Line}
			if le.File != nil {
				e.file = le.File.Name
			}
			t.entries = append(t.entries, e)
		}
		r.SkipChildren()
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].addr < t.entries[j].addr })
	return t, nil
}

// FromBytes re-opens a raw object buffer and extracts its DWARF data.
// Objects without debug info yield a nil Table and no error; annotation
// is strictly optional.
func FromBytes(data []byte) (*Table, error) {
	var d *dwarf.Data
	switch {
	case len(data) >= 4 && string(data[:4]) == "\x7fELF":
		f, err := elf.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		d, _ = f.DWARF()
	default:
		f, err := pe.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		d, _ = f.DWARF()
	}
	if d == nil {
		return nil, nil
	}
	return New(d)
}

// LineFor returns the source line covering addr.
func (t *Table) LineFor(addr uint64) (int, bool) {
	if t == nil || len(t.entries) == 0 {
		return 0, false
	}
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].addr > addr })
	if i == 0 {
		return 0, false
	}
	return t.entries[i-1].line, true
}

// FileFor returns the source file covering addr.
func (t *Table) FileFor(addr uint64) (string, bool) {
	if t == nil || len(t.entries) == 0 {
		return "", false
	}
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].addr > addr })
	if i == 0 {
		return "", false
	}
	return t.entries[i-1].file, true
}
