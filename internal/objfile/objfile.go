// Package objfile parses ELF and PE/COFF object files into a normalized
// section/symbol/relocation model. It is pure data with no policy: it
// does not validate instruction semantics and never touches the
// filesystem. Callers hand it a byte buffer, typically memory-mapped,
// and everything in the returned Object borrows from that buffer.
package objfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"objdiff/internal/asm"
)

// Format identifies the container format of a loaded object.
type Format int

const (
	FormatELF Format = iota + 1
	FormatPE
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatPE:
		return "pe"
	}
	return "unknown"
}

// SectionKind is a coarse classification of section contents.
type SectionKind int

const (
	SectOther SectionKind = iota
	SectCode
	SectData
	SectBSS
)

func (k SectionKind) String() string {
	switch k {
	case SectCode:
		return "code"
	case SectData:
		return "data"
	case SectBSS:
		return "bss"
	}
	return "other"
}

// SymKind classifies a symbol table entry.
type SymKind int

const (
	SymUnknown SymKind = iota
	SymFunc
	SymObject
	SymSection
)

func (k SymKind) String() string {
	switch k {
	case SymFunc:
		return "func"
	case SymObject:
		return "object"
	case SymSection:
		return "section"
	}
	return "unknown"
}

// RelocKind is a format-independent relocation taxonomy. Machine
// specific relocation types collapse into these buckets; the diff core
// only needs to know whether two relocated operands refer to the same
// symbol, not the exact fixup arithmetic.
type RelocKind int

const (
	RelOther RelocKind = iota
	RelAbs
	RelPCRel
	RelGOT
	RelPLT
	RelHigh // upper half of a split address (hi16 / ha16)
	RelLow  // lower half of a split address
)

func (k RelocKind) String() string {
	switch k {
	case RelAbs:
		return "abs"
	case RelPCRel:
		return "pcrel"
	case RelGOT:
		return "got"
	case RelPLT:
		return "plt"
	case RelHigh:
		return "hi"
	case RelLow:
		return "lo"
	}
	return "other"
}

// Reloc is a relocation owned by the section it applies to. Sym indexes
// the object's symbol table; relocations never duplicate symbol data.
type Reloc struct {
	Off    uint64 // offset within the owning section
	Sym    int    // index into Object.Symbols
	Kind   RelocKind
	Addend int64
}

// Section is an immutable view of one section. Data borrows from the
// buffer passed to Load.
type Section struct {
	Name   string
	Kind   SectionKind
	Addr   uint64
	Size   uint64
	Data   []byte
	Relocs []Reloc
}

// Symbol is one symbol table entry. Section is an index into
// Object.Sections, or -1 when the symbol is not tied to a section.
type Symbol struct {
	Name    string
	Addr    uint64
	Size    uint64
	Section int
	Kind    SymKind
}

// Object is the parsed form of one object file.
type Object struct {
	Format    Format
	Arch      asm.Arch
	ByteOrder binary.ByteOrder
	Sections  []Section
	Symbols   []Symbol
}

// Error taxonomy. All Load failures wrap one of these.
var (
	ErrUnsupportedFormat = errors.New("unsupported object format")
	ErrTruncated         = errors.New("object file truncated")
	ErrBadReloc          = errors.New("invalid relocation")
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// Load parses an object file, auto-detecting the container format from
// its magic bytes.
func Load(data []byte) (*Object, error) {
	switch {
	case len(data) >= 4 && string(data[:4]) == string(elfMagic):
		return loadELF(data)
	case len(data) >= 2 && data[0] == 'M' && data[1] == 'Z':
		return loadPE(data)
	case len(data) >= 2 && isCOFFMachine(binary.LittleEndian.Uint16(data[:2])):
		return loadPE(data)
	}
	return nil, fmt.Errorf("%w: unrecognized magic", ErrUnsupportedFormat)
}

// SymbolByName returns the first symbol with the given name, preferring
// function symbols when the name is ambiguous.
func (o *Object) SymbolByName(name string) (Symbol, bool) {
	found := -1
	for i, s := range o.Symbols {
		if s.Name != name {
			continue
		}
		if s.Kind == SymFunc {
			return s, true
		}
		if found < 0 {
			found = i
		}
	}
	if found >= 0 {
		return o.Symbols[found], true
	}
	return Symbol{}, false
}

// FuncSymbols returns the defined function symbols sorted by name.
func (o *Object) FuncSymbols() []Symbol {
	var out []Symbol
	for _, s := range o.Symbols {
		if s.Kind == SymFunc && s.Section >= 0 && s.Name != "" {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Addr < out[j].Addr
	})
	return out
}

// FuncRange slices the bytes and relocations covering sym. Relocation
// offsets in the result are rebased to be relative to the function
// start, which is what the normalizer works in.
func (o *Object) FuncRange(sym Symbol) (code []byte, relocs []Reloc, err error) {
	if sym.Section < 0 || sym.Section >= len(o.Sections) {
		return nil, nil, fmt.Errorf("symbol %q has no section", sym.Name)
	}
	sec := &o.Sections[sym.Section]
	if sym.Addr < sec.Addr {
		return nil, nil, fmt.Errorf("symbol %q outside section %s", sym.Name, sec.Name)
	}
	off := sym.Addr - sec.Addr
	size := sym.Size
	if size == 0 {
		// Zero-sized symbols (common in hand-written assembly) extend to
		// the next symbol in the same section, or the section end.
		size = o.nextSymBoundary(sym, sec) - sym.Addr
	}
	if off+size > uint64(len(sec.Data)) {
		return nil, nil, fmt.Errorf("%w: %q extends past section %s", ErrTruncated, sym.Name, sec.Name)
	}
	code = sec.Data[off : off+size]
	for _, r := range sec.Relocs {
		if r.Off >= off && r.Off < off+size {
			r.Off -= off
			relocs = append(relocs, r)
		}
	}
	return code, relocs, nil
}

func (o *Object) nextSymBoundary(sym Symbol, sec *Section) uint64 {
	end := sec.Addr + sec.Size
	for _, s := range o.Symbols {
		if s.Section == sym.Section && s.Addr > sym.Addr && s.Addr < end {
			end = s.Addr
		}
	}
	return end
}

// checkRelocs enforces the data-model invariants: every relocation
// offset falls inside its owning section and every symbol index is in
// range.
func (o *Object) checkRelocs() error {
	for si := range o.Sections {
		sec := &o.Sections[si]
		for _, r := range sec.Relocs {
			if r.Off >= sec.Size {
				return fmt.Errorf("%w: offset %#x past end of %s", ErrBadReloc, r.Off, sec.Name)
			}
			if r.Sym < 0 || r.Sym >= len(o.Symbols) {
				return fmt.Errorf("%w: symbol index %d out of range in %s", ErrBadReloc, r.Sym, sec.Name)
			}
		}
	}
	return nil
}
