package objfile

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"

	"objdiff/internal/asm"
)

// COFF machine values we accept for bare .obj files (no MZ/PE header).
func isCOFFMachine(m uint16) bool {
	switch m {
	case pe.IMAGE_FILE_MACHINE_I386,
		pe.IMAGE_FILE_MACHINE_AMD64,
		pe.IMAGE_FILE_MACHINE_ARM,
		pe.IMAGE_FILE_MACHINE_ARMNT,
		pe.IMAGE_FILE_MACHINE_THUMB,
		pe.IMAGE_FILE_MACHINE_R4000,
		pe.IMAGE_FILE_MACHINE_POWERPC:
		return true
	}
	return false
}

func loadPE(data []byte) (*Object, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	defer f.Close()

	o := &Object{
		Format:    FormatPE,
		Arch:      peArch(f.Machine),
		ByteOrder: binary.LittleEndian,
	}

	for _, s := range f.Sections {
		sec := Section{
			Name: s.Name,
			Kind: peSectionKind(s.Characteristics),
			Addr: uint64(s.VirtualAddress),
			Size: uint64(s.Size),
		}
		if sec.Kind != SectBSS && s.Size > 0 {
			d, err := s.Data()
			if err != nil {
				return nil, fmt.Errorf("%w: section %s: %v", ErrTruncated, s.Name, err)
			}
			sec.Data = d
			if sec.Size == 0 {
				sec.Size = uint64(len(d))
			}
		}
		o.Sections = append(o.Sections, sec)
	}

	// COFF relocations index the raw symbol table including aux records,
	// so the Symbols slice mirrors it entry for entry; aux records become
	// anonymous placeholders skipped by listings.
	aux := 0
	for _, cs := range f.COFFSymbols {
		if aux > 0 {
			aux--
			o.Symbols = append(o.Symbols, Symbol{Section: -1})
			continue
		}
		aux = int(cs.NumberOfAuxSymbols)
		name, err := cs.FullName(f.StringTable)
		if err != nil {
			name = string(bytes.TrimRight(cs.Name[:], "\x00"))
		}
		sym := Symbol{
			Name:    name,
			Section: int(cs.SectionNumber) - 1,
			Kind:    peSymKind(cs),
		}
		if sym.Section < 0 || sym.Section >= len(o.Sections) {
			sym.Section = -1
			sym.Addr = uint64(cs.Value)
		} else {
			sym.Addr = o.Sections[sym.Section].Addr + uint64(cs.Value)
		}
		o.Symbols = append(o.Symbols, sym)
	}

	if err := loadPERelocs(f, o, data); err != nil {
		return nil, err
	}
	if err := o.checkRelocs(); err != nil {
		return nil, err
	}
	return o, nil
}

// loadPERelocs reads the per-section COFF relocation tables straight out
// of the raw buffer; debug/pe exposes the header fields but not the
// entries themselves.
func loadPERelocs(f *pe.File, o *Object, data []byte) error {
	const entrySize = 10 // VirtualAddress(4) SymbolTableIndex(4) Type(2)
	for i, s := range f.Sections {
		n := int(s.NumberOfRelocations)
		if n == 0 {
			continue
		}
		start := int(s.PointerToRelocations)
		end := start + n*entrySize
		if start <= 0 || end > len(data) {
			return fmt.Errorf("%w: relocations for %s extend past buffer", ErrTruncated, s.Name)
		}
		sec := &o.Sections[i]
		for off := start; off < end; off += entrySize {
			va := binary.LittleEndian.Uint32(data[off:])
			symIdx := int(binary.LittleEndian.Uint32(data[off+4:]))
			typ := binary.LittleEndian.Uint16(data[off+8:])
			if symIdx < 0 || symIdx >= len(o.Symbols) {
				return fmt.Errorf("%w: symbol index %d in %s", ErrBadReloc, symIdx, s.Name)
			}
			rOff := uint64(va)
			if rOff >= uint64(s.VirtualAddress) {
				rOff -= uint64(s.VirtualAddress)
			}
			sec.Relocs = append(sec.Relocs, Reloc{
				Off:  rOff,
				Sym:  symIdx,
				Kind: peRelocKind(f.Machine, typ),
			})
		}
	}
	return nil
}

func peArch(m uint16) asm.Arch {
	switch m {
	case pe.IMAGE_FILE_MACHINE_I386:
		return asm.ArchX86
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return asm.ArchX8664
	case pe.IMAGE_FILE_MACHINE_ARM, pe.IMAGE_FILE_MACHINE_ARMNT:
		return asm.ArchARM
	case pe.IMAGE_FILE_MACHINE_THUMB:
		return asm.ArchThumb
	case pe.IMAGE_FILE_MACHINE_R4000:
		return asm.ArchMIPS
	case pe.IMAGE_FILE_MACHINE_POWERPC:
		return asm.ArchPPC
	}
	return asm.ArchUnknown
}

const (
	peScnCntCode       = 0x00000020
	peScnCntInitData   = 0x00000040
	peScnCntUninitData = 0x00000080
	peScnMemExecute    = 0x20000000
)

func peSectionKind(ch uint32) SectionKind {
	switch {
	case ch&peScnCntCode != 0 || ch&peScnMemExecute != 0:
		return SectCode
	case ch&peScnCntUninitData != 0:
		return SectBSS
	case ch&peScnCntInitData != 0:
		return SectData
	}
	return SectOther
}

func peSymKind(cs pe.COFFSymbol) SymKind {
	const dtypeFunction = 2
	if (cs.Type>>4)&0xf == dtypeFunction {
		return SymFunc
	}
	const staticClass = 3
	if cs.StorageClass == staticClass && cs.Value == 0 {
		return SymSection
	}
	if int(cs.SectionNumber) > 0 {
		return SymObject
	}
	return SymUnknown
}

// COFF relocation types, the handful we classify.
const (
	relAMD64Addr64 = 0x0001
	relAMD64Addr32 = 0x0002
	relAMD64Rel32  = 0x0004
	relI386Dir32   = 0x0006
	relI386Rel32   = 0x0014
)

func peRelocKind(machine uint16, t uint16) RelocKind {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		switch t {
		case relAMD64Addr64, relAMD64Addr32:
			return RelAbs
		case relAMD64Rel32, relAMD64Rel32 + 1, relAMD64Rel32 + 2,
			relAMD64Rel32 + 3, relAMD64Rel32 + 4, relAMD64Rel32 + 5:
			return RelPCRel
		}
	case pe.IMAGE_FILE_MACHINE_I386:
		switch t {
		case relI386Dir32:
			return RelAbs
		case relI386Rel32:
			return RelPCRel
		}
	}
	return RelOther
}
