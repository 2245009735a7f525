package objfile

import (
	"bytes"
	"debug/elf"
	"fmt"

	"objdiff/internal/asm"
)

func loadELF(data []byte) (*Object, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	defer f.Close()

	o := &Object{
		Format:    FormatELF,
		Arch:      elfArch(f.Machine),
		ByteOrder: f.ByteOrder,
	}

	for _, s := range f.Sections {
		sec := Section{
			Name: s.Name,
			Kind: elfSectionKind(s),
			Addr: s.Addr,
			Size: s.Size,
		}
		if s.Type != elf.SHT_NOBITS && s.Type != elf.SHT_NULL {
			d, err := s.Data()
			if err != nil {
				return nil, fmt.Errorf("%w: section %s: %v", ErrTruncated, s.Name, err)
			}
			sec.Data = d
		}
		o.Sections = append(o.Sections, sec)
	}

	// f.Symbols omits the leading null entry, so symbol table index n
	// from a relocation maps to o.Symbols[n-1].
	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("%w: symbol table: %v", ErrTruncated, err)
	}
	for _, s := range syms {
		o.Symbols = append(o.Symbols, Symbol{
			Name:    s.Name,
			Addr:    s.Value,
			Size:    s.Size,
			Section: elfSymSection(s.Section, len(o.Sections)),
			Kind:    elfSymKind(elf.ST_TYPE(s.Info)),
		})
	}

	if err := loadELFRelocs(f, o); err != nil {
		return nil, err
	}
	if err := o.checkRelocs(); err != nil {
		return nil, err
	}
	return o, nil
}

func loadELFRelocs(f *elf.File, o *Object) error {
	for _, s := range f.Sections {
		if s.Type != elf.SHT_RELA && s.Type != elf.SHT_REL {
			continue
		}
		target := int(s.Info)
		if target <= 0 || target >= len(o.Sections) {
			continue
		}
		d, err := s.Data()
		if err != nil {
			return fmt.Errorf("%w: relocation section %s: %v", ErrTruncated, s.Name, err)
		}
		rela := s.Type == elf.SHT_RELA
		sec := &o.Sections[target]
		var entries []Reloc
		var perr error
		if f.Class == elf.ELFCLASS64 {
			entries, perr = parseRelocs64(d, f, o, rela)
		} else {
			entries, perr = parseRelocs32(d, f, o, rela)
		}
		if perr != nil {
			return fmt.Errorf("section %s: %w", s.Name, perr)
		}
		// Relocation offsets are section-relative in relocatable objects
		// and virtual addresses in linked images; rebase the latter.
		for i := range entries {
			if sec.Addr > 0 && entries[i].Off >= sec.Addr {
				entries[i].Off -= sec.Addr
			}
		}
		sec.Relocs = append(sec.Relocs, entries...)
	}
	return nil
}

func parseRelocs64(d []byte, f *elf.File, o *Object, rela bool) ([]Reloc, error) {
	size := 16
	if rela {
		size = 24
	}
	var out []Reloc
	for off := 0; off+size <= len(d); off += size {
		rOff := f.ByteOrder.Uint64(d[off:])
		rInfo := f.ByteOrder.Uint64(d[off+8:])
		symIdx := int(rInfo >> 32)
		rType := uint32(rInfo)
		var addend int64
		if rela {
			addend = int64(f.ByteOrder.Uint64(d[off+16:]))
		}
		if symIdx == 0 {
			continue // relocation against the null symbol carries no reference
		}
		if symIdx > len(o.Symbols) {
			return nil, fmt.Errorf("%w: symbol index %d", ErrBadReloc, symIdx)
		}
		out = append(out, Reloc{
			Off:    rOff,
			Sym:    symIdx - 1,
			Kind:   elfRelocKind(f.Machine, rType),
			Addend: addend,
		})
	}
	return out, nil
}

func parseRelocs32(d []byte, f *elf.File, o *Object, rela bool) ([]Reloc, error) {
	size := 8
	if rela {
		size = 12
	}
	var out []Reloc
	for off := 0; off+size <= len(d); off += size {
		rOff := uint64(f.ByteOrder.Uint32(d[off:]))
		rInfo := f.ByteOrder.Uint32(d[off+4:])
		symIdx := int(rInfo >> 8)
		rType := rInfo & 0xff
		var addend int64
		if rela {
			addend = int64(int32(f.ByteOrder.Uint32(d[off+8:])))
		}
		if symIdx == 0 {
			continue
		}
		if symIdx > len(o.Symbols) {
			return nil, fmt.Errorf("%w: symbol index %d", ErrBadReloc, symIdx)
		}
		out = append(out, Reloc{
			Off:    rOff,
			Sym:    symIdx - 1,
			Kind:   elfRelocKind(f.Machine, rType),
			Addend: addend,
		})
	}
	return out, nil
}

func elfArch(m elf.Machine) asm.Arch {
	switch m {
	case elf.EM_386:
		return asm.ArchX86
	case elf.EM_X86_64:
		return asm.ArchX8664
	case elf.EM_MIPS, elf.EM_MIPS_RS3_LE:
		return asm.ArchMIPS
	case elf.EM_PPC, elf.EM_PPC64:
		return asm.ArchPPC
	case elf.EM_ARM:
		return asm.ArchARM
	}
	return asm.ArchUnknown
}

func elfSectionKind(s *elf.Section) SectionKind {
	switch {
	case s.Type == elf.SHT_NOBITS:
		return SectBSS
	case s.Flags&elf.SHF_EXECINSTR != 0:
		return SectCode
	case s.Type == elf.SHT_PROGBITS && s.Flags&elf.SHF_ALLOC != 0:
		return SectData
	}
	return SectOther
}

func elfSymSection(idx elf.SectionIndex, nsec int) int {
	if idx == elf.SHN_UNDEF || int(idx) >= nsec {
		return -1
	}
	return int(idx)
}

func elfSymKind(t elf.SymType) SymKind {
	switch t {
	case elf.STT_FUNC:
		return SymFunc
	case elf.STT_OBJECT:
		return SymObject
	case elf.STT_SECTION:
		return SymSection
	}
	return SymUnknown
}

func elfRelocKind(m elf.Machine, t uint32) RelocKind {
	switch m {
	case elf.EM_X86_64:
		switch elf.R_X86_64(t) {
		case elf.R_X86_64_64, elf.R_X86_64_32, elf.R_X86_64_32S:
			return RelAbs
		case elf.R_X86_64_PC32, elf.R_X86_64_PC64:
			return RelPCRel
		case elf.R_X86_64_PLT32:
			return RelPLT
		case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
			return RelGOT
		}
	case elf.EM_386:
		switch elf.R_386(t) {
		case elf.R_386_32:
			return RelAbs
		case elf.R_386_PC32:
			return RelPCRel
		case elf.R_386_PLT32:
			return RelPLT
		case elf.R_386_GOT32, elf.R_386_GOTOFF, elf.R_386_GOTPC:
			return RelGOT
		}
	case elf.EM_MIPS, elf.EM_MIPS_RS3_LE:
		switch elf.R_MIPS(t) {
		case elf.R_MIPS_32, elf.R_MIPS_64, elf.R_MIPS_26:
			return RelAbs
		case elf.R_MIPS_HI16:
			return RelHigh
		case elf.R_MIPS_LO16:
			return RelLow
		case elf.R_MIPS_PC16:
			return RelPCRel
		case elf.R_MIPS_GOT16, elf.R_MIPS_CALL16:
			return RelGOT
		}
	case elf.EM_PPC, elf.EM_PPC64:
		switch elf.R_PPC(t) {
		case elf.R_PPC_ADDR32, elf.R_PPC_ADDR16, elf.R_PPC_ADDR24:
			return RelAbs
		case elf.R_PPC_ADDR16_HA, elf.R_PPC_ADDR16_HI:
			return RelHigh
		case elf.R_PPC_ADDR16_LO:
			return RelLow
		case elf.R_PPC_REL24, elf.R_PPC_REL14, elf.R_PPC_REL32:
			return RelPCRel
		case elf.R_PPC_PLTREL24:
			return RelPLT
		}
	case elf.EM_ARM:
		switch elf.R_ARM(t) {
		case elf.R_ARM_ABS32, elf.R_ARM_ABS16, elf.R_ARM_ABS8:
			return RelAbs
		case elf.R_ARM_PC24, elf.R_ARM_CALL, elf.R_ARM_JUMP24,
			elf.R_ARM_THM_PC22, elf.R_ARM_THM_JUMP24, elf.R_ARM_REL32:
			return RelPCRel
		case elf.R_ARM_PLT32:
			return RelPLT
		case elf.R_ARM_GOT32, elf.R_ARM_GOTOFF:
			return RelGOT
		}
	}
	return RelOther
}
