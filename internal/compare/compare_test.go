package compare

import (
	"encoding/binary"
	"testing"

	"objdiff/internal/asm"
	"objdiff/internal/objfile"
	"objdiff/internal/sdiff"
)

// mipsObject wraps a word sequence as a one-function big-endian MIPS
// object. A second symbol is placed past the function so calls out of it
// have something to resolve against.
func mipsObject(start uint64, ws []uint32) *objfile.Object {
	data := make([]byte, len(ws)*4)
	for i, w := range ws {
		binary.BigEndian.PutUint32(data[i*4:], w)
	}
	size := uint64(len(data))
	return &objfile.Object{
		Format:    objfile.FormatELF,
		Arch:      asm.ArchMIPS,
		ByteOrder: binary.BigEndian,
		Sections: []objfile.Section{{
			Name: ".text",
			Kind: objfile.SectCode,
			Addr: start,
			Size: size + 4,
			Data: append(data, 0, 0, 0, 0),
		}},
		Symbols: []objfile.Symbol{
			{Name: "fn", Addr: start, Size: size, Section: 0, Kind: objfile.SymFunc},
			{Name: "callee", Addr: start + size, Size: 4, Section: 0, Kind: objfile.SymFunc},
		},
	}
}

func TestCompareIdenticalShifted(t *testing.T) {
	// The same code placed at different addresses must diff 100%: branch
	// targets become relative labels and the call resolves to the same
	// first-occurrence token on both sides.
	ws := []uint32{
		0x10400002, // beq $v0, $zero, +3 words
		0x00000000, // nop
		0x0c000000, // jal (target patched below)
		0x03e00008, // jr $ra
	}

	build := func(start uint64) *objfile.Object {
		patched := append([]uint32(nil), ws...)
		callee := start + uint64(len(ws))*4
		patched[2] = 0x0c000000 | uint32(callee>>2)&0x03ffffff
		return mipsObject(start, patched)
	}

	target := build(0x1000)
	base := build(0x8000)

	rep, err := Compare(target, base, Request{Symbol: "fn"})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if got := rep.MatchPercent(); got != 100.0 {
		for _, l := range rep.Diff.Lines {
			t.Logf("%v %v", l.Kind, l)
		}
		t.Fatalf("MatchPercent = %v, want 100", got)
	}
	if rep.Arch != asm.ArchMIPS {
		t.Errorf("arch = %v", rep.Arch)
	}
	if rep.TargetAddr != 0x1000 || rep.BaseAddr != 0x8000 {
		t.Errorf("addrs = %#x, %#x", rep.TargetAddr, rep.BaseAddr)
	}
}

func TestCompareRegisterChange(t *testing.T) {
	target := mipsObject(0, []uint32{
		0x00851021, // addu $v0, $a0, $a1
		0x03e00008, // jr $ra
	})
	base := mipsObject(0, []uint32{
		0x00c51021, // addu $v0, $a2, $a1
		0x03e00008, // jr $ra
	})

	rep, err := Compare(target, base, Request{Symbol: "fn"})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	lines := rep.Diff.Lines
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0].Kind != sdiff.Replace {
		t.Errorf("line 0 kind = %v, want replace", lines[0].Kind)
	}
	if len(lines[0].ChangedOps) != 1 || lines[0].ChangedOps[0] != 1 {
		t.Errorf("ChangedOps = %v, want [1]", lines[0].ChangedOps)
	}
	if lines[1].Kind != sdiff.Match {
		t.Errorf("line 1 kind = %v, want match", lines[1].Kind)
	}
	if got := rep.MatchPercent(); got != 50.0 {
		t.Errorf("MatchPercent = %v, want 50", got)
	}
}

func TestCompareMissingSymbol(t *testing.T) {
	o := mipsObject(0, []uint32{0x03e00008})
	if _, err := Compare(o, o, Request{Symbol: "absent"}); err == nil {
		t.Fatal("Compare on missing symbol succeeded")
	}
}

func TestCompareUnknownArch(t *testing.T) {
	o := mipsObject(0, []uint32{0x03e00008})
	o.Arch = asm.ArchUnknown
	if _, err := Compare(o, o, Request{Symbol: "fn"}); err == nil {
		t.Fatal("Compare without an architecture succeeded")
	}
}

func TestCompareArchOverride(t *testing.T) {
	o := mipsObject(0, []uint32{0x03e00008, 0x00000000})
	o.Arch = asm.ArchUnknown
	rep, err := Compare(o, o, Request{Symbol: "fn", Arch: asm.ArchMIPS})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if rep.Target[0].Mnemonic != "jr" {
		t.Errorf("decoded mnemonic = %q", rep.Target[0].Mnemonic)
	}
}

func TestCompareThumbBit(t *testing.T) {
	// An ARM symbol whose address has bit 0 set decodes as Thumb from
	// the even address.
	code := []byte{
		0x10, 0xb5, // push {r4, lr}
		0x10, 0xbd, // pop {r4, pc}
	}
	o := &objfile.Object{
		Format:    objfile.FormatELF,
		Arch:      asm.ArchARM,
		ByteOrder: binary.LittleEndian,
		Sections: []objfile.Section{{
			Name: ".text",
			Kind: objfile.SectCode,
			Addr: 0x8000,
			Size: 4,
			Data: code,
		}},
		Symbols: []objfile.Symbol{
			{Name: "fn", Addr: 0x8001, Size: 0, Section: 0, Kind: objfile.SymFunc},
		},
	}

	rep, err := Compare(o, o, Request{Symbol: "fn"})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(rep.Target) != 2 {
		t.Fatalf("decoded %d instructions, want 2", len(rep.Target))
	}
	if rep.Target[0].Mnemonic != "push" || rep.Target[1].Mnemonic != "pop" {
		t.Errorf("mnemonics = %q, %q", rep.Target[0].Mnemonic, rep.Target[1].Mnemonic)
	}
	if got := rep.MatchPercent(); got != 100.0 {
		t.Errorf("MatchPercent = %v, want 100", got)
	}
}

func TestCommonFunctions(t *testing.T) {
	target := mipsObject(0, []uint32{0x03e00008})
	base := mipsObject(0, []uint32{0x03e00008})
	base.Symbols[1].Name = "other"

	got := CommonFunctions(target, base)
	if len(got) != 1 || got[0] != "fn" {
		t.Errorf("CommonFunctions = %v, want [fn]", got)
	}
}
