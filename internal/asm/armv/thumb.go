package armv

import (
	"encoding/binary"
	"strings"

	"objdiff/internal/asm"
)

// Thumb registers; r13-r15 get their conventional names.
var treg = [16]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

type thumbDecoder struct{}

// NewThumb returns a decoder for the 16-bit Thumb instruction set plus
// the 32-bit BL/BLX pair. Thumb-2 encodings outside that subset degrade
// to sentinel records.
func NewThumb() asm.Decoder {
	return thumbDecoder{}
}

func (thumbDecoder) MinLen() int    { return 2 }
func (thumbDecoder) Arch() asm.Arch { return asm.ArchThumb }

func (d thumbDecoder) Decode(code []byte, addr uint64) (asm.Stream, error) {
	var out asm.Stream
	off := 0
	for off < len(code) {
		if len(code)-off < 2 {
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:]))
			return out, asm.ErrTruncated
		}
		hw := binary.LittleEndian.Uint16(code[off : off+2])
		pc := addr + uint64(off)

		if wide(hw) {
			if len(code)-off < 4 {
				out = append(out, asm.Sentinel(pc, code[off:]))
				return out, asm.ErrTruncated
			}
			hw2 := binary.LittleEndian.Uint16(code[off+2 : off+4])
			inst, ok := decodeWide(hw, hw2, pc)
			if !ok {
				inst = asm.Sentinel(pc, code[off:off+4])
			}
			out = append(out, inst)
			off += 4
			continue
		}

		inst, ok := decodeNarrow(hw, pc)
		if !ok {
			inst = asm.Sentinel(pc, code[off:off+2])
		}
		out = append(out, inst)
		off += 2
	}
	return out, nil
}

// wide reports whether hw is the first halfword of a 32-bit encoding.
func wide(hw uint16) bool {
	return hw&0xf800 == 0xe800 || hw&0xf000 == 0xf000
}

func treg3(hw uint16, shift uint) asm.Operand { return asm.RegOp(treg[(hw>>shift)&7]) }

func t16(addr uint64, mnem string, ops ...asm.Operand) asm.Inst {
	return asm.Inst{Addr: addr, Len: 2, Mnemonic: mnem, Ops: ops}
}

var thumbALU = [16]string{
	"ands", "eors", "lsls", "lsrs", "asrs", "adcs", "sbcs", "rors",
	"tst", "negs", "cmp", "cmn", "orrs", "muls", "bics", "mvns",
}

var thumbCond = [14]string{
	"beq", "bne", "bcs", "bcc", "bmi", "bpl", "bvs", "bvc",
	"bhi", "bls", "bge", "blt", "bgt", "ble",
}

func decodeNarrow(hw uint16, pc uint64) (asm.Inst, bool) {
	switch {
	case hw&0xe000 == 0x0000: // shift imm / add-sub
		op := (hw >> 11) & 3
		if op != 3 {
			mnems := [3]string{"lsls", "lsrs", "asrs"}
			imm := int64((hw >> 6) & 31)
			return t16(pc, mnems[op], treg3(hw, 0), treg3(hw, 3), asm.ImmOp(imm)), true
		}
		mnem := "adds"
		if hw&(1<<9) != 0 {
			mnem = "subs"
		}
		if hw&(1<<10) != 0 { // immediate form
			return t16(pc, mnem, treg3(hw, 0), treg3(hw, 3), asm.ImmOp(int64((hw>>6)&7))), true
		}
		return t16(pc, mnem, treg3(hw, 0), treg3(hw, 3), treg3(hw, 6)), true

	case hw&0xe000 == 0x2000: // mov/cmp/add/sub imm8
		mnems := [4]string{"movs", "cmp", "adds", "subs"}
		return t16(pc, mnems[(hw>>11)&3], treg3(hw, 8), asm.ImmOp(int64(hw&0xff))), true

	case hw&0xfc00 == 0x4000: // ALU register
		mnem := thumbALU[(hw>>6)&15]
		return t16(pc, mnem, treg3(hw, 0), treg3(hw, 3)), true

	case hw&0xfc00 == 0x4400: // hi-register ops, bx/blx
		op := (hw >> 8) & 3
		rd := (hw & 7) | (hw>>4)&8
		rm := (hw >> 3) & 15
		switch op {
		case 0:
			return t16(pc, "add", asm.RegOp(treg[rd]), asm.RegOp(treg[rm])), true
		case 1:
			return t16(pc, "cmp", asm.RegOp(treg[rd]), asm.RegOp(treg[rm])), true
		case 2:
			return t16(pc, "mov", asm.RegOp(treg[rd]), asm.RegOp(treg[rm])), true
		case 3:
			mnem := "bx"
			call := false
			if hw&(1<<7) != 0 {
				mnem = "blx"
				call = true
			}
			in := t16(pc, mnem, asm.RegOp(treg[rm]))
			in.Branch = true
			in.Call = call
			in.Indirect = true
			return in, true
		}

	case hw&0xf800 == 0x4800: // ldr literal, pc-relative
		return t16(pc, "ldr", treg3(hw, 8),
			asm.MemOp(asm.Mem{Base: "pc", Disp: int64(hw&0xff) * 4})), true

	case hw&0xf000 == 0x5000: // load/store register offset
		mnems := [8]string{"str", "strh", "strb", "ldrsb", "ldr", "ldrh", "ldrb", "ldrsh"}
		mnem := mnems[(hw>>9)&7]
		return t16(pc, mnem, treg3(hw, 0),
			asm.MemOp(asm.Mem{Base: treg[(hw>>3)&7], Index: treg[(hw>>6)&7]})), true

	case hw&0xe000 == 0x6000: // ldr/str imm5 word/byte
		imm := int64((hw >> 6) & 31)
		var mnem string
		switch (hw >> 11) & 3 {
		case 0:
			mnem = "str"
			imm *= 4
		case 1:
			mnem = "ldr"
			imm *= 4
		case 2:
			mnem = "strb"
		case 3:
			mnem = "ldrb"
		}
		return t16(pc, mnem, treg3(hw, 0),
			asm.MemOp(asm.Mem{Base: treg[(hw>>3)&7], Disp: imm})), true

	case hw&0xf000 == 0x8000: // ldrh/strh imm
		mnem := "strh"
		if hw&(1<<11) != 0 {
			mnem = "ldrh"
		}
		return t16(pc, mnem, treg3(hw, 0),
			asm.MemOp(asm.Mem{Base: treg[(hw>>3)&7], Disp: int64((hw>>6)&31) * 2})), true

	case hw&0xf000 == 0x9000: // sp-relative load/store
		mnem := "str"
		if hw&(1<<11) != 0 {
			mnem = "ldr"
		}
		return t16(pc, mnem, treg3(hw, 8),
			asm.MemOp(asm.Mem{Base: "sp", Disp: int64(hw&0xff) * 4})), true

	case hw&0xf000 == 0xa000: // add rd, pc/sp, imm
		base := "pc"
		if hw&(1<<11) != 0 {
			base = "sp"
		}
		return t16(pc, "add", treg3(hw, 8), asm.RegOp(base), asm.ImmOp(int64(hw&0xff)*4)), true

	case hw&0xff00 == 0xb000: // add/sub sp, imm7
		imm := int64(hw&0x7f) * 4
		mnem := "add"
		if hw&(1<<7) != 0 {
			mnem = "sub"
		}
		return t16(pc, mnem, asm.RegOp("sp"), asm.ImmOp(imm)), true

	case hw&0xf600 == 0xb400: // push/pop
		mnem := "push"
		extra := "lr"
		if hw&(1<<11) != 0 {
			mnem = "pop"
			extra = "pc"
		}
		return t16(pc, mnem, asm.RegOp(regList(uint8(hw&0xff), hw&(1<<8) != 0, extra))), true

	case hw&0xf000 == 0xc000: // stmia/ldmia
		mnem := "stmia"
		if hw&(1<<11) != 0 {
			mnem = "ldmia"
		}
		return t16(pc, mnem, treg3(hw, 8), asm.RegOp(regList(uint8(hw&0xff), false, ""))), true

	case hw&0xf000 == 0xd000: // conditional branch / svc
		cond := (hw >> 8) & 15
		if cond == 15 {
			return t16(pc, "svc", asm.ImmOp(int64(hw&0xff))), true
		}
		if cond == 14 {
			return asm.Inst{}, false // permanently undefined
		}
		offset := int64(int8(hw&0xff)) * 2
		target := pc + 4 + uint64(offset)
		in := t16(pc, thumbCond[cond], asm.ImmOp(int64(target)))
		in.Branch = true
		in.Target = target
		return in, true

	case hw&0xf800 == 0xe000: // unconditional branch
		offset := int64(hw&0x7ff) << 1
		if offset&(1<<11) != 0 {
			offset |= ^int64(1<<12 - 1)
		}
		target := pc + 4 + uint64(offset)
		in := t16(pc, "b", asm.ImmOp(int64(target)))
		in.Branch = true
		in.Target = target
		return in, true
	}
	return asm.Inst{}, false
}

// decodeWide handles the 32-bit BL/BLX pair; other Thumb-2 encodings are
// left to the sentinel path.
func decodeWide(hw, hw2 uint16, pc uint64) (asm.Inst, bool) {
	if hw&0xf800 != 0xf000 {
		return asm.Inst{}, false
	}
	blx := hw2&0xf800 == 0xe800
	bl := hw2&0xf800 == 0xf800
	if !bl && !blx {
		return asm.Inst{}, false
	}
	offHi := int64(hw & 0x7ff)
	if offHi&(1<<10) != 0 {
		offHi |= ^int64(1<<11 - 1)
	}
	offset := offHi<<12 | int64(hw2&0x7ff)<<1
	target := pc + 4 + uint64(offset)
	mnem := "bl"
	if blx {
		mnem = "blx"
		target &^= 3
	}
	in := asm.Inst{Addr: pc, Len: 4, Mnemonic: mnem, Ops: []asm.Operand{asm.ImmOp(int64(target))}}
	in.Branch = true
	in.Call = true
	in.Target = target
	return in, true
}

func regList(bits uint8, withExtra bool, extra string) string {
	var regs []string
	for i := 0; i < 8; i++ {
		if bits&(1<<i) != 0 {
			regs = append(regs, treg[i])
		}
	}
	if withExtra {
		regs = append(regs, extra)
	}
	return "{" + strings.Join(regs, ",") + "}"
}
