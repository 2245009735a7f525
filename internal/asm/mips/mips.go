// Package mips decodes MIPS I/II machine code into the common
// instruction representation. Both byte orders are supported since the
// targets this is used against split roughly evenly between big-endian
// (N64-era) and little-endian (PS1-era) toolchains.
package mips

import (
	"encoding/binary"
	"fmt"

	"objdiff/internal/asm"
)

// register names, o32 convention
var gpr = [32]string{
	"$zero", "$at", "$v0", "$v1", "$a0", "$a1", "$a2", "$a3",
	"$t0", "$t1", "$t2", "$t3", "$t4", "$t5", "$t6", "$t7",
	"$s0", "$s1", "$s2", "$s3", "$s4", "$s5", "$s6", "$s7",
	"$t8", "$t9", "$k0", "$k1", "$gp", "$sp", "$fp", "$ra",
}

func fpr(n uint32) string { return fmt.Sprintf("$f%d", n) }

type decoder struct {
	order binary.ByteOrder
}

// New returns a MIPS decoder reading words in the given byte order.
func New(order binary.ByteOrder) asm.Decoder {
	return &decoder{order: order}
}

func (d *decoder) MinLen() int    { return 4 }
func (d *decoder) Arch() asm.Arch { return asm.ArchMIPS }

func (d *decoder) Decode(code []byte, addr uint64) (asm.Stream, error) {
	var out asm.Stream
	off := 0
	for off < len(code) {
		if len(code)-off < 4 {
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:]))
			return out, asm.ErrTruncated
		}
		word := d.order.Uint32(code[off : off+4])
		inst, ok := decodeWord(word, addr+uint64(off))
		if !ok {
			inst = asm.Sentinel(addr+uint64(off), code[off:off+4])
		}
		out = append(out, inst)
		off += 4
	}
	return out, nil
}

// field accessors
func rs(w uint32) uint32    { return (w >> 21) & 31 }
func rt(w uint32) uint32    { return (w >> 16) & 31 }
func rd(w uint32) uint32    { return (w >> 11) & 31 }
func sa(w uint32) uint32    { return (w >> 6) & 31 }
func imm16(w uint32) int64  { return int64(int16(w & 0xffff)) }
func uimm16(w uint32) int64 { return int64(w & 0xffff) }

// branchTarget computes the absolute target of a 16-bit relative branch.
func branchTarget(w uint32, pc uint64) uint64 {
	return pc + 4 + uint64(int64(imm16(w))<<2)
}

func reg(n uint32) asm.Operand  { return asm.RegOp(gpr[n]) }
func freg(n uint32) asm.Operand { return asm.RegOp(fpr(n)) }

func mem(w uint32) asm.Operand {
	return asm.MemOp(asm.Mem{Base: gpr[rs(w)], Disp: imm16(w)})
}

func inst(addr uint64, mnem string, ops ...asm.Operand) asm.Inst {
	return asm.Inst{Addr: addr, Len: 4, Mnemonic: mnem, Ops: ops}
}

func branch(addr uint64, mnem string, target uint64, ops ...asm.Operand) asm.Inst {
	in := inst(addr, mnem, append(ops, asm.ImmOp(int64(target)))...)
	in.Branch = true
	in.Target = target
	return in
}

func decodeWord(w uint32, pc uint64) (asm.Inst, bool) {
	if w == 0 {
		return inst(pc, "nop"), true
	}
	op := w >> 26
	switch op {
	case 0:
		return decodeSpecial(w, pc)
	case 1:
		return decodeRegimm(w, pc)
	case 2, 3: // j, jal
		target := (pc+4)&0xf0000000 | uint64((w&0x03ffffff)<<2)
		mnem := "j"
		call := false
		if op == 3 {
			mnem = "jal"
			call = true
		}
		in := branch(pc, mnem, target)
		in.Call = call
		return in, true
	case 4, 20: // beq, beql
		mnem := "beq"
		if op == 20 {
			mnem = "beql"
		}
		if rs(w) == 0 && rt(w) == 0 && op == 4 {
			return branch(pc, "b", branchTarget(w, pc)), true
		}
		return branch(pc, mnem, branchTarget(w, pc), reg(rs(w)), reg(rt(w))), true
	case 5, 21: // bne, bnel
		mnem := "bne"
		if op == 21 {
			mnem = "bnel"
		}
		return branch(pc, mnem, branchTarget(w, pc), reg(rs(w)), reg(rt(w))), true
	case 6, 22: // blez, blezl
		mnem := "blez"
		if op == 22 {
			mnem = "blezl"
		}
		return branch(pc, mnem, branchTarget(w, pc), reg(rs(w))), true
	case 7, 23: // bgtz, bgtzl
		mnem := "bgtz"
		if op == 23 {
			mnem = "bgtzl"
		}
		return branch(pc, mnem, branchTarget(w, pc), reg(rs(w))), true
	case 8:
		return inst(pc, "addi", reg(rt(w)), reg(rs(w)), asm.ImmOp(imm16(w))), true
	case 9:
		return inst(pc, "addiu", reg(rt(w)), reg(rs(w)), asm.ImmOp(imm16(w))), true
	case 10:
		return inst(pc, "slti", reg(rt(w)), reg(rs(w)), asm.ImmOp(imm16(w))), true
	case 11:
		return inst(pc, "sltiu", reg(rt(w)), reg(rs(w)), asm.ImmOp(imm16(w))), true
	case 12:
		return inst(pc, "andi", reg(rt(w)), reg(rs(w)), asm.ImmOp(uimm16(w))), true
	case 13:
		return inst(pc, "ori", reg(rt(w)), reg(rs(w)), asm.ImmOp(uimm16(w))), true
	case 14:
		return inst(pc, "xori", reg(rt(w)), reg(rs(w)), asm.ImmOp(uimm16(w))), true
	case 15:
		return inst(pc, "lui", reg(rt(w)), asm.ImmOp(uimm16(w))), true
	case 16: // cop0
		switch rs(w) {
		case 0:
			return inst(pc, "mfc0", reg(rt(w)), asm.ImmOp(int64(rd(w)))), true
		case 4:
			return inst(pc, "mtc0", reg(rt(w)), asm.ImmOp(int64(rd(w)))), true
		}
		return asm.Inst{}, false
	case 17:
		return decodeCop1(w, pc)
	case 28: // special2 (MIPS32 mul)
		if w&0x3f == 2 {
			return inst(pc, "mul", reg(rd(w)), reg(rs(w)), reg(rt(w))), true
		}
		return asm.Inst{}, false
	case 32:
		return inst(pc, "lb", reg(rt(w)), mem(w)), true
	case 33:
		return inst(pc, "lh", reg(rt(w)), mem(w)), true
	case 34:
		return inst(pc, "lwl", reg(rt(w)), mem(w)), true
	case 35:
		return inst(pc, "lw", reg(rt(w)), mem(w)), true
	case 36:
		return inst(pc, "lbu", reg(rt(w)), mem(w)), true
	case 37:
		return inst(pc, "lhu", reg(rt(w)), mem(w)), true
	case 38:
		return inst(pc, "lwr", reg(rt(w)), mem(w)), true
	case 40:
		return inst(pc, "sb", reg(rt(w)), mem(w)), true
	case 41:
		return inst(pc, "sh", reg(rt(w)), mem(w)), true
	case 42:
		return inst(pc, "swl", reg(rt(w)), mem(w)), true
	case 43:
		return inst(pc, "sw", reg(rt(w)), mem(w)), true
	case 46:
		return inst(pc, "swr", reg(rt(w)), mem(w)), true
	case 48:
		return inst(pc, "ll", reg(rt(w)), mem(w)), true
	case 49:
		return inst(pc, "lwc1", freg(rt(w)), mem(w)), true
	case 53:
		return inst(pc, "ldc1", freg(rt(w)), mem(w)), true
	case 56:
		return inst(pc, "sc", reg(rt(w)), mem(w)), true
	case 57:
		return inst(pc, "swc1", freg(rt(w)), mem(w)), true
	case 61:
		return inst(pc, "sdc1", freg(rt(w)), mem(w)), true
	}
	return asm.Inst{}, false
}

var specialNames = map[uint32]string{
	32: "add", 33: "addu", 34: "sub", 35: "subu",
	36: "and", 37: "or", 38: "xor", 39: "nor",
	42: "slt", 43: "sltu",
}

func decodeSpecial(w uint32, pc uint64) (asm.Inst, bool) {
	funct := w & 0x3f
	switch funct {
	case 0:
		return inst(pc, "sll", reg(rd(w)), reg(rt(w)), asm.ImmOp(int64(sa(w)))), true
	case 2:
		return inst(pc, "srl", reg(rd(w)), reg(rt(w)), asm.ImmOp(int64(sa(w)))), true
	case 3:
		return inst(pc, "sra", reg(rd(w)), reg(rt(w)), asm.ImmOp(int64(sa(w)))), true
	case 4:
		return inst(pc, "sllv", reg(rd(w)), reg(rt(w)), reg(rs(w))), true
	case 6:
		return inst(pc, "srlv", reg(rd(w)), reg(rt(w)), reg(rs(w))), true
	case 7:
		return inst(pc, "srav", reg(rd(w)), reg(rt(w)), reg(rs(w))), true
	case 8:
		in := inst(pc, "jr", reg(rs(w)))
		in.Branch = true
		in.Indirect = true
		return in, true
	case 9:
		var in asm.Inst
		if rd(w) == 31 {
			in = inst(pc, "jalr", reg(rs(w)))
		} else {
			in = inst(pc, "jalr", reg(rd(w)), reg(rs(w)))
		}
		in.Branch = true
		in.Call = true
		in.Indirect = true
		return in, true
	case 12:
		return inst(pc, "syscall"), true
	case 13:
		return inst(pc, "break"), true
	case 15:
		return inst(pc, "sync"), true
	case 16:
		return inst(pc, "mfhi", reg(rd(w))), true
	case 17:
		return inst(pc, "mthi", reg(rs(w))), true
	case 18:
		return inst(pc, "mflo", reg(rd(w))), true
	case 19:
		return inst(pc, "mtlo", reg(rs(w))), true
	case 24:
		return inst(pc, "mult", reg(rs(w)), reg(rt(w))), true
	case 25:
		return inst(pc, "multu", reg(rs(w)), reg(rt(w))), true
	case 26:
		return inst(pc, "div", reg(rs(w)), reg(rt(w))), true
	case 27:
		return inst(pc, "divu", reg(rs(w)), reg(rt(w))), true
	}
	if name, ok := specialNames[funct]; ok {
		// move is the canonical spelling for addu rd, rs, $zero
		if funct == 33 && rt(w) == 0 {
			return inst(pc, "move", reg(rd(w)), reg(rs(w))), true
		}
		return inst(pc, name, reg(rd(w)), reg(rs(w)), reg(rt(w))), true
	}
	return asm.Inst{}, false
}

func decodeRegimm(w uint32, pc uint64) (asm.Inst, bool) {
	var mnem string
	call := false
	switch rt(w) {
	case 0:
		mnem = "bltz"
	case 1:
		mnem = "bgez"
	case 2:
		mnem = "bltzl"
	case 3:
		mnem = "bgezl"
	case 16:
		mnem, call = "bltzal", true
	case 17:
		mnem, call = "bgezal", true
	default:
		return asm.Inst{}, false
	}
	in := branch(pc, mnem, branchTarget(w, pc), reg(rs(w)))
	in.Call = call
	return in, true
}

var cop1Fmt = map[uint32]string{16: "s", 17: "d", 20: "w"}

var cop1Arith = map[uint32]string{
	0: "add", 1: "sub", 2: "mul", 3: "div",
	4: "sqrt", 5: "abs", 6: "mov", 7: "neg",
	32: "cvt.s", 33: "cvt.d", 36: "cvt.w",
	50: "c.eq", 60: "c.lt", 62: "c.le",
}

func decodeCop1(w uint32, pc uint64) (asm.Inst, bool) {
	switch rs(w) {
	case 0:
		return inst(pc, "mfc1", reg(rt(w)), freg(rd(w))), true
	case 2:
		return inst(pc, "cfc1", reg(rt(w)), freg(rd(w))), true
	case 4:
		return inst(pc, "mtc1", reg(rt(w)), freg(rd(w))), true
	case 6:
		return inst(pc, "ctc1", reg(rt(w)), freg(rd(w))), true
	case 8:
		mnem := "bc1f"
		if rt(w)&1 != 0 {
			mnem = "bc1t"
		}
		return branch(pc, mnem, branchTarget(w, pc)), true
	}
	fmtSuffix, ok := cop1Fmt[rs(w)]
	if !ok {
		return asm.Inst{}, false
	}
	name, ok := cop1Arith[w&0x3f]
	if !ok {
		return asm.Inst{}, false
	}
	mnem := name + "." + fmtSuffix
	fd := sa(w)
	fs := rd(w)
	ft := rt(w)
	switch w & 0x3f {
	case 4, 5, 6, 7, 32, 33, 36: // unary
		return inst(pc, mnem, freg(fd), freg(fs)), true
	case 50, 60, 62: // compares write the condition flag
		return inst(pc, mnem, freg(fs), freg(ft)), true
	}
	return inst(pc, mnem, freg(fd), freg(fs), freg(ft)), true
}
