// Package x86 decodes x86 and x86-64 machine code via
// golang.org/x/arch/x86/x86asm. Instruction length always comes from the
// same Decode call that yields the mnemonic, so offsets stay consistent
// for the variable-length encoding.
package x86

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"objdiff/internal/asm"
)

type decoder struct {
	mode int // 32 or 64
	arch asm.Arch
}

// New returns an x86 decoder. is64 selects 64-bit mode.
func New(is64 bool) asm.Decoder {
	if is64 {
		return &decoder{mode: 64, arch: asm.ArchX8664}
	}
	return &decoder{mode: 32, arch: asm.ArchX86}
}

func (d *decoder) MinLen() int    { return 1 }
func (d *decoder) Arch() asm.Arch { return d.arch }

func (d *decoder) Decode(code []byte, addr uint64) (asm.Stream, error) {
	var out asm.Stream
	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], d.mode)
		if err != nil || inst.Len == 0 {
			// Undecodable byte: cover the minimum width and keep going
			// so the rest of the function still diffs.
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:off+1]))
			off++
			continue
		}
		out = append(out, convert(inst, addr+uint64(off), code[off:off+inst.Len]))
		off += inst.Len
	}
	return out, nil
}

func convert(in x86asm.Inst, addr uint64, raw []byte) asm.Inst {
	out := asm.Inst{
		Addr:     addr,
		Len:      in.Len,
		Mnemonic: strings.ToLower(in.Op.String()),
		Raw:      append([]byte(nil), raw...),
	}
	isBranch, isCall := branchOp(in.Op)
	out.Branch = isBranch
	out.Call = isCall
	for _, arg := range in.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case x86asm.Reg:
			out.Ops = append(out.Ops, asm.RegOp(strings.ToLower(a.String())))
			if isBranch {
				out.Indirect = true
			}
		case x86asm.Imm:
			out.Ops = append(out.Ops, asm.ImmOp(int64(a)))
		case x86asm.Mem:
			m := asm.Mem{Scale: int(a.Scale), Disp: a.Disp}
			if a.Base != 0 {
				m.Base = strings.ToLower(a.Base.String())
			}
			if a.Index != 0 {
				m.Index = strings.ToLower(a.Index.String())
			}
			out.Ops = append(out.Ops, asm.MemOp(m))
			if isBranch {
				out.Indirect = true
			}
		case x86asm.Rel:
			target := addr + uint64(in.Len) + uint64(int64(a))
			out.Ops = append(out.Ops, asm.ImmOp(int64(target)))
			if isBranch {
				out.Target = target
			}
		}
	}
	return out
}

// branchOp classifies control-transfer opcodes. Conditional jumps,
// unconditional jumps and calls all count as branches for target
// resolution; RET does not carry a target.
func branchOp(op x86asm.Op) (branch, call bool) {
	switch op {
	case x86asm.CALL, x86asm.LCALL:
		return true, true
	case x86asm.JMP, x86asm.LJMP,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ,
		x86asm.JE, x86asm.JECXZ, x86asm.JG, x86asm.JGE, x86asm.JL,
		x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS,
		x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true, false
	}
	return false, false
}
