// Package ppc decodes 32-bit PowerPC machine code via
// golang.org/x/arch/ppc64/ppc64asm. The fixed 4-byte width keeps the
// decode loop trivial; everything interesting is operand conversion.
package ppc

import (
	"encoding/binary"
	"strings"

	"golang.org/x/arch/ppc64/ppc64asm"

	"objdiff/internal/asm"
)

type decoder struct {
	order binary.ByteOrder
}

// New returns a PowerPC decoder reading words in the given byte order.
// The GameCube/Wii toolchains this is typically pointed at are
// big-endian.
func New(order binary.ByteOrder) asm.Decoder {
	return &decoder{order: order}
}

func (d *decoder) MinLen() int    { return 4 }
func (d *decoder) Arch() asm.Arch { return asm.ArchPPC }

func (d *decoder) Decode(code []byte, addr uint64) (asm.Stream, error) {
	var out asm.Stream
	off := 0
	for off < len(code) {
		if len(code)-off < 4 {
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:]))
			return out, asm.ErrTruncated
		}
		inst, err := ppc64asm.Decode(code[off:off+4], d.order)
		if err != nil || inst.Op == 0 {
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:off+4]))
			off += 4
			continue
		}
		out = append(out, convert(inst, addr+uint64(off), code[off:off+4]))
		off += 4
	}
	return out, nil
}

func convert(in ppc64asm.Inst, addr uint64, raw []byte) asm.Inst {
	mnem := strings.ToLower(in.Op.String())
	out := asm.Inst{
		Addr:     addr,
		Len:      4,
		Mnemonic: mnem,
		Raw:      append([]byte(nil), raw...),
	}
	out.Branch, out.Call = branchOp(mnem)
	for i := 0; i < len(in.Args); i++ {
		arg := in.Args[i]
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case ppc64asm.Reg:
			out.Ops = append(out.Ops, asm.RegOp(strings.ToLower(a.String())))
		case ppc64asm.CondReg:
			out.Ops = append(out.Ops, asm.RegOp(strings.ToLower(a.String())))
		case ppc64asm.SpReg:
			out.Ops = append(out.Ops, asm.RegOp(strings.ToLower(a.String())))
		case ppc64asm.Imm:
			out.Ops = append(out.Ops, asm.ImmOp(int64(a)))
		case ppc64asm.Offset:
			// Offset is always followed by its base register; fold the
			// pair into one memory operand.
			m := asm.Mem{Disp: int64(a)}
			if i+1 < len(in.Args) {
				if base, ok := in.Args[i+1].(ppc64asm.Reg); ok {
					m.Base = strings.ToLower(base.String())
					i++
				}
			}
			out.Ops = append(out.Ops, asm.MemOp(m))
		case ppc64asm.PCRel:
			target := addr + uint64(int64(a))
			out.Ops = append(out.Ops, asm.ImmOp(int64(target)))
			if out.Branch {
				out.Target = target
			}
		case ppc64asm.Label:
			out.Ops = append(out.Ops, asm.ImmOp(int64(a)))
			if out.Branch {
				out.Target = uint64(a)
			}
		}
	}
	// bclr/bcctr and friends branch through a register
	if out.Branch && (strings.Contains(mnem, "ctr") || strings.Contains(mnem, "lr")) {
		out.Indirect = true
	}
	return out
}

// Extended conditional-branch mnemonic stems. Anything else starting
// with "b" (bpermd, bcdadd, brd and friends) is an ALU instruction.
var condBranchStems = []string{
	"bdnz", "bdz", "beq", "bne", "blt", "bgt", "ble", "bge", "bso", "bns", "bun",
}

func branchOp(mnem string) (branch, call bool) {
	switch mnem {
	case "b", "ba", "bc", "bca", "bclr", "bcctr", "bctar", "blr", "bctr":
		return true, false
	case "bl", "bla", "bcl", "bcla", "bclrl", "bcctrl", "bctarl", "bctrl", "blrl":
		return true, true
	}
	for _, stem := range condBranchStems {
		if strings.HasPrefix(mnem, stem) {
			return true, strings.HasSuffix(mnem, "l") && !strings.HasSuffix(mnem, "lr")
		}
	}
	return false, false
}
