// Package armv decodes ARM (A32) machine code via
// golang.org/x/arch/arm/armasm and carries a hand-rolled decoder for the
// Thumb (T16/BL) subset, which x/arch does not cover. The instruction-set
// mode is always chosen by the caller; nothing here guesses interworking
// state from the bytes.
package armv

import (
	"strings"

	"golang.org/x/arch/arm/armasm"

	"objdiff/internal/asm"
)

type armDecoder struct{}

// New returns an A32 decoder. Thumb code uses NewThumb.
func New() asm.Decoder {
	return armDecoder{}
}

func (armDecoder) MinLen() int    { return 4 }
func (armDecoder) Arch() asm.Arch { return asm.ArchARM }

func (d armDecoder) Decode(code []byte, addr uint64) (asm.Stream, error) {
	var out asm.Stream
	off := 0
	for off < len(code) {
		if len(code)-off < 4 {
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:]))
			return out, asm.ErrTruncated
		}
		inst, err := armasm.Decode(code[off:off+4], armasm.ModeARM)
		if err != nil || inst.Len == 0 {
			out = append(out, asm.Sentinel(addr+uint64(off), code[off:off+4]))
			off += 4
			continue
		}
		out = append(out, convert(inst, addr+uint64(off), code[off:off+4]))
		off += 4
	}
	return out, nil
}

func convert(in armasm.Inst, addr uint64, raw []byte) asm.Inst {
	mnem := strings.ToLower(in.Op.String())
	out := asm.Inst{
		Addr:     addr,
		Len:      in.Len,
		Mnemonic: mnem,
		Raw:      append([]byte(nil), raw...),
	}
	out.Branch, out.Call = armBranchOp(mnem)
	for _, arg := range in.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case armasm.Reg:
			out.Ops = append(out.Ops, asm.RegOp(strings.ToLower(a.String())))
			if out.Branch {
				out.Indirect = true
			}
		case armasm.Imm:
			out.Ops = append(out.Ops, asm.ImmOp(int64(a)))
		case armasm.ImmAlt:
			out.Ops = append(out.Ops, asm.ImmOp(int64(a.Imm())))
		case armasm.PCRel:
			// ARM reads PC as the instruction address plus 8.
			target := addr + 8 + uint64(int64(a))
			out.Ops = append(out.Ops, asm.ImmOp(int64(target)))
			if out.Branch {
				out.Target = target
			}
		case armasm.Mem:
			m := asm.Mem{Base: strings.ToLower(a.Base.String())}
			// Sign is nonzero only for register-index forms; immediate
			// offsets carry their sign in Offset already.
			if a.Sign != 0 {
				m.Index = strings.ToLower(a.Index.String())
				if a.Sign < 0 {
					m.Index = "-" + m.Index
				}
			} else {
				m.Disp = int64(a.Offset)
			}
			out.Ops = append(out.Ops, asm.MemOp(m))
		default:
			// Register lists, shifts and the rest keep their canonical
			// textual spelling; they diff fine as opaque register names.
			out.Ops = append(out.Ops, asm.RegOp(strings.ToLower(arg.String())))
		}
	}
	return out
}

func armBranchOp(mnem string) (branch, call bool) {
	base := mnem
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "b", "bx":
		return true, false
	case "bl", "blx":
		return true, true
	}
	return false, false
}
