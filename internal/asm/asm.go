// Package asm defines a common instruction representation used
// across architecture-specific decoders.
package asm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Arch identifies an instruction set supported by the decoders.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchX8664
	ArchMIPS
	ArchPPC
	ArchARM
	ArchThumb
)

// String returns the canonical lowercase name used on the CLI.
func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX8664:
		return "x86_64"
	case ArchMIPS:
		return "mips"
	case ArchPPC:
		return "ppc"
	case ArchARM:
		return "arm"
	case ArchThumb:
		return "thumb"
	}
	return "unknown"
}

// ParseArch maps a CLI architecture name to an Arch value.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86", "i386", "386":
		return ArchX86, nil
	case "x86_64", "x86-64", "amd64", "x64":
		return ArchX8664, nil
	case "mips":
		return ArchMIPS, nil
	case "ppc", "powerpc", "ppc32":
		return ArchPPC, nil
	case "arm":
		return ArchARM, nil
	case "thumb":
		return ArchThumb, nil
	}
	return ArchUnknown, fmt.Errorf("unknown architecture %q", s)
}

// SymKind classifies what a symbolic operand refers to after
// normalization.
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
		return "obj"
	case SymSection:
		return "sect"
	}
	return "sym"
}

// SymRef is an architecture- and address-independent token standing in
// for a relocated or symbol-resolved operand. Two SymRefs compare equal
// when both kind and first-occurrence id match, regardless of the raw
// addresses they replaced.
type SymRef struct {
	Kind SymKind
	ID   int
}

func (s SymRef) String() string {
	return fmt.Sprintf("%s#%d", s.Kind, s.ID)
}

// OperandKind tags the variant held by an Operand.
type OperandKind int

const (
	OpImm OperandKind = iota
	OpReg
	OpMem
	OpSym
	OpLabel
)

// Mem is a memory reference operand.
type Mem struct {
	Base    string
	Index   string
	Scale   int
	Disp    int64
	SymDisp *SymRef // set when the displacement was relocated
}

// Operand is a tagged variant over the operand forms the decoders emit.
// Before normalization symbolic forms do not occur; afterwards relocated
// immediates and displacements carry SymRef tokens and in-function branch
// targets carry Labels (offsets relative to the function start).
type Operand struct {
	Kind  OperandKind
	Imm   int64
	Reg   string
	Mem   Mem
	Sym   SymRef
	Label uint64
}

// Imm returns an immediate operand.
func ImmOp(v int64) Operand { return Operand{Kind: OpImm, Imm: v} }

// RegOp returns a register operand.
func RegOp(name string) Operand { return Operand{Kind: OpReg, Reg: name} }

// MemOp returns a memory reference operand.
func MemOp(m Mem) Operand { return Operand{Kind: OpMem, Mem: m} }

// SymOp returns a normalized symbolic operand.
func SymOp(ref SymRef) Operand { return Operand{Kind: OpSym, Sym: ref} }

// LabelOp returns a function-relative branch label operand.
func LabelOp(off uint64) Operand { return Operand{Kind: OpLabel, Label: off} }

// Equal reports whether two operands are identical. Addresses never
// participate: labels compare by relative offset and symbolic references
// by token.
func (o Operand) Equal(p Operand) bool {
	if o.Kind != p.Kind {
		return false
	}
	switch o.Kind {
	case OpImm:
		return o.Imm == p.Imm
	case OpReg:
		return o.Reg == p.Reg
	case OpMem:
		if o.Mem.Base != p.Mem.Base || o.Mem.Index != p.Mem.Index || o.Mem.Scale != p.Mem.Scale {
			return false
		}
		if (o.Mem.SymDisp == nil) != (p.Mem.SymDisp == nil) {
			return false
		}
		if o.Mem.SymDisp != nil {
			return *o.Mem.SymDisp == *p.Mem.SymDisp
		}
		return o.Mem.Disp == p.Mem.Disp
	case OpSym:
		return o.Sym == p.Sym
	case OpLabel:
		return o.Label == p.Label
	}
	return false
}

func (o Operand) String() string {
	switch o.Kind {
	case OpImm:
		if o.Imm < 0 {
			return fmt.Sprintf("-0x%x", -o.Imm)
		}
		return fmt.Sprintf("0x%x", o.Imm)
	case OpReg:
		return o.Reg
	case OpMem:
		var b strings.Builder
		if o.Mem.SymDisp != nil {
			b.WriteString(o.Mem.SymDisp.String())
		} else if o.Mem.Disp != 0 {
			if o.Mem.Disp < 0 {
				fmt.Fprintf(&b, "-0x%x", -o.Mem.Disp)
			} else {
				fmt.Fprintf(&b, "0x%x", o.Mem.Disp)
			}
		}
		b.WriteByte('(')
		b.WriteString(o.Mem.Base)
		if o.Mem.Index != "" {
			b.WriteByte(',')
			b.WriteString(o.Mem.Index)
			if o.Mem.Scale > 1 {
				fmt.Fprintf(&b, ",%d", o.Mem.Scale)
			}
		}
		b.WriteByte(')')
		return b.String()
	case OpSym:
		return o.Sym.String()
	case OpLabel:
		return fmt.Sprintf("loc_%x", o.Label)
	}
	return "?"
}

// Inst is a decoded instruction. Instructions are produced once per
// decode pass and treated as immutable afterwards.
type Inst struct {
	Addr     uint64
	Len      int
	Mnemonic string // lowercase
	Ops      []Operand

	// Branch marks branch/call instructions. Target holds the absolute
	// target address when statically resolvable; Indirect marks targets
	// that cannot be resolved (register branches).
	Branch   bool
	Call     bool
	Target   uint64
	Indirect bool

	// Unknown marks a sentinel record emitted for bytes the decoder
	// could not recognize. Raw is always set for sentinels.
	Unknown bool
	Raw     []byte
}

// TokenEqual reports whether two instructions form equal diff tokens:
// same mnemonic and pairwise-equal operands. Sentinel records compare by
// raw bytes. Addresses are never compared.
func (in *Inst) TokenEqual(other *Inst) bool {
	if in.Unknown || other.Unknown {
		return in.Unknown == other.Unknown && bytes.Equal(in.Raw, other.Raw)
	}
	if in.Mnemonic != other.Mnemonic || len(in.Ops) != len(other.Ops) {
		return false
	}
	for i := range in.Ops {
		if !in.Ops[i].Equal(other.Ops[i]) {
			return false
		}
	}
	return true
}

// Text renders the instruction in a generic "mnemonic op, op" form.
func (in *Inst) Text() string {
	if in.Unknown {
		return fmt.Sprintf(".word 0x%x", in.Raw)
	}
	if len(in.Ops) == 0 {
		return in.Mnemonic
	}
	parts := make([]string, len(in.Ops))
	for i, op := range in.Ops {
		parts[i] = op.String()
	}
	return in.Mnemonic + " " + strings.Join(parts, ", ")
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// ErrTruncated reports that a byte range ended mid-instruction. The
// decoder still returns the instructions preceding the truncation point,
// with a final sentinel covering the leftover bytes.
var ErrTruncated = errors.New("byte range truncated mid-instruction")

// Decoder decodes raw bytes into a Stream. One implementation exists per
// architecture; all honor the same contract: sequential decode from the
// start of code, sentinel Unknown records (never skipped bytes) for
// unrecognized encodings, and instruction lengths that sum exactly to
// len(code).
type Decoder interface {
	// Decode decodes code starting at the given virtual address. On a
	// truncated tail it returns the partial stream together with
	// ErrTruncated.
	Decode(code []byte, addr uint64) (Stream, error)

	// MinLen is the minimum instruction width in bytes; sentinel records
	// for undecodable bytes cover exactly this many bytes (or fewer at
	// the very end of a truncated range).
	MinLen() int

	Arch() Arch
}

// Sentinel builds an Unknown record covering raw at addr.
func Sentinel(addr uint64, raw []byte) Inst {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Inst{
		Addr:     addr,
		Len:      len(cp),
		Mnemonic: ".word",
		Unknown:  true,
		Raw:      cp,
	}
}
