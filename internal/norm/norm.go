// Package norm rewrites address- and relocation-dependent operands into
// symbolic tokens so that two compilations of the same function diff as
// equal regardless of where the linker happened to place things.
//
// Token ids are assigned in first-occurrence order within the sequence
// being normalized, independently for target and base: both sides' first
// external reference becomes token 0, their second becomes token 1, and
// so on. That makes the scheme insensitive to absolute addresses and to
// symbol table ordering, which is exactly the equivalence a decomp diff
// needs. Normalization is a pure function; identical inputs always
// produce identical output.
package norm

import (
	"objdiff/internal/asm"
	"objdiff/internal/objfile"
)

type tokenKey struct {
	sym    int
	addend int64
}

type normalizer struct {
	ids  map[tokenKey]asm.SymRef
	next int
	syms []objfile.Symbol
}

// Normalize returns a rewritten copy of stream. relocs must be rebased
// to function-relative offsets (see objfile.FuncRange); start and size
// delimit the function's address range so in-function branch targets can
// be turned into relative labels. The input stream is never mutated.
func Normalize(stream asm.Stream, relocs []objfile.Reloc, syms []objfile.Symbol, start, size uint64) asm.Stream {
	n := &normalizer{
		ids:  make(map[tokenKey]asm.SymRef),
		syms: syms,
	}

	// Relocations grouped by the instruction that contains them, in
	// offset order so multi-reloc instructions rewrite deterministically.
	out := make(asm.Stream, len(stream))
	for i := range stream {
		in := stream[i]
		cp := in
		cp.Ops = append([]asm.Operand(nil), in.Ops...)

		instOff := in.Addr - start
		next, relocated := 0, false
		for _, r := range relocs {
			if r.Off >= instOff && r.Off < instOff+uint64(in.Len) {
				ref := n.token(tokenKey{sym: r.Sym, addend: r.Addend})
				next = rewriteReloc(&cp, ref, next)
				relocated = true
			}
		}

		if !relocated && cp.Branch && !cp.Indirect {
			n.rewriteBranch(&cp, start, size)
		}
		out[i] = cp
	}
	return out
}

// token returns the SymRef for key, assigning the next id on first
// occurrence.
func (n *normalizer) token(key tokenKey) asm.SymRef {
	if ref, ok := n.ids[key]; ok {
		return ref
	}
	kind := asm.SymUnknown
	if key.sym >= 0 && key.sym < len(n.syms) {
		kind = symKind(n.syms[key.sym].Kind)
	}
	ref := asm.SymRef{Kind: kind, ID: n.next}
	n.next++
	n.ids[key] = ref
	return ref
}

// rewriteReloc replaces the first relocatable operand (immediate or
// memory displacement) at or after index from with ref, and returns the
// index the next relocation on the same instruction should resume at.
// Scanning by position rather than by count keeps the bookkeeping
// correct after an immediate has already been rewritten into a symbol.
func rewriteReloc(in *asm.Inst, ref asm.SymRef, from int) int {
	for i := from; i < len(in.Ops); i++ {
		switch in.Ops[i].Kind {
		case asm.OpImm:
			in.Ops[i] = asm.SymOp(ref)
			return i + 1
		case asm.OpMem:
			m := in.Ops[i].Mem
			m.SymDisp = &ref
			m.Disp = 0
			in.Ops[i] = asm.MemOp(m)
			return i + 1
		}
	}
	// No relocatable operand: attach the token as a trailing operand so
	// the reference still participates in comparison.
	in.Ops = append(in.Ops, asm.SymOp(ref))
	return len(in.Ops)
}

// rewriteBranch handles branch targets that carry no relocation (linked
// images). Targets inside the function become relative labels; targets
// that hit a symbol elsewhere become tokens; anything else stays a
// literal address and diffs as one.
func (n *normalizer) rewriteBranch(in *asm.Inst, start, size uint64) {
	if in.Target >= start && in.Target < start+size {
		replaceTargetOp(in, asm.LabelOp(in.Target-start))
		return
	}
	if idx, ok := n.symbolAt(in.Target); ok {
		replaceTargetOp(in, asm.SymOp(n.token(tokenKey{sym: idx})))
	}
}

func replaceTargetOp(in *asm.Inst, op asm.Operand) {
	for i := range in.Ops {
		if in.Ops[i].Kind == asm.OpImm && uint64(in.Ops[i].Imm) == in.Target {
			in.Ops[i] = op
			return
		}
	}
}

// symbolAt finds the symbol table entry whose range covers addr,
// preferring an exact address match. Ties go to the lowest index so the
// lookup stays deterministic.
func (n *normalizer) symbolAt(addr uint64) (int, bool) {
	containing := -1
	for i, s := range n.syms {
		if s.Section < 0 {
			continue
		}
		if s.Addr == addr {
			return i, true
		}
		if containing < 0 && s.Size > 0 && addr > s.Addr && addr < s.Addr+s.Size {
			containing = i
		}
	}
	if containing >= 0 {
		return containing, true
	}
	return -1, false
}

func symKind(k objfile.SymKind) asm.SymKind {
	switch k {
	case objfile.SymFunc:
		return asm.SymFunc
	case objfile.SymObject:
		return asm.SymObject
	case objfile.SymSection:
		return asm.SymSection
	}
	return asm.SymUnknown
}
