// Package compare is the core facade: given two parsed objects and a
// function name it decodes, normalizes, and diffs. Everything here is a
// pure function of its inputs, with no hidden state and no I/O, so
// callers are free to run one Compare per goroutine over a whole
// object pair.
package compare

import (
	"encoding/binary"
	"errors"
	"fmt"

	"objdiff/internal/asm"
	"objdiff/internal/asm/armv"
	"objdiff/internal/asm/mips"
	"objdiff/internal/asm/ppc"
	"objdiff/internal/asm/x86"
	"objdiff/internal/mangle"
	"objdiff/internal/norm"
	"objdiff/internal/objfile"
	"objdiff/internal/sdiff"
)

// Request names one diff to perform. Arch may be left asm.ArchUnknown to
// use the architecture recorded in the target object; the two objects
// must share an instruction set either way.
type Request struct {
	Arch   asm.Arch
	Symbol string
	Mangle mangle.Scheme
}

// Report is the result of one function diff.
type Report struct {
	Symbol    string
	Demangled string
	Arch      asm.Arch

	TargetAddr uint64
	BaseAddr   uint64

	// Normalized instruction streams, as diffed.
	Target asm.Stream
	Base   asm.Stream

	Diff *sdiff.Result

	// Truncation markers: non-nil when a side decoded only partially
	// (asm.ErrTruncated). The partial diff is still present.
	TargetErr error
	BaseErr   error
}

// MatchPercent is a convenience passthrough for batch scoring.
func (r *Report) MatchPercent() float64 { return r.Diff.MatchPercent() }

// Compare diffs the named function between target and base.
func Compare(target, base *objfile.Object, req Request) (*Report, error) {
	arch := req.Arch
	if arch == asm.ArchUnknown {
		arch = target.Arch
	}
	if arch == asm.ArchUnknown {
		return nil, errors.New("architecture not specified and not recorded in target object")
	}

	tsym, ok := target.SymbolByName(req.Symbol)
	if !ok {
		return nil, fmt.Errorf("symbol %q not found in target", req.Symbol)
	}
	bsym, ok := base.SymbolByName(req.Symbol)
	if !ok {
		return nil, fmt.Errorf("symbol %q not found in base", req.Symbol)
	}

	tstream, terr, err := decodeSide(target, tsym, arch)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	bstream, berr, err := decodeSide(base, bsym, arch)
	if err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}

	return &Report{
		Symbol:     req.Symbol,
		Demangled:  mangle.Demangle(req.Symbol, req.Mangle),
		Arch:       arch,
		TargetAddr: tsym.Addr,
		BaseAddr:   bsym.Addr,
		Target:     tstream,
		Base:       bstream,
		Diff:       sdiff.Diff(tstream, bstream),
		TargetErr:  terr,
		BaseErr:    berr,
	}, nil
}

// decodeSide decodes and normalizes one object's copy of the function.
// A truncated tail is not fatal: the partial stream is returned together
// with the truncation marker.
func decodeSide(o *objfile.Object, sym objfile.Symbol, arch asm.Arch) (asm.Stream, error, error) {
	addr := sym.Addr
	// ELF encodes Thumb entry points with the low address bit set; that
	// is symbol metadata, not a heuristic over the bytes.
	if arch == asm.ArchARM && addr&1 == 1 {
		arch = asm.ArchThumb
		addr &^= 1
		sym.Addr = addr
	}

	dec, err := decoderFor(arch, o.ByteOrder)
	if err != nil {
		return nil, nil, err
	}

	code, relocs, err := o.FuncRange(sym)
	if err != nil {
		return nil, nil, err
	}

	stream, decErr := dec.Decode(code, addr)
	if decErr != nil && !errors.Is(decErr, asm.ErrTruncated) {
		return nil, nil, decErr
	}

	normed := norm.Normalize(stream, relocs, o.Symbols, addr, uint64(len(code)))
	return normed, decErr, nil
}

func decoderFor(arch asm.Arch, order binary.ByteOrder) (asm.Decoder, error) {
	if order == nil {
		order = binary.LittleEndian
	}
	switch arch {
	case asm.ArchX86:
		return x86.New(false), nil
	case asm.ArchX8664:
		return x86.New(true), nil
	case asm.ArchMIPS:
		return mips.New(order), nil
	case asm.ArchPPC:
		return ppc.New(order), nil
	case asm.ArchARM:
		return armv.New(), nil
	case asm.ArchThumb:
		return armv.NewThumb(), nil
	}
	return nil, fmt.Errorf("no decoder for architecture %s", arch)
}

// CommonFunctions returns the names of function symbols defined in both
// objects, in target order, for whole-object comparisons.
func CommonFunctions(target, base *objfile.Object) []string {
	baseNames := make(map[string]bool)
	for _, s := range base.FuncSymbols() {
		baseNames[s.Name] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, s := range target.FuncSymbols() {
		if baseNames[s.Name] && !seen[s.Name] {
			out = append(out, s.Name)
			seen[s.Name] = true
		}
	}
	return out
}
