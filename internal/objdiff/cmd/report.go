package cmd

import (
	"fmt"

	"objdiff/internal/compare"
	"objdiff/internal/ui/render"
)

// JSONReport is the machine-readable diff report consumed by frontends
// and CI scoring. The schema command publishes its JSON schema.
type JSONReport struct {
	Symbol       string     `json:"symbol" jsonschema:"title=Symbol,description=Mangled function symbol name"`
	Demangled    string     `json:"demangled,omitempty" jsonschema:"title=Demangled,description=Readable form of the symbol name"`
	Arch         string     `json:"arch" jsonschema:"title=Architecture,description=Instruction set used for decoding"`
	TargetAddr   string     `json:"target_addr" jsonschema:"title=Target Address"`
	BaseAddr     string     `json:"base_addr" jsonschema:"title=Base Address"`
	MatchPercent float64    `json:"match_percent" jsonschema:"title=Match Percent,description=Share of target instructions matched exactly"`
	Lines        []JSONLine `json:"lines" jsonschema:"title=Diff Lines"`

	TargetTruncated bool `json:"target_truncated,omitempty" jsonschema:"description=Target decoding stopped mid-instruction"`
	BaseTruncated   bool `json:"base_truncated,omitempty" jsonschema:"description=Base decoding stopped mid-instruction"`
}

// JSONLine is one aligned row of the diff.
type JSONLine struct {
	Kind       string `json:"kind" jsonschema:"enum=match,enum=insert,enum=delete,enum=replace"`
	Target     string `json:"target,omitempty"`
	Base       string `json:"base,omitempty"`
	TargetAddr string `json:"target_addr,omitempty"`
	BaseAddr   string `json:"base_addr,omitempty"`
	TargetLine int    `json:"target_line,omitempty"`
	BaseLine   int    `json:"base_line,omitempty"`
	ChangedOps []int  `json:"changed_ops,omitempty" jsonschema:"description=Indices of operands that differ in a replace line"`
	Call       bool   `json:"call,omitempty" jsonschema:"description=Row is a function call on either side"`
}

func buildJSONReport(rep *compare.Report, opts render.Options) JSONReport {
	out := JSONReport{
		Symbol:          rep.Symbol,
		Demangled:       rep.Demangled,
		Arch:            rep.Arch.String(),
		TargetAddr:      fmt.Sprintf("%#x", rep.TargetAddr),
		BaseAddr:        fmt.Sprintf("%#x", rep.BaseAddr),
		MatchPercent:    rep.MatchPercent(),
		TargetTruncated: rep.TargetErr != nil,
		BaseTruncated:   rep.BaseErr != nil,
	}
	if out.Demangled == out.Symbol {
		out.Demangled = ""
	}
	for _, l := range rep.Diff.Lines {
		jl := JSONLine{Kind: l.Kind.String(), ChangedOps: l.ChangedOps}
		jl.Call = l.Target != nil && l.Target.Call || l.Base != nil && l.Base.Call
		if l.Target != nil {
			jl.Target = l.Target.Text()
			jl.TargetAddr = fmt.Sprintf("%#x", l.Target.Addr)
			if n, ok := opts.TargetLines.LineFor(l.Target.Addr); ok {
				jl.TargetLine = n
			}
		}
		if l.Base != nil {
			jl.Base = l.Base.Text()
			jl.BaseAddr = fmt.Sprintf("%#x", l.Base.Addr)
			if n, ok := opts.BaseLines.LineFor(l.Base.Addr); ok {
				jl.BaseLine = n
			}
		}
		out.Lines = append(out.Lines, jl)
	}
	return out
}
