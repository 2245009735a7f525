package cmd

import (
	"testing"

	"objdiff/internal/asm"
	"objdiff/internal/compare"
	"objdiff/internal/sdiff"
	"objdiff/internal/ui/render"
)

func sampleReport() *compare.Report {
	target := asm.Stream{
		{Addr: 0x1000, Len: 4, Mnemonic: "addiu", Ops: []asm.Operand{asm.RegOp("$sp"), asm.RegOp("$sp"), asm.ImmOp(-32)}},
		{Addr: 0x1004, Len: 4, Mnemonic: "jr", Ops: []asm.Operand{asm.RegOp("$ra")}},
	}
	base := asm.Stream{
		{Addr: 0x2000, Len: 4, Mnemonic: "addiu", Ops: []asm.Operand{asm.RegOp("$sp"), asm.RegOp("$sp"), asm.ImmOp(-48)}},
		{Addr: 0x2004, Len: 4, Mnemonic: "jr", Ops: []asm.Operand{asm.RegOp("$ra")}},
	}
	return &compare.Report{
		Symbol:     "fn",
		Demangled:  "fn",
		Arch:       asm.ArchMIPS,
		TargetAddr: 0x1000,
		BaseAddr:   0x2000,
		Target:     target,
		Base:       base,
		Diff:       sdiff.Diff(target, base),
	}
}

func TestBuildJSONReport(t *testing.T) {
	got := buildJSONReport(sampleReport(), render.Options{})

	if got.Symbol != "fn" || got.Arch != "mips" {
		t.Errorf("header = %+v", got)
	}
	if got.Demangled != "" {
		t.Errorf("demangled equal to symbol should be omitted, got %q", got.Demangled)
	}
	if got.TargetAddr != "0x1000" || got.BaseAddr != "0x2000" {
		t.Errorf("addrs = %q, %q", got.TargetAddr, got.BaseAddr)
	}
	if got.MatchPercent != 50.0 {
		t.Errorf("match percent = %v, want 50", got.MatchPercent)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(got.Lines))
	}

	rep := got.Lines[0]
	if rep.Kind != "replace" || len(rep.ChangedOps) != 1 || rep.ChangedOps[0] != 2 {
		t.Errorf("line 0 = %+v", rep)
	}
	if rep.Target != "addiu $sp, $sp, -0x20" || rep.Base != "addiu $sp, $sp, -0x30" {
		t.Errorf("line 0 text = %q / %q", rep.Target, rep.Base)
	}
	if rep.TargetAddr != "0x1000" || rep.BaseAddr != "0x2000" {
		t.Errorf("line 0 addrs = %q / %q", rep.TargetAddr, rep.BaseAddr)
	}

	m := got.Lines[1]
	if m.Kind != "match" || m.Target != "jr $ra" {
		t.Errorf("line 1 = %+v", m)
	}
}

func TestJSONReportMarksCalls(t *testing.T) {
	stream := asm.Stream{
		{Addr: 0x1000, Len: 4, Mnemonic: "jal", Branch: true, Call: true,
			Ops: []asm.Operand{asm.SymOp(asm.SymRef{Kind: asm.SymFunc})}},
		{Addr: 0x1004, Len: 4, Mnemonic: "nop"},
	}
	rep := &compare.Report{
		Symbol: "fn",
		Arch:   asm.ArchMIPS,
		Target: stream,
		Base:   stream,
		Diff:   sdiff.Diff(stream, stream),
	}

	got := buildJSONReport(rep, render.Options{})
	if len(got.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(got.Lines))
	}
	if !got.Lines[0].Call {
		t.Errorf("jal line not marked as call")
	}
	if got.Lines[1].Call {
		t.Errorf("nop line marked as call")
	}
}

func TestAggregatePercent(t *testing.T) {
	reports := []*compare.Report{sampleReport(), sampleReport()}
	if got := aggregatePercent(reports); got != 50.0 {
		t.Errorf("aggregatePercent = %v, want 50", got)
	}
	if got := aggregatePercent(nil); got != 100.0 {
		t.Errorf("aggregatePercent(nil) = %v, want 100", got)
	}
}

func TestCheckThreshold(t *testing.T) {
	if err := checkThreshold(80, 0); err != nil {
		t.Errorf("disabled threshold errored: %v", err)
	}
	if err := checkThreshold(96, 95); err != nil {
		t.Errorf("passing threshold errored: %v", err)
	}
	if err := checkThreshold(94.9, 95); err == nil {
		t.Errorf("failing threshold passed")
	}
}

func TestParseArchFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    asm.Arch
		wantErr bool
	}{
		{"auto", asm.ArchUnknown, false},
		{"", asm.ArchUnknown, false},
		{"mips", asm.ArchMIPS, false},
		{"ppc", asm.ArchPPC, false},
		{"z80", asm.ArchUnknown, true},
	}
	for _, tt := range tests {
		cmd := diffCmd
		if err := cmd.Flags().Set("arch", tt.in); err != nil {
			t.Fatalf("set flag: %v", err)
		}
		got, err := parseArchFlag(cmd)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArchFlag(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseArchFlag(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
