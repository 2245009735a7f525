// Package render turns a compare.Report into a two-column terminal view:
// target on the left, base on the right, one diff line per row. It is a
// presentation layer only; nothing here feeds back into the diff.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"

	"objdiff/internal/asm"
	"objdiff/internal/compare"
	"objdiff/internal/dwarfline"
	"objdiff/internal/sdiff"
	"objdiff/internal/ui/colorize"
)

// Options controls rendering.
type Options struct {
	Width int  // total width, 0 = 120
	Color bool // lipgloss/chroma styling on or off

	// Optional line tables for source annotation; either may be nil.
	TargetLines *dwarfline.Table
	BaseLines   *dwarfline.Table
}

var (
	styleDelete  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	styleInsert  = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	styleReplace = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	styleHeader  = lipgloss.NewStyle().Bold(true)

	// Match-percent coloring mirrors the classic 100 / >=50 / <50 split.
	stylePctFull = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	stylePctMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("221"))
	stylePctLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// DiffText renders the full report.
func DiffText(rep *compare.Report, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = 120
	}
	col := (width - 3) / 2

	var b strings.Builder
	title := rep.Symbol
	if rep.Demangled != "" && rep.Demangled != rep.Symbol {
		title = rep.Demangled
	}
	header := fmt.Sprintf("%s  [%s]  %s", title, rep.Arch, renderPercent(rep.MatchPercent(), opts.Color))
	if opts.Color {
		b.WriteString(styleHeader.Render(header))
	} else {
		b.WriteString(header)
	}
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')

	for _, line := range rep.Diff.Lines {
		b.WriteString(renderLine(line, col, opts))
		b.WriteByte('\n')
	}

	if rep.TargetErr != nil {
		b.WriteString("! target listing truncated mid-instruction\n")
	}
	if rep.BaseErr != nil {
		b.WriteString("! base listing truncated mid-instruction\n")
	}
	return b.String()
}

func renderLine(line sdiff.Line, col int, opts Options) string {
	left := sideText(line.Target, opts.TargetLines)
	right := sideText(line.Base, opts.BaseLines)

	var marker byte
	var style lipgloss.Style
	switch line.Kind {
	case sdiff.Match:
		marker = ' '
	case sdiff.Delete:
		marker, style = '<', styleDelete
	case sdiff.Insert:
		marker, style = '>', styleInsert
	case sdiff.Replace:
		marker, style = '~', styleReplace
	}

	row := fmt.Sprintf("%c %-*s | %-*s", marker, col, left, col, right)
	if line.Kind == sdiff.Replace && len(line.ChangedOps) > 0 {
		row += fmt.Sprintf("  (ops %s)", joinInts(line.ChangedOps))
	}
	if !opts.Color {
		return row
	}
	if line.Kind == sdiff.Match {
		// Matched rows get full syntax highlighting; changed rows keep a
		// single diff color so the change stands out.
		if colored, err := colorize.Assembly(row); err == nil {
			return colored
		}
		return row
	}
	return style.Render(row)
}

func sideText(in *asm.Inst, lines *dwarfline.Table) string {
	if in == nil {
		return ""
	}
	text := fmt.Sprintf("%6x:  %s", in.Addr, in.Text())
	if n, ok := lines.LineFor(in.Addr); ok {
		text += fmt.Sprintf("  ;%d", n)
	}
	return text
}

func renderPercent(pct float64, color bool) string {
	text := fmt.Sprintf("%.1f%%", pct)
	if !color {
		return text
	}
	switch {
	case pct >= 100.0:
		return stylePctFull.Render(text)
	case pct >= 50.0:
		return stylePctMid.Render(text)
	default:
		return stylePctLow.Render(text)
	}
}

// MatchRow renders one entry of the per-symbol match table used when
// diffing whole objects.
func MatchRow(name string, pct float64, color bool) string {
	return fmt.Sprintf("%7s  %s", renderPercent(pct, color), name)
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%d", x)
	}
	return strings.Join(parts, ",")
}
