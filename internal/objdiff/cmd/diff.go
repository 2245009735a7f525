package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"objdiff/internal/compare"
	"objdiff/internal/dwarfline"
	"objdiff/internal/objfile"
	"objdiff/internal/sdiff"
	"objdiff/internal/ui/colorize"
	"objdiff/internal/ui/render"
)

var diffCmd = &cobra.Command{
	Use:   "diff <target> <base>",
	Short: "Diff functions between a target object and a recompiled base",
	Long: `Diff decodes the named function from both objects, normalizes
addresses and relocations into symbolic tokens, and aligns the two
instruction sequences. Without --symbol, every function defined in both
objects is diffed and a per-symbol match table is printed.`,
	Example: `
# Diff one function
objdiff diff orig/main.o build/main.o -s process_input

# Diff everything both objects define, fail CI below 95% matched
objdiff diff orig/main.o build/main.o --threshold 95

# Machine-readable report with source line annotations
objdiff diff orig/main.elf build/main.elf -s update --json --lines
  `,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringP("symbol", "s", "", "Function symbol to diff (default: all common functions)")
	diffCmd.Flags().String("arch", "auto", "Instruction set: x86, x86_64, mips, ppc, arm, thumb")
	diffCmd.Flags().String("mangle", "none", "Demangling scheme: itanium, msvc, cw, none")
	diffCmd.Flags().Bool("json", false, "Emit the report as JSON")
	diffCmd.Flags().Bool("lines", false, "Annotate instructions with DWARF source lines")
	diffCmd.Flags().Float64("threshold", 0, "Exit nonzero when the match percentage falls below this")
	diffCmd.Flags().Int("width", 0, "Total output width (default 120)")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	arch, err := parseArchFlag(cmd)
	if err != nil {
		return err
	}
	scheme, err := parseMangleFlag(cmd)
	if err != nil {
		return err
	}

	targetObj, targetData, err := loadObject(args[0])
	if err != nil {
		return err
	}
	baseObj, baseData, err := loadObject(args[1])
	if err != nil {
		return err
	}

	opts := render.Options{
		Color: colorize.Enabled() && term.IsTerminal(os.Stdout.Fd()),
	}
	opts.Width, _ = cmd.Flags().GetInt("width")

	if withLines, _ := cmd.Flags().GetBool("lines"); withLines {
		// Annotation only; a missing line table is not an error.
		if t, err := dwarfline.FromBytes(targetData); err == nil {
			opts.TargetLines = t
		}
		if b, err := dwarfline.FromBytes(baseData); err == nil {
			opts.BaseLines = b
		}
	}

	req := compare.Request{Arch: arch, Mangle: scheme}
	asJSON, _ := cmd.Flags().GetBool("json")
	threshold, _ := cmd.Flags().GetFloat64("threshold")

	if symbol, _ := cmd.Flags().GetString("symbol"); symbol != "" {
		req.Symbol = symbol
		rep, err := compare.Compare(targetObj, baseObj, req)
		if err != nil {
			return err
		}
		if asJSON {
			return emitJSON(buildJSONReport(rep, opts))
		}
		fmt.Print(render.DiffText(rep, opts))
		return checkThreshold(rep.MatchPercent(), threshold)
	}

	reports, err := diffAll(targetObj, baseObj, req)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return fmt.Errorf("no function symbols present in both objects")
	}

	if asJSON {
		out := make([]JSONReport, len(reports))
		for i, rep := range reports {
			out[i] = buildJSONReport(rep, opts)
		}
		return emitJSON(out)
	}

	for _, rep := range reports {
		name := rep.Symbol
		if rep.Demangled != "" && rep.Demangled != rep.Symbol {
			name = rep.Demangled
		}
		fmt.Println(render.MatchRow(name, rep.MatchPercent(), opts.Color))
	}
	total := aggregatePercent(reports)
	fmt.Printf("%7s  total (%d functions)\n", fmt.Sprintf("%.1f%%", total), len(reports))
	return checkThreshold(total, threshold)
}

// diffAll compares every function defined in both objects, one goroutine
// per function; the core is re-entrant so this is safe.
func diffAll(targetObj, baseObj *objfile.Object, req compare.Request) ([]*compare.Report, error) {
	names := compare.CommonFunctions(targetObj, baseObj)
	reports := make([]*compare.Report, len(names))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, name := range names {
		g.Go(func() error {
			r := req
			r.Symbol = name
			rep, err := compare.Compare(targetObj, baseObj, r)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// aggregatePercent scores a batch the way the per-function percent is
// scored: matched target instructions over all target instructions.
func aggregatePercent(reports []*compare.Report) float64 {
	targetLines, matched := 0, 0
	for _, rep := range reports {
		for _, l := range rep.Diff.Lines {
			if l.Target != nil {
				targetLines++
				if l.Kind == sdiff.Match {
					matched++
				}
			}
		}
	}
	if targetLines == 0 {
		return 100.0
	}
	return float64(matched) * 100.0 / float64(targetLines)
}

func checkThreshold(pct, threshold float64) error {
	if threshold > 0 && pct < threshold {
		return fmt.Errorf("match %.1f%% below threshold %.1f%%", pct, threshold)
	}
	return nil
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
