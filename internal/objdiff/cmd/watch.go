package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"objdiff/internal/compare"
	"objdiff/internal/logging"
	"objdiff/internal/ui/colorize"
	"objdiff/internal/ui/render"
)

var watchCmd = &cobra.Command{
	Use:   "watch <target> <base>",
	Short: "Re-diff whenever either object file changes",
	Long: `Watch diffs the two objects once, then blocks and re-runs the diff
every time one of them is rewritten on disk. Useful alongside an
incremental rebuild loop.`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringP("symbol", "s", "", "Function symbol to diff (default: all common functions)")
	watchCmd.Flags().String("arch", "auto", "Instruction set: x86, x86_64, mips, ppc, arm, thumb")
	watchCmd.Flags().String("mangle", "none", "Demangling scheme: itanium, msvc, cw, none")
	watchCmd.Flags().Int("width", 0, "Total output width (default 120)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	arch, err := parseArchFlag(cmd)
	if err != nil {
		return err
	}
	scheme, err := parseMangleFlag(cmd)
	if err != nil {
		return err
	}
	symbol, _ := cmd.Flags().GetString("symbol")
	opts := render.Options{
		Color: colorize.Enabled() && term.IsTerminal(os.Stdout.Fd()),
	}
	opts.Width, _ = cmd.Flags().GetInt("width")

	req := compare.Request{Arch: arch, Symbol: symbol, Mangle: scheme}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directories: most toolchains replace the output
	// file on relink, which drops a watch registered on the file itself.
	for _, p := range args {
		if err := watcher.Add(filepath.Dir(p)); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
	}

	watchDiff(args[0], args[1], req, opts)

	// Writes arrive in bursts while the linker is still running; settle
	// before re-reading so we never diff a half-written object.
	const settle = 200 * time.Millisecond
	var pending *time.Timer
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watchedPath(ev.Name, args) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if logging.IsDebug() {
				lg := logging.NewLogger()
				lg.Debug("object changed", "path", ev.Name, "op", ev.Op.String())
				lg.Close()
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(settle, func() {
				watchDiff(args[0], args[1], req, opts)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "err", err)
		}
	}
}

func watchedPath(name string, args []string) bool {
	for _, p := range args {
		if filepath.Clean(name) == filepath.Clean(p) {
			return true
		}
	}
	return false
}

// watchDiff runs one diff pass and prints the result. Errors are reported
// and swallowed; a transient unreadable object must not kill the loop.
func watchDiff(targetPath, basePath string, req compare.Request, opts render.Options) {
	fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))

	targetObj, _, err := loadObject(targetPath)
	if err != nil {
		slog.Error("load target", "path", targetPath, "err", err)
		return
	}
	baseObj, _, err := loadObject(basePath)
	if err != nil {
		slog.Error("load base", "path", basePath, "err", err)
		return
	}

	if req.Symbol != "" {
		rep, err := compare.Compare(targetObj, baseObj, req)
		if err != nil {
			slog.Error("diff", "symbol", req.Symbol, "err", err)
			return
		}
		fmt.Print(render.DiffText(rep, opts))
		return
	}

	reports, err := diffAll(targetObj, baseObj, req)
	if err != nil {
		slog.Error("diff", "err", err)
		return
	}
	for _, rep := range reports {
		name := rep.Symbol
		if rep.Demangled != "" && rep.Demangled != rep.Symbol {
			name = rep.Demangled
		}
		fmt.Println(render.MatchRow(name, rep.MatchPercent(), opts.Color))
	}
	fmt.Printf("%7s  total (%d functions)\n",
		fmt.Sprintf("%.1f%%", aggregatePercent(reports)), len(reports))
}
