package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"objdiff/internal/asm"
	"objdiff/internal/mangle"
	"objdiff/internal/objdiff/log"
	"objdiff/internal/objfile"
)

var rootCmd = &cobra.Command{
	Use:   "objdiff",
	Short: "Instruction-level diff between a target binary and a recompiled candidate",
	Long: `objdiff compares functions between two object files: the original
"target" binary and a recompiled "base" candidate. It decodes both into
a normalized instruction form, aligns them, and reports how close the
reimplementation is, down to individual operands.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.Setup(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

func Execute() {
	// Bypass fang's markdown help rendering when output is piped; color
	// stays user-controlled via OBJDIFF_NO_COLOR either way.
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// loadObject maps a file read-only and parses it. The returned buffer
// backs the Object's section data and stays valid until munmap; for a
// short-lived CLI process we let process exit clean it up, matching how
// the frontend feeds the core memory-mapped buffers.
func loadObject(path string) (*objfile.Object, []byte, error) {
	data, err := mmapFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	obj, err := objfile.Load(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return obj, data, nil
}

func mmapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("empty file")
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		// Mmap can fail on odd filesystems; fall back to a plain read.
		return os.ReadFile(path)
	}
	return data, nil
}

// parseArchFlag resolves the --arch flag, empty meaning auto-detect.
func parseArchFlag(cmd *cobra.Command) (asm.Arch, error) {
	s, _ := cmd.Flags().GetString("arch")
	if s == "" || s == "auto" {
		return asm.ArchUnknown, nil
	}
	return asm.ParseArch(s)
}

func parseMangleFlag(cmd *cobra.Command) (mangle.Scheme, error) {
	s, _ := cmd.Flags().GetString("mangle")
	return mangle.ParseScheme(s)
}
