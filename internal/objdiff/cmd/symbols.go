package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"objdiff/internal/mangle"
	"objdiff/internal/objfile"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <object>",
	Short: "List the symbol table of an object file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scheme, err := parseMangleFlag(cmd)
		if err != nil {
			return err
		}
		obj, _, err := loadObject(args[0])
		if err != nil {
			return err
		}
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")

		type row struct {
			Name      string `json:"name"`
			Demangled string `json:"demangled,omitempty"`
			Addr      string `json:"addr"`
			Size      uint64 `json:"size"`
			Kind      string `json:"kind"`
			Section   string `json:"section,omitempty"`
		}
		var rows []row
		for _, s := range obj.Symbols {
			if s.Name == "" {
				continue
			}
			if !all && s.Kind != objfile.SymFunc {
				continue
			}
			r := row{
				Name: s.Name,
				Addr: fmt.Sprintf("%#x", s.Addr),
				Size: s.Size,
				Kind: s.Kind.String(),
			}
			if d := mangle.Demangle(s.Name, scheme); d != s.Name {
				r.Demangled = d
			}
			if s.Section >= 0 && s.Section < len(obj.Sections) {
				r.Section = obj.Sections[s.Section].Name
			}
			rows = append(rows, r)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		for _, r := range rows {
			name := r.Name
			if r.Demangled != "" {
				name = r.Demangled
			}
			fmt.Printf("%-12s %6d  %-8s %-16s %s\n", r.Addr, r.Size, r.Kind, r.Section, name)
		}
		return nil
	},
}

func init() {
	symbolsCmd.Flags().String("mangle", "none", "Demangling scheme: itanium, msvc, cw, none")
	symbolsCmd.Flags().Bool("all", false, "Include data and unknown symbols, not just functions")
	symbolsCmd.Flags().Bool("json", false, "Emit JSON")
	rootCmd.AddCommand(symbolsCmd)
}
