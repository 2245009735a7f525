package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections <object>",
	Short: "List the sections of an object file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, _, err := loadObject(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		type row struct {
			Name   string `json:"name"`
			Addr   string `json:"addr"`
			Size   uint64 `json:"size"`
			Kind   string `json:"kind"`
			Relocs int    `json:"relocs"`
		}
		rows := make([]row, 0, len(obj.Sections))
		for _, s := range obj.Sections {
			rows = append(rows, row{
				Name:   s.Name,
				Addr:   fmt.Sprintf("%#x", s.Addr),
				Size:   s.Size,
				Kind:   s.Kind.String(),
				Relocs: len(s.Relocs),
			})
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}
		fmt.Printf("%s  %s  %-6s\n", obj.Format, obj.Arch, obj.ByteOrder)
		for _, r := range rows {
			fmt.Printf("%-24s %-12s %8d  %-8s %d relocs\n", r.Name, r.Addr, r.Size, r.Kind, r.Relocs)
		}
		return nil
	},
}

func init() {
	sectionsCmd.Flags().Bool("json", false, "Emit JSON")
	rootCmd.AddCommand(sectionsCmd)
}
