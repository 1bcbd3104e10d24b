package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kiesman99/mosaic/internal/metric"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the distance backends usable on this machine",
	Long: `List the distance backends usable on this machine and the one --simd selects.

Setting MOSAIC_NO_SIMD forces the scalar backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printBackends(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func printBackends(w io.Writer) error {
	selected := metric.Select(true).Backend()
	for _, m := range metric.Available() {
		marker := " "
		if m.Backend() == selected {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", marker, m.Backend()); err != nil {
			return err
		}
	}
	return nil
}
