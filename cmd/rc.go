package cmd

import (
	_ "embed"
	"fmt"

	"github.com/spf13/cobra"
)

//go:embed kakhl.kak
var kakouneScript string

var rcCmd = &cobra.Command{
	Use:   "rc",
	Short: "Print the kakoune integration script",
	Long: `Print the editor-side script defining the kakhl-* commands and hooks.
Typical usage in kakrc:

    evaluate-commands %sh{ kakhl rc }`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), kakouneScript)
	},
}

func init() {
	rootCmd.AddCommand(rcCmd)
}
