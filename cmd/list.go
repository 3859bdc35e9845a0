package cmd

import (
	"fmt"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/spf13/cobra"
)

var plainOutput bool

var grammarsCmd = &cobra.Command{
	Use:   "grammars",
	Short: "List supported languages",
	Long: `List every language the engine can highlight. With --plain the output
is one name per line, suitable for piping into fzf.`,
	Run: func(cmd *cobra.Command, args []string) {
		names := lexers.Names(true)
		if plainOutput {
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Supported languages (%d):\n", len(names))
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
	},
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "List available themes",
	Long: `List every theme the engine ships. With --plain the output is one name
per line, suitable for piping into fzf.`,
	Run: func(cmd *cobra.Command, args []string) {
		names := styles.Names()
		if plainOutput {
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Available themes (%d):\n", len(names))
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
	},
}

func init() {
	grammarsCmd.Flags().BoolVar(&plainOutput, "plain", false,
		"one name per line, no headers")
	themesCmd.Flags().BoolVar(&plainOutput, "plain", false,
		"one name per line, no headers")
	rootCmd.AddCommand(grammarsCmd)
	rootCmd.AddCommand(themesCmd)
}
