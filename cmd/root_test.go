package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	// Point config at a nonexistent temp file so initConfig never writes a
	// default into the real home directory.
	cfgFile = filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
		plainOutput = false
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestGrammarsCommand(t *testing.T) {
	out := execute(t, "grammars")
	require.Contains(t, out, "Supported languages")
	require.Contains(t, out, "Go")
}

func TestGrammarsCommand_Plain(t *testing.T) {
	out := execute(t, "grammars", "--plain")
	require.NotContains(t, out, "Supported languages")
	require.Contains(t, out, "\nGo\n")
}

func TestThemesCommand_Plain(t *testing.T) {
	out := execute(t, "themes", "--plain")
	require.Contains(t, out, "dracula")
	require.Contains(t, out, "catppuccin-frappe")
	require.NotContains(t, out, "Available themes")
}

func TestRcCommand_PrintsIntegrationScript(t *testing.T) {
	out := execute(t, "rc")
	require.Contains(t, out, "define-command kakhl-enable-buffer")
	require.Contains(t, out, "declare-option -hidden range-specs kakhl_hl_ranges")
	require.Contains(t, out, "kakhl_sentinel")
	// Frame headers carry the daemon-resolved highlighter name.
	require.Contains(t, out, "declare-option -hidden str kakhl_highlighter")
	require.Contains(t, out, "kak_opt_kakhl_highlighter")
}
