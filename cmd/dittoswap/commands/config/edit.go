package config

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/pkg/config"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration in editor",
	Long: `Open the configuration file in your default editor.

Uses the EDITOR environment variable, then VISUAL, falling back to 'vi'.
A running daemon picks up a changed cache.grace_period when the file is
saved.

Examples:
  # Edit default config
  dittoswap config edit

  # Edit specific config file
  dittoswap config edit --config /etc/dittoswap/config.yaml`,
	RunE: runConfigEdit,
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it first with:\n"+
			"  dittoswap config init --config %s",
			path, path)
	}

	editorCmd := exec.Command(editorFromEnv(), path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	// Catch mistakes now rather than at the next restart.
	if _, err := config.Load(path); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: edited configuration is invalid: %v\n", err)
	}
	return nil
}

func editorFromEnv() string {
	for _, env := range []string{"EDITOR", "VISUAL"} {
		if e := os.Getenv(env); e != "" {
			return e
		}
	}
	return "vi"
}
