// Package commands implements the CLI commands of dittoswapctl.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	ctxcmd "github.com/marmos91/dittoswap/cmd/dittoswapctl/commands/context"
	pagecmd "github.com/marmos91/dittoswap/cmd/dittoswapctl/commands/page"
	regionscmd "github.com/marmos91/dittoswap/cmd/dittoswapctl/commands/regions"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "dittoswapctl",
	Short: "DittoSwap Control - remote client for the cache daemon",
	Long: `dittoswapctl talks to the control API of a running dittoswap daemon.

Use it to read the cache counters, tune the grace period, trigger
read-ahead and drive regions and pages by hand.

Use "dittoswapctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ServerURL, _ = cmd.Flags().GetString("server")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.ContextsFile, _ = cmd.Flags().GetString("contexts-file")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("server", "", "Server URL (overrides the current context)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (overrides the current context)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("contexts-file", "", "Context store (default: $XDG_CONFIG_HOME/dittoswapctl/contexts.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(graceCmd)
	rootCmd.AddCommand(prefetchCmd)
	rootCmd.AddCommand(promotedCmd)
	rootCmd.AddCommand(ctxcmd.Cmd)
	rootCmd.AddCommand(regionscmd.Cmd)
	rootCmd.AddCommand(pagecmd.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
