// Package commands implements the dittoswap daemon CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswap/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittoswap",
	Short: "DittoSwap - deferred write-back page cache",
	Long: `DittoSwap keeps swapped-out pages in memory for a grace period and writes
them back to a backing device only once they have gone untouched. Pages
loaded again before then never reach the device.

Use "dittoswap [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittoswap/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
