package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/internal/cli/timeutil"
	"github.com/marmos91/dittoswap/pkg/apiclient"
)

var graceCmd = &cobra.Command{
	Use:   "grace [seconds]",
	Short: "Show or set the grace period",
	Long: `Show the grace period, or set it to a whole number of seconds.

Pages stay in memory for at least the grace period before they may be
written back. A new value applies to pages that become eligible from now
on. Negative values are ignored by the daemon. Setting it needs an admin
token.

Examples:
  # Show the current value
  dittoswapctl grace

  # Write pages back as soon as possible
  dittoswapctl grace 0

  # Keep pages for ten minutes
  dittoswapctl grace 600`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGrace,
}

type graceTable struct{ grace *apiclient.Grace }

func (t graceTable) Headers() []string { return []string{"FIELD", "VALUE"} }
func (t graceTable) Rows() [][]string {
	return [][]string{{"Grace period", timeutil.Seconds(t.grace.Seconds)}}
}

func runGrace(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	var grace *apiclient.Grace
	if len(args) == 0 {
		grace, err = client.Grace()
		if err != nil {
			return fmt.Errorf("failed to get grace period: %w", err)
		}
		return cmdutil.PrintResource(cmd.OutOrStdout(), grace, graceTable{grace})
	}

	seconds, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid grace period %q: want whole seconds", args[0])
	}
	grace, err = client.SetGrace(seconds)
	if err != nil {
		return cmdutil.WrapAPIError("failed to set grace period", err)
	}

	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		return p.Print(grace)
	}
	if seconds < 0 {
		p.Warning(fmt.Sprintf("Negative value ignored, grace period is %s", timeutil.Seconds(grace.Seconds)))
		return nil
	}
	p.Success(fmt.Sprintf("Grace period set to %s", timeutil.Seconds(grace.Seconds)))
	return nil
}
