// Package regions implements the region lifecycle subcommands.
package regions

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/internal/cli/prompt"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// Cmd is the regions subcommand.
var Cmd = &cobra.Command{
	Use:     "regions",
	Aliases: []string{"region"},
	Short:   "Manage cache regions",
	Long: fmt.Sprintf(`List, initialize and tear down regions.

A region is an independently addressable extent of the backing device,
numbered 0 to %d. Pages can only be stored in an initialized region.
Tearing a region down drops every page it holds, cached or written back.`, cache.MaxRegions-1),
}

var invalidateYes bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List initialized regions",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var initCmd = &cobra.Command{
	Use:   "init <region>",
	Short: "Initialize a region",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

var invalidateCmd = &cobra.Command{
	Use:     "invalidate <region>",
	Aliases: []string{"rm"},
	Short:   "Tear a region down",
	Args:    cobra.ExactArgs(1),
	RunE:    runInvalidate,
}

func init() {
	invalidateCmd.Flags().BoolVarP(&invalidateYes, "yes", "y", false, "Do not ask for confirmation")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(invalidateCmd)
}

// ParseRegion parses a region id and checks its range.
func ParseRegion(s string) (cache.RegionID, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n >= cache.MaxRegions {
		return 0, fmt.Errorf("invalid region %q: want 0 to %d", s, cache.MaxRegions-1)
	}
	return cache.RegionID(n), nil
}

type regionTable []cache.RegionID

func (t regionTable) Headers() []string { return []string{"REGION"} }
func (t regionTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		rows[i] = []string{fmt.Sprint(r)}
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	regions, err := client.Regions()
	if err != nil {
		return fmt.Errorf("failed to list regions: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatTable && len(regions) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No regions initialized.")
		return nil
	}
	return cmdutil.PrintResource(cmd.OutOrStdout(), map[string]any{"regions": regions}, regionTable(regions))
}

func runInit(cmd *cobra.Command, args []string) error {
	region, err := ParseRegion(args[0])
	if err != nil {
		return err
	}
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	if err := client.InitRegion(region); err != nil {
		return cmdutil.WrapAPIError(fmt.Sprintf("failed to initialize region %d", region), err)
	}
	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(),
		map[string]any{"region": region, "initialized": true},
		fmt.Sprintf("Region %d initialized", region))
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	region, err := ParseRegion(args[0])
	if err != nil {
		return err
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Drop every page of region %d?", region), invalidateYes)
	if err != nil {
		if prompt.IsAborted(err) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "\nAborted.")
			return nil
		}
		return err
	}
	if !ok {
		return nil
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	if err := client.InvalidateArea(region); err != nil {
		return cmdutil.WrapAPIError(fmt.Sprintf("failed to invalidate region %d", region), err)
	}
	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(),
		map[string]any{"region": region, "initialized": false},
		fmt.Sprintf("Region %d torn down", region))
}
