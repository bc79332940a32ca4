// Package page implements the single page subcommands, mostly useful to
// exercise a daemon by hand.
package page

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/cmd/dittoswapctl/commands/regions"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// Cmd is the page subcommand.
var Cmd = &cobra.Command{
	Use:   "page",
	Short: "Store, load and invalidate single pages",
	Long: `Drive single pages of an initialized region.

Loads are exclusive: a page served from memory leaves the cache, exactly
as it does for the swap client.`,
}

var (
	storeFile string
	loadFile  string
)

var storeCmd = &cobra.Command{
	Use:   "store <region> <offset>",
	Short: "Store a page read from a file or stdin",
	Long: `Store one page. The data comes from --file, or stdin when --file is
not given. It must be exactly one page of the daemon's page size, see
'dittoswapctl status'.

Examples:
  head -c 4096 /dev/urandom | dittoswapctl page store 0 42
  dittoswapctl page store 0 42 --file page.bin`,
	Args: cobra.ExactArgs(2),
	RunE: runStore,
}

var loadCmd = &cobra.Command{
	Use:   "load <region> <offset>",
	Short: "Load a page to a file or stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  runLoad,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <region> <offset>",
	Short: "Drop a page",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvalidate,
}

func init() {
	storeCmd.Flags().StringVarP(&storeFile, "file", "f", "", "Read the page from this file")
	loadCmd.Flags().StringVarP(&loadFile, "file", "f", "", "Write the page to this file")

	Cmd.AddCommand(storeCmd)
	Cmd.AddCommand(loadCmd)
	Cmd.AddCommand(invalidateCmd)
}

func parseCoordinate(args []string) (cache.RegionID, uint64, error) {
	region, err := regions.ParseRegion(args[0])
	if err != nil {
		return 0, 0, err
	}
	offset, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid offset %q", args[1])
	}
	return region, offset, nil
}

func runStore(cmd *cobra.Command, args []string) error {
	region, offset, err := parseCoordinate(args)
	if err != nil {
		return err
	}

	var data []byte
	if storeFile != "" {
		data, err = os.ReadFile(storeFile)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	if err := client.StorePage(region, offset, data); err != nil {
		return cmdutil.WrapAPIError("store failed", err)
	}
	cmdutil.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Stored %d bytes at %d/%d", len(data), region, offset))
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	region, offset, err := parseCoordinate(args)
	if err != nil {
		return err
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	data, err := client.LoadPage(region, offset)
	if err != nil {
		return cmdutil.WrapAPIError("load failed", err)
	}

	if loadFile != "" {
		if err := os.WriteFile(loadFile, data, 0600); err != nil {
			return fmt.Errorf("failed to write page: %w", err)
		}
		cmdutil.PrintSuccess(cmd.ErrOrStderr(), fmt.Sprintf("Wrote %d bytes to %s", len(data), loadFile))
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	region, offset, err := parseCoordinate(args)
	if err != nil {
		return err
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	if err := client.InvalidatePage(region, offset); err != nil {
		return cmdutil.WrapAPIError("invalidate failed", err)
	}
	cmdutil.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Page %d/%d invalidated", region, offset))
	return nil
}
