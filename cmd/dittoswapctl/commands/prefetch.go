package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/pkg/apiclient"
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch <pages>",
	Short: "Read recently evicted pages back ahead of time",
	Long: `Run one read-ahead pass of up to <pages> pages.

The daemon walks the most recently stored coordinates and reads pages that
were written back into memory again, so that a later load hits the cache.
Needs an admin token.

Examples:
  dittoswapctl prefetch 1024`,
	Args: cobra.ExactArgs(1),
	RunE: runPrefetch,
}

type prefetchTable struct{ res *apiclient.PrefetchResult }

func (t prefetchTable) Headers() []string { return []string{"FIELD", "VALUE"} }
func (t prefetchTable) Rows() [][]string {
	return [][]string{
		{"Requested", fmt.Sprint(t.res.Requested)},
		{"Issued", fmt.Sprint(t.res.Issued)},
		{"Pending", fmt.Sprint(t.res.Pending)},
	}
}

func runPrefetch(cmd *cobra.Command, args []string) error {
	pages, err := strconv.Atoi(args[0])
	if err != nil || pages < 0 {
		return fmt.Errorf("invalid page count %q", args[0])
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	res, err := client.Prefetch(pages)
	if err != nil {
		return cmdutil.WrapAPIError("prefetch failed", err)
	}
	return cmdutil.PrintResource(cmd.OutOrStdout(), res, prefetchTable{res})
}
