package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/internal/cli/output"
)

var promotedDisk bool

var promotedCmd = &cobra.Command{
	Use:   "promoted",
	Short: "Take the promoted page counter",
	Long: `Print the number of pages promoted since the last call and reset it.

Without --disk this counts loads served from memory. With --disk it counts
loads that had to read the backing device. Each counter is reset by the
read, so two consumers polling the same daemon see disjoint totals.

Examples:
  dittoswapctl promoted
  dittoswapctl promoted --disk -o json`,
	Args: cobra.NoArgs,
	RunE: runPromoted,
}

func init() {
	promotedCmd.Flags().BoolVar(&promotedDisk, "disk", false, "Take the disk promoted counter instead")
}

type promotedResult struct {
	Counter string `json:"counter" yaml:"counter"`
	Pages   int64  `json:"pages" yaml:"pages"`
}

func (r promotedResult) Headers() []string { return []string{"COUNTER", "PAGES"} }
func (r promotedResult) Rows() [][]string  { return [][]string{{r.Counter, fmt.Sprint(r.Pages)}} }

func runPromoted(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	res := promotedResult{Counter: "nr_promoted_page"}
	take := client.TakePromoted
	if promotedDisk {
		res.Counter = "nr_disk_promoted_page"
		take = client.TakeDiskPromoted
	}

	if res.Pages, err = take(); err != nil {
		return cmdutil.WrapAPIError("failed to take "+res.Counter, err)
	}

	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if p.Format() == output.FormatTable {
		return output.Render(cmd.OutOrStdout(), res)
	}
	return p.Print(res)
}
