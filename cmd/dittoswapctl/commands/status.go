package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/cmd/dittoswapctl/cmdutil"
	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/internal/cli/timeutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the status of the connected DittoSwap daemon.

Combines the liveness and readiness probes with the current grace period
and the page population of the cache.

Examples:
  # Check status of the current context
  dittoswapctl status

  # Output as JSON
  dittoswapctl status -o json`,
	RunE: runStatus,
}

// ServerStatus is what status prints.
type ServerStatus struct {
	Server      string `json:"server" yaml:"server"`
	Status      string `json:"status" yaml:"status"`
	Healthy     bool   `json:"healthy" yaml:"healthy"`
	Instance    string `json:"instance,omitempty" yaml:"instance,omitempty"`
	StartedAt   string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	UptimeSec   int64  `json:"uptime_sec,omitempty" yaml:"uptime_sec,omitempty"`
	Device      string `json:"device,omitempty" yaml:"device,omitempty"`
	DeviceState string `json:"device_status,omitempty" yaml:"device_status,omitempty"`
	PageSize    int    `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Regions     int    `json:"regions" yaml:"regions"`
	GraceSec    int64  `json:"grace_sec" yaml:"grace_sec"`
	InMemory    int64  `json:"in_memory_pages" yaml:"in_memory_pages"`
	InFlight    int64  `json:"in_flight_pages" yaml:"in_flight_pages"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

type liveness struct {
	Instance  string `json:"instance"`
	StartedAt string `json:"started_at"`
	UptimeSec int64  `json:"uptime_sec"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	status := ServerStatus{Server: client.BaseURL(), Status: "unreachable"}

	health, err := client.Health()
	if err != nil {
		status.Error = err.Error()
		return printStatus(cmd.OutOrStdout(), status)
	}
	status.Status = health.Status
	var live liveness
	if len(health.Data) > 0 && json.Unmarshal(health.Data, &live) == nil {
		status.Instance = live.Instance
		status.StartedAt = live.StartedAt
		status.UptimeSec = live.UptimeSec
	}

	ready, err := client.Ready()
	if err != nil {
		status.Error = err.Error()
	} else {
		status.Device = ready.Device
		status.DeviceState = ready.Status
		status.PageSize = ready.PageSize
		status.Regions = ready.Regions
		if ready.Error != "" {
			status.Error = ready.Error
		}
	}
	status.Healthy = status.Status == "healthy" && status.DeviceState == "healthy"

	// Reader tokens may see these; a failure only leaves them blank.
	if grace, err := client.Grace(); err == nil {
		status.GraceSec = grace.Seconds
	}
	if stats, err := client.Stats(); err == nil {
		status.InMemory = stats.InMemoryPages
		status.InFlight = stats.InFlightPages
	}

	return printStatus(cmd.OutOrStdout(), status)
}

func printStatus(w io.Writer, status ServerStatus) error {
	p, err := cmdutil.Printer(w)
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		return p.Print(status)
	}

	p.Printf("\nDittoSwap Daemon Status\n=======================\n\n")
	switch {
	case status.Healthy:
		p.Success("● " + status.Status)
	case status.Status == "unreachable":
		p.Warning("○ " + status.Status)
	default:
		p.Warning("● degraded")
	}
	p.Printf("\n")

	pairs := [][2]string{{"Server", status.Server}}
	if status.Instance != "" {
		pairs = append(pairs,
			[2]string{"Instance", status.Instance},
			[2]string{"Started", timeutil.LocalTime(status.StartedAt)},
			[2]string{"Uptime", timeutil.Uptime(time.Duration(status.UptimeSec) * time.Second)})
	}
	if status.Device != "" {
		pairs = append(pairs,
			[2]string{"Device", fmt.Sprintf("%s (%s)", status.Device, status.DeviceState)},
			[2]string{"Page size", fmt.Sprintf("%d bytes", status.PageSize)},
			[2]string{"Regions", fmt.Sprint(status.Regions)},
			[2]string{"Grace period", timeutil.Seconds(status.GraceSec)},
			[2]string{"Pages in memory", fmt.Sprint(status.InMemory)},
			[2]string{"Pages in flight", fmt.Sprint(status.InFlight)})
	}
	if status.Error != "" {
		pairs = append(pairs, [2]string{"Error", status.Error})
	}
	return output.KeyValues(w, pairs)
}
