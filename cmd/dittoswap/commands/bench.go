package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/internal/cli/output"
	"github.com/marmos91/dittoswap/pkg/cache"
	"github.com/marmos91/dittoswap/pkg/config"
	"github.com/marmos91/dittoswap/pkg/controlplane/runtime"
)

var (
	benchDuration   time.Duration
	benchWorkers    int
	benchWorkingSet int
	benchLoadRatio  float64
	benchGrace      time.Duration
	benchDevice     string
	benchOutput     string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run an in-process swap workload",
	Long: `Drive the cache with a synthetic swap workload and print the counters.

Each worker owns a region and swaps pages of a fixed working set in and
out: a store for a page not currently swapped out, an exclusive load for
one that is. Pages that outlive the grace period are written back to the
device, so a short grace period exercises the miss path.

The backing device comes from the configuration file unless --device
overrides it. No API or metrics server is started.

Examples:
  # Ten seconds against an in-memory device
  dittoswap bench --device memory

  # Mostly stores, aggressive write-back
  dittoswap bench --grace 50ms --load-ratio 0.2 --duration 30s`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().DurationVar(&benchDuration, "duration", 10*time.Second, "How long to run")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 4, "Concurrent workers, one region each")
	benchCmd.Flags().IntVar(&benchWorkingSet, "working-set", 4096, "Pages per worker")
	benchCmd.Flags().Float64Var(&benchLoadRatio, "load-ratio", 0.5, "Probability of a load when both operations are possible")
	benchCmd.Flags().DurationVar(&benchGrace, "grace", 200*time.Millisecond, "Grace period for the run")
	benchCmd.Flags().StringVar(&benchDevice, "device", "", "Backing device type (default: from configuration)")
	benchCmd.Flags().StringVarP(&benchOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// benchResult is what the bench command prints.
type benchResult struct {
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Device     string        `json:"device" yaml:"device"`
	Stores     int64         `json:"stores" yaml:"stores"`
	Loads      int64         `json:"loads" yaml:"loads"`
	Errors     int64         `json:"errors" yaml:"errors"`
	OpsPerSec  float64       `json:"ops_per_sec" yaml:"ops_per_sec"`
	CacheStats cache.Stats   `json:"cache" yaml:"cache"`
}

func (r benchResult) Headers() []string { return []string{"COUNTER", "VALUE"} }

func (r benchResult) Rows() [][]string {
	rows := [][]string{
		{"device", r.Device},
		{"duration", r.Duration.Round(time.Millisecond).String()},
		{"stores", fmt.Sprint(r.Stores)},
		{"loads", fmt.Sprint(r.Loads)},
		{"errors", fmt.Sprint(r.Errors)},
		{"ops/s", fmt.Sprintf("%.0f", r.OpsPerSec)},
	}
	for _, f := range r.CacheStats.Fields() {
		rows = append(rows, []string{f.Name, fmt.Sprint(f.Value)})
	}
	return rows
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchWorkers < 1 || benchWorkers > cache.MaxRegions {
		return fmt.Errorf("--workers must be between 1 and %d", cache.MaxRegions)
	}
	if benchWorkingSet < 1 {
		return errors.New("--working-set must be positive")
	}
	if benchLoadRatio < 0 || benchLoadRatio > 1 {
		return errors.New("--load-ratio must be between 0 and 1")
	}
	format, err := output.ParseFormat(benchOutput)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	cfg.Cache.GracePeriod = benchGrace
	if benchDevice != "" {
		cfg.Backing.Type = benchDevice
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt, err := runtime.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	c := rt.Cache()
	c.Start(ctx)

	ctx, cancel := context.WithTimeout(ctx, benchDuration)
	defer cancel()

	res := runWorkload(ctx, c, benchWorkers, benchWorkingSet, benchLoadRatio)
	res.Device = rt.DeviceKind()
	res.CacheStats = c.Stats()

	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(res)
}

// runWorkload runs workers swap loops until ctx is done.
func runWorkload(ctx context.Context, c *cache.Cache, workers, workingSet int, loadRatio float64) benchResult {
	var stores, loads, errs atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		region := cache.RegionID(w)
		if err := c.InitRegion(region); err != nil {
			errs.Add(1)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			swapLoop(ctx, c, region, workingSet, loadRatio, &stores, &loads, &errs)
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	return benchResult{
		Duration:  elapsed,
		Stores:    stores.Load(),
		Loads:     loads.Load(),
		Errors:    errs.Load(),
		OpsPerSec: float64(stores.Load()+loads.Load()) / elapsed.Seconds(),
	}
}

func swapLoop(ctx context.Context, c *cache.Cache, region cache.RegionID, workingSet int, loadRatio float64,
	stores, loads, errs *atomic.Int64) {
	page := make([]byte, c.PageSize())
	swapped := make([]bool, workingSet)

	for ctx.Err() == nil {
		off := rand.IntN(workingSet)
		if swapped[off] && rand.Float64() < loadRatio {
			if err := c.Load(ctx, region, uint64(off), page); err != nil {
				if ctx.Err() != nil {
					return
				}
				errs.Add(1)
			} else {
				loads.Add(1)
			}
			// Forget the page whether or not the load succeeded.
			swapped[off] = false
			continue
		}

		page[0] = byte(off)
		if err := c.Store(ctx, region, uint64(off), page); err != nil {
			if ctx.Err() != nil {
				return
			}
			errs.Add(1)
			continue
		}
		stores.Add(1)
		swapped[off] = true
	}
}
