package benchmark

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/lightsheet-go/internal/conf"
	"github.com/tphakala/lightsheet-go/internal/recycler"
	"github.com/tphakala/lightsheet-go/internal/stack"
)

var (
	workers    int
	iterations int
	holdTime   time.Duration
)

// Command creates the stack recycler benchmark command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Run stack recycler throughput benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 || workers > 256 {
				return fmt.Errorf("workers must be between 1 and 256, got %d", workers)
			}
			if iterations < 1 {
				return fmt.Errorf("iterations must be positive, got %d", iterations)
			}
			return runBenchmark(cmd.Context(), settings)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "concurrent stack consumers (1-256)")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1000, "stacks requested per worker")
	cmd.Flags().DurationVar(&holdTime, "hold", 0, "how long each worker holds a stack before releasing it")

	return cmd
}

// benchmarkResults holds the outcome of one recycler run
type benchmarkResults struct {
	gets      int64
	hits      int64
	misses    int64
	timeouts  int64
	evictions int64
	elapsed   time.Duration
	maxWait   time.Duration
}

// counter implements recycler.Metrics for the benchmark
type counter struct {
	hits, misses, timeouts, evictions atomic.Int64
	maxWait                           atomic.Int64
}

func (c *counter) RecordGet(_, outcome string, wait time.Duration) {
	switch outcome {
	case recycler.OutcomeHit:
		c.hits.Add(1)
	case recycler.OutcomeMiss:
		c.misses.Add(1)
	case recycler.OutcomeTimeout:
		c.timeouts.Add(1)
	}
	for {
		current := c.maxWait.Load()
		if int64(wait) <= current || c.maxWait.CompareAndSwap(current, int64(wait)) {
			return
		}
	}
}

func (c *counter) RecordEviction(string) { c.evictions.Add(1) }

func (c *counter) UpdatePool(string, int, int, int64, int64) {}

func runBenchmark(ctx context.Context, settings *conf.Settings) error {
	req := stack.NewRequest(int64(settings.Cameras.Width), int64(settings.Cameras.Height), int64(settings.Cameras.Depth))
	req.BytesPerVoxel = int64(settings.Cameras.BytesPerVoxel)

	fmt.Printf("📦 Stack %s, %.1f MiB\n", req, float64(req.SizeInBytes())/(1<<20))
	fmt.Printf("🚀 %d workers x %d stacks, max live %d, max available %d\n\n",
		workers, iterations, settings.Recycler.MaxLive, settings.Recycler.MaxAvailable)

	before, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("❌ failed to read system memory: %w", err)
	}

	metrics := &counter{}
	r, err := stack.NewRecycler("benchmark", settings.Recycler.MaxLive, settings.Recycler.MaxAvailable,
		stack.WithMetrics(metrics),
		stack.WithMemoryGuard(stack.NewSystemMemoryGuard(settings.Recycler.MinFreeMemoryPercent)))
	if err != nil {
		return err
	}

	results, runErr := run(ctx, r, req, settings.Recycler.WaitTimeout)
	results.hits = metrics.hits.Load()
	results.misses = metrics.misses.Load()
	results.timeouts = metrics.timeouts.Load()
	results.evictions = metrics.evictions.Load()
	results.maxWait = time.Duration(metrics.maxWait.Load())

	after, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("❌ failed to read system memory: %w", err)
	}
	pooled := r.AvailableMemoryBytes()

	if err := r.Free(); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("❌ benchmark failed: %w", runErr)
	}

	fmt.Printf("Results:\n")
	fmt.Printf("Metric              Value\n")
	fmt.Printf("──────────────────  ──────────────────────\n")
	fmt.Printf("Stacks              %d\n", results.gets)
	fmt.Printf("Throughput          %.0f stacks/sec\n", float64(results.gets)/results.elapsed.Seconds())
	fmt.Printf("Bandwidth           %.1f MiB/sec\n", float64(results.gets*req.SizeInBytes())/(1<<20)/results.elapsed.Seconds())
	fmt.Printf("Reused              %d (%.1f%%)\n", results.hits, percent(results.hits, results.hits+results.misses))
	fmt.Printf("Allocated           %d\n", results.misses)
	fmt.Printf("Evicted             %d\n", results.evictions)
	fmt.Printf("Timed out           %d\n", results.timeouts)
	fmt.Printf("Longest wait        %v\n", results.maxWait.Round(time.Microsecond))
	fmt.Printf("Pooled at end       %.1f MiB\n", float64(pooled)/(1<<20))
	fmt.Printf("System memory used  %.1f%% -> %.1f%%\n", before.UsedPercent, after.UsedPercent)

	return nil
}

// run has every worker request, fill and release stacks. Timed out requests
// are counted by the metrics and do not fail the run.
func run(ctx context.Context, r *stack.Recycler, req stack.Request, timeout time.Duration) (benchmarkResults, error) {
	var results benchmarkResults
	var gets atomic.Int64

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for i := range iterations {
				s, err := r.GetOrWait(ctx, timeout, req)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					continue
				}
				buf := s.Bytes()
				buf[0], buf[len(buf)-1] = byte(i), byte(i)
				if holdTime > 0 {
					time.Sleep(holdTime)
				}
				s.Release()
				gets.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	results.elapsed = time.Since(start)
	results.gets = gets.Load()
	return results, err
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
