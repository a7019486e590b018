package main

import (
	"github.com/spf13/cobra"

	"github.com/pmemkit/pmemkit/heap"
	"github.com/pmemkit/pmemkit/pool"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <pool>",
		Short: "Report heap occupancy statistics for a pool",
		Long: `Stats walks the pool's heap and reports extent, cell, and byte
occupancy, plus the utilization of the heap area.

Example:
  pmemctl stats app.pool
  pmemctl stats app.pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0])
		},
	}
}

type statsReport struct {
	Path           string  `json:"path"`
	HeapBytes      uint64  `json:"heap_bytes"`
	Extents        int     `json:"extents"`
	AllocatedCells int     `json:"allocated_cells"`
	AllocatedBytes int64   `json:"allocated_bytes"`
	FreeCells      int     `json:"free_cells"`
	FreeBytes      int64   `json:"free_bytes"`
	Utilization    float64 `json:"utilization"`
}

func runStats(path string) error {
	printVerbose("Opening pool: %s\n", path)

	p, err := pool.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	res := heap.Check(p)
	report := statsReport{
		Path:           path,
		HeapBytes:      p.Header().HeapSize(),
		Extents:        res.Extents,
		AllocatedCells: res.AllocatedCells,
		AllocatedBytes: res.AllocatedBytes,
		FreeCells:      res.FreeCells,
		FreeBytes:      res.FreeBytes,
	}
	if total := report.AllocatedBytes + report.FreeBytes; total > 0 {
		report.Utilization = float64(report.AllocatedBytes) / float64(total)
	}

	if jsonOut {
		return printJSON(report)
	}

	printInfo("Heap size:       %d bytes in %d extent(s)\n", report.HeapBytes, report.Extents)
	printInfo("Allocated:       %d cell(s), %d bytes\n", report.AllocatedCells, report.AllocatedBytes)
	printInfo("Free:            %d cell(s), %d bytes\n", report.FreeCells, report.FreeBytes)
	printInfo("Utilization:     %.1f%%\n", report.Utilization*100)
	return nil
}
