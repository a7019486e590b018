package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmemkit/pmemkit/heap"
	"github.com/pmemkit/pmemkit/pool"
)

func init() {
	rootCmd.AddCommand(newCheckCmd())
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <pool>",
		Short: "Verify the heap structure of a pool",
		Long: `Check walks every extent and cell in the pool and verifies the
structural invariants the allocator depends on. It exits non-zero if any
violation is found.

Example:
  pmemctl check app.pool
  pmemctl check app.pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0])
		},
	}
}

type checkReport struct {
	Path           string   `json:"path"`
	OK             bool     `json:"ok"`
	Extents        int      `json:"extents"`
	AllocatedCells int      `json:"allocated_cells"`
	FreeCells      int      `json:"free_cells"`
	AllocatedBytes int64    `json:"allocated_bytes"`
	FreeBytes      int64    `json:"free_bytes"`
	Problems       []string `json:"problems,omitempty"`
}

func runCheck(path string) error {
	printVerbose("Opening pool: %s\n", path)

	p, err := pool.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	res := heap.Check(p)
	report := checkReport{
		Path:           path,
		OK:             res.OK(),
		Extents:        res.Extents,
		AllocatedCells: res.AllocatedCells,
		FreeCells:      res.FreeCells,
		AllocatedBytes: res.AllocatedBytes,
		FreeBytes:      res.FreeBytes,
		Problems:       res.Problems,
	}

	if jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printInfo("Extents:         %d\n", report.Extents)
		printInfo("Allocated cells: %d (%d bytes)\n", report.AllocatedCells, report.AllocatedBytes)
		printInfo("Free cells:      %d (%d bytes)\n", report.FreeCells, report.FreeBytes)
		for _, problem := range report.Problems {
			printInfo("PROBLEM: %s\n", problem)
		}
	}

	if !report.OK {
		return fmt.Errorf("check found %d problem(s)", len(report.Problems))
	}
	printInfo("OK\n")
	return nil
}
