package main

import (
	"github.com/spf13/cobra"

	"github.com/pmemkit/pmemkit/pool"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var maxSize int64

	cmd := &cobra.Command{
		Use:   "create <pool>",
		Short: "Create a new empty pool file",
		Long: `Create initializes a new pool file with an empty heap. The pool grows
on demand as objects are allocated, up to --max-size if one is given.

Example:
  pmemctl create app.pool
  pmemctl create app.pool --max-size 1073741824`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args[0], maxSize)
		},
	}
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "Maximum pool size in bytes (0 = unbounded)")
	return cmd
}

func runCreate(path string, maxSize int64) error {
	opts := pool.DefaultOptions
	opts.MaxSize = maxSize

	p, err := pool.Create(path, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	printInfo("Created pool %s (uid %#016x)\n", path, p.UID())
	return nil
}
