package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmemkit/pmemkit/pool"
	"github.com/pmemkit/pmemkit/snapshot"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and restore compressed pool snapshots",
	}
	cmd.AddCommand(newSnapshotSaveCmd())
	cmd.AddCommand(newSnapshotRestoreCmd())
	cmd.AddCommand(newSnapshotInfoCmd())
	rootCmd.AddCommand(cmd)
}

func newSnapshotSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <pool> <snapshot>",
		Short: "Write a compressed snapshot of a clean pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			poolPath, snapPath := args[0], args[1]

			p, err := pool.Open(poolPath)
			if err != nil {
				return err
			}
			defer p.Close()

			printVerbose("Snapshotting %s (%d bytes)\n", poolPath, p.Size())
			if err := snapshot.Save(snapPath, p); err != nil {
				return err
			}
			printInfo("Saved snapshot of %s to %s\n", poolPath, snapPath)
			return nil
		},
	}
}

func newSnapshotRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot> <pool>",
		Short: "Restore a snapshot as a new pool file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapPath, poolPath := args[0], args[1]

			if err := snapshot.RestoreFile(snapPath, poolPath); err != nil {
				return err
			}
			printInfo("Restored %s from %s\n", poolPath, snapPath)
			return nil
		},
	}
}

func newSnapshotInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <snapshot>",
		Short: "Show snapshot metadata without restoring it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := snapshot.ReadInfoFile(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(map[string]interface{}{
					"pool_uid": fmt.Sprintf("%#016x", info.PoolUID),
					"raw_size": info.RawSize,
					"created":  info.Created.UTC(),
				})
			}
			printInfo("Pool UID:  %#016x\n", info.PoolUID)
			printInfo("Raw size:  %d bytes\n", info.RawSize)
			printInfo("Created:   %s\n", info.Created.UTC())
			return nil
		},
	}
}
