package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmemkit/pmemkit/pool"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <pool>",
		Short: "Validate a pool header and report its metadata",
		Long: `Info validates a pool file's header and displays its identity,
sequence numbers, heap size, and creation time.

Example:
  pmemctl info app.pool
  pmemctl info app.pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args[0])
		},
	}
}

type poolInfo struct {
	Path     string `json:"path"`
	UID      string `json:"uid"`
	Size     int64  `json:"size"`
	HeapSize uint64 `json:"heap_size"`
	MaxSize  uint64 `json:"max_size"`
	Seq1     uint32 `json:"sequence1"`
	Seq2     uint32 `json:"sequence2"`
	Clean    bool   `json:"clean"`
	Created  string `json:"created"`
}

func runInfo(path string) error {
	printVerbose("Opening pool: %s\n", path)

	p, err := pool.Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	hdr := p.Header()
	info := poolInfo{
		Path:     path,
		UID:      fmt.Sprintf("%#016x", p.UID()),
		Size:     p.Size(),
		HeapSize: hdr.HeapSize(),
		MaxSize:  hdr.MaxSize(),
		Seq1:     hdr.Sequence1(),
		Seq2:     hdr.Sequence2(),
		Clean:    hdr.IsClean(),
		Created:  time.Unix(0, int64(hdr.Created())).UTC().Format(time.RFC3339),
	}

	if jsonOut {
		return printJSON(info)
	}

	printInfo("Pool:      %s\n", info.Path)
	printInfo("UID:       %s\n", info.UID)
	printInfo("Size:      %d bytes\n", info.Size)
	printInfo("Heap size: %d bytes\n", info.HeapSize)
	if info.MaxSize != 0 {
		printInfo("Max size:  %d bytes\n", info.MaxSize)
	} else {
		printInfo("Max size:  unbounded\n")
	}
	printInfo("Sequences: %d/%d (clean=%v)\n", info.Seq1, info.Seq2, info.Clean)
	printInfo("Created:   %s\n", info.Created)

	if !info.Clean {
		printInfo("\nWARNING: the pool was not cleanly committed; the last transaction may be incomplete\n")
	}
	return nil
}
