package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/pmemkit/pkg/obj"
	"github.com/joshuapare/pmemkit/pool"
)

var infoHeaderOnly bool

func init() {
	cmd := newInfoCmd()
	cmd.Flags().BoolVar(&infoHeaderOnly, "header", false, "Only read the header; do not open the pool")
	rootCmd.AddCommand(cmd)
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <pool>",
		Short: "Report pool header and heap statistics",
		Long: `The info command prints the pool header and, unless --header is given,
opens the pool and reports heap occupancy. Opening a pool runs recovery,
so an interrupted batch is completed before the statistics are taken.

Example:
  pmemctl info bank.pool
  pmemctl info bank.pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
	return cmd
}

// poolInfo is the JSON shape of the info output.
type poolInfo struct {
	Path     string         `json:"path"`
	Layout   string         `json:"layout"`
	Version  string         `json:"version"`
	ID       string         `json:"id"`
	Size     int64          `json:"size"`
	Created  time.Time      `json:"created"`
	Clean    bool           `json:"clean"`
	Sequence uint64         `json:"sequence"`
	RootSize uint64         `json:"root_size"`
	Replayed int            `json:"replayed,omitempty"`
	IsPMEM   bool           `json:"is_pmem"`
	Heap     *heapInfo      `json:"heap,omitempty"`
	PerType  map[string]int `json:"per_type,omitempty"`
}

type heapInfo struct {
	FreeSlots     int    `json:"free_slots"`
	OccupiedSlots int    `json:"occupied_slots"`
	FreeBytes     uint64 `json:"free_bytes"`
	UsedBytes     uint64 `json:"used_bytes"`
	LargestFree   uint64 `json:"largest_free"`
}

func runInfo(args []string) error {
	path := args[0]
	printVerbose("Reading header: %s\n", path)

	h, size, err := pool.ReadHeaderFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pool header: %w", err)
	}
	info := poolInfo{
		Path:     path,
		Layout:   h.Layout(),
		Version:  fmt.Sprintf("%d.%d", h.Major(), h.Minor()),
		ID:       fmt.Sprintf("%016x", h.PoolID()),
		Size:     h.PoolSize(),
		Created:  h.Created(),
		Clean:    h.IsClean(),
		Sequence: h.Sequence(),
		RootSize: h.RootSize(),
	}
	if err := h.Validate(size); err != nil {
		return fmt.Errorf("invalid pool header: %w", err)
	}

	if !infoHeaderOnly {
		printVerbose("Opening pool with layout %q\n", info.Layout)
		s, err := obj.Open(path, info.Layout, storeOptions())
		if err != nil {
			return fmt.Errorf("failed to open pool: %w", err)
		}
		defer s.Close()

		st := s.Stats()
		info.Replayed = s.Recovery().Replayed
		info.Sequence = st.Sequence
		info.Clean = true
		info.IsPMEM = st.IsPMEM
		info.Heap = &heapInfo{
			FreeSlots:     st.Heap.FreeSlots,
			OccupiedSlots: st.Heap.OccupiedSlots,
			FreeBytes:     st.Heap.FreeBytes,
			UsedBytes:     st.Heap.UsedBytes,
			LargestFree:   st.Heap.LargestFree,
		}
		info.PerType = make(map[string]int, len(st.Heap.PerType))
		for t, n := range st.Heap.PerType {
			info.PerType[typeName(t)] = n
		}
	}

	if jsonOut {
		return printJSON(info)
	}

	printInfo("\nPool Information:\n")
	printInfo("  File: %s\n", info.Path)
	printInfo("  Layout: %s\n", info.Layout)
	printInfo("  Version: %s\n", info.Version)
	printInfo("  ID: %s\n", info.ID)
	printInfo("  Size: %s\n", formatBytes(uint64(info.Size)))
	printInfo("  Created: %s\n", info.Created.Format(time.RFC3339))
	printInfo("  Batches committed: %d\n", info.Sequence)
	if info.RootSize != 0 {
		printInfo("  Root: %d bytes\n", info.RootSize)
	}
	if !info.Clean {
		printInfo("  State: interrupted batch pending recovery\n")
	}
	if info.Replayed > 0 {
		printInfo("  Recovery: replayed %d record(s)\n", info.Replayed)
	}
	if info.Heap == nil {
		return nil
	}

	printInfo("\nHeap:\n")
	printInfo("  Objects: %d\n", info.Heap.OccupiedSlots)
	printInfo("  Used: %s\n", formatBytes(info.Heap.UsedBytes))
	printInfo("  Free: %s in %d slot(s), largest %s\n",
		formatBytes(info.Heap.FreeBytes), info.Heap.FreeSlots, formatBytes(info.Heap.LargestFree))
	if len(info.PerType) > 0 {
		printInfo("\nObjects by type:\n")
		names := make([]string, 0, len(info.PerType))
		for name := range info.PerType {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			printInfo("  %-10s %d\n", name, info.PerType[name])
		}
	}
	return nil
}

func typeName(t obj.TypeNum) string {
	if t == obj.TypeRoot {
		return "root"
	}
	return fmt.Sprintf("%d", uint32(t))
}
