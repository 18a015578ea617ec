package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/pmemkit/pkg/obj"
)

var (
	createLayout string
	createSize   int64
)

func init() {
	cmd := newCreateCmd()
	cmd.Flags().StringVarP(&createLayout, "layout", "l", "", "Layout name stored in the header (required)")
	cmd.Flags().Int64VarP(&createSize, "size", "s", obj.MinPoolSize, "Pool size in bytes")
	_ = cmd.MarkFlagRequired("layout")
	rootCmd.AddCommand(cmd)
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <pool>",
		Short: "Create an empty pool file",
		Long: `The create command creates a new pool file with the given layout name
and size. The size is rounded down to a whole page. An existing non-empty
file is never overwritten.

Example:
  pmemctl create --layout bank --size 67108864 bank.pool`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(args)
		},
	}
	return cmd
}

func runCreate(args []string) error {
	path := args[0]
	printVerbose("Creating pool: %s\n", path)

	s, err := obj.Create(path, createLayout, createSize, 0o644, storeOptions())
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	defer s.Close()

	h := s.Pool().Header()
	if jsonOut {
		return printJSON(map[string]any{
			"path":   path,
			"layout": h.Layout(),
			"size":   h.PoolSize(),
			"id":     fmt.Sprintf("%016x", h.PoolID()),
		})
	}
	printInfo("Created %s (layout %q, %s, id %016x)\n",
		path, h.Layout(), formatBytes(uint64(h.PoolSize())), h.PoolID())
	return nil
}
