package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/pmemkit/pkg/kv"
)

var (
	kvEngine string
	kvConfig string
	kvCreate bool
	kvSize   uint64
)

func init() {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Read and write a key-value database",
		Long: `The kv commands operate on a key-value database. The cmap engine keeps
the pairs in a pool file; the pebble engine keeps them in a directory.
Settings can come from a YAML file with --config; the path argument always
overrides the file's path key.

Example:
  pmemctl kv put --create kv.pool key1 value1
  pmemctl kv get kv.pool key1
  pmemctl kv list kv.pool
  pmemctl kv rm kv.pool key1
  pmemctl kv list --engine pebble ./kvdir`,
	}
	cmd.PersistentFlags().StringVarP(&kvEngine, "engine", "e", "cmap", "Storage engine")
	cmd.PersistentFlags().StringVarP(&kvConfig, "config", "c", "", "YAML engine configuration")
	cmd.PersistentFlags().BoolVar(&kvCreate, "create", false, "Create the database if it does not exist")
	cmd.PersistentFlags().Uint64Var(&kvSize, "size", 64<<20, "Pool size in bytes when creating")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "put <path> <key> <value>",
			Short: "Store a value",
			Args:  cobra.ExactArgs(3),
			RunE:  func(cmd *cobra.Command, args []string) error { return runKVPut(args) },
		},
		&cobra.Command{
			Use:   "get <path> <key>",
			Short: "Print a value",
			Args:  cobra.ExactArgs(2),
			RunE:  func(cmd *cobra.Command, args []string) error { return runKVGet(args) },
		},
		&cobra.Command{
			Use:   "rm <path> <key>",
			Short: "Remove a key",
			Args:  cobra.ExactArgs(2),
			RunE:  func(cmd *cobra.Command, args []string) error { return runKVRemove(args) },
		},
		&cobra.Command{
			Use:   "list <path>",
			Short: "Print every pair",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return runKVList(args) },
		},
	)
	rootCmd.AddCommand(cmd)
}

// openKV opens the database at path with the kv command flags applied.
func openKV(path string) (*kv.DB, error) {
	cfg := kv.NewConfig()
	if kvConfig != "" {
		f, err := os.Open(kvConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		cfg, err = kv.LoadConfig(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", kvConfig, err)
		}
	}
	cfg.PutString(kv.KeyPath, path)
	if kvCreate {
		cfg.PutUint64(kv.KeyCreateIfMissing, 1)
	}
	if !cfg.Has(kv.KeySize) {
		cfg.PutUint64(kv.KeySize, kvSize)
	}

	printVerbose("Opening %s database: %s\n", kvEngine, path)
	return kv.Open(kvEngine, cfg)
}

func runKVPut(args []string) error {
	db, err := openKV(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Put([]byte(args[1]), []byte(args[2])); err != nil {
		return fmt.Errorf("failed to put %q: %w", args[1], err)
	}
	printVerbose("Stored %q\n", args[1])
	return nil
}

func runKVGet(args []string) error {
	db, err := openKV(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := db.Get([]byte(args[1]))
	if err != nil {
		return fmt.Errorf("failed to get %q: %w", args[1], err)
	}
	if jsonOut {
		return printJSON(map[string]string{"key": args[1], "value": string(v)})
	}
	printInfo("%s\n", v)
	return nil
}

func runKVRemove(args []string) error {
	db, err := openKV(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Remove([]byte(args[1])); err != nil {
		return fmt.Errorf("failed to remove %q: %w", args[1], err)
	}
	printVerbose("Removed %q\n", args[1])
	return nil
}

func runKVList(args []string) error {
	db, err := openKV(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	pairs := map[string]string{}
	err = db.GetAll(func(k, v []byte) error {
		if jsonOut {
			pairs[string(k)] = string(v)
			return nil
		}
		printInfo("%s=%s\n", k, v)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list: %w", err)
	}
	if jsonOut {
		return printJSON(pairs)
	}
	n, err := db.CountAll()
	if err != nil {
		return err
	}
	printVerbose("%d pair(s)\n", n)
	return nil
}
