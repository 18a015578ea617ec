// Package kv is a small key-value layer over persistent storage engines.
//
// An engine is picked by name when the database is opened:
//
//	cfg := kv.NewConfig()
//	cfg.PutString("path", "/mnt/pmem/kv.pool")
//	cfg.PutUint64("size", 64<<20)
//	cfg.PutUint64("force_create", 1)
//
//	db, err := kv.Open("cmap", cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	_ = db.Put([]byte("key1"), []byte("value1"))
//
// Two engines are built in. "cmap" is a chained hash map kept inside a
// pool/obj store; every Put and Remove is one atomic batch, so a crash
// leaves either the old or the new value. "pebble" stores the pairs in a
// cockroachdb/pebble database under the configured directory and writes
// with Sync.
//
// # Configuration keys
//
//	path          pool file (cmap) or database directory (pebble)
//	size          pool size in bytes when creating (cmap)
//	layout        pool layout name (cmap, default "pmemkv")
//	buckets       bucket count when creating (cmap, default 1024)
//	force_create  1 to create a new pool, failing if one exists
//	create_if_missing  1 to create the pool only when it does not exist
//
// Configurations can also be read from YAML with LoadConfig.
package kv
