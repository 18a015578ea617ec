package kv

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// pebbleEngine stores pairs in a pebble database. Every write is synced.
type pebbleEngine struct {
	mu sync.Mutex // serializes Remove's read-then-delete against Put
	db *pebble.DB
}

func openPebble(cfg *Config) (Engine, error) {
	dir, err := cfg.GetString(KeyPath)
	if err != nil {
		return nil, err
	}
	force, err := cfg.flag(KeyForceCreate)
	if err != nil {
		return nil, err
	}
	missing, err := cfg.flag(KeyCreateIfMissing)
	if err != nil {
		return nil, err
	}

	opts := &pebble.Options{
		ErrorIfExists:    force,
		ErrorIfNotExists: !force && !missing,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleEngine{db: db}, nil
}

func (e *pebbleEngine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.Set(key, value, pebble.Sync)
}

func (e *pebbleEngine) Get(key []byte) ([]byte, error) {
	val, closer, err := e.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(val), nil
}

func (e *pebbleEngine) Remove(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, closer, err := e.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_ = closer.Close()
	return e.db.Delete(key, pebble.Sync)
}

func (e *pebbleEngine) GetAll(fn func(key, value []byte) error) error {
	iter, err := e.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return fmt.Errorf("kv: pebble iterate: %w", err)
	}
	return iter.Close()
}

func (e *pebbleEngine) CountAll() (int, error) {
	n := 0
	err := e.GetAll(func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func (e *pebbleEngine) Close() error {
	return e.db.Close()
}
