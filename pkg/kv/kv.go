package kv

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/pmemkit/internal/logger"
)

// Engine is a storage backend. Implementations guard their own state;
// DB adds no locking of its own.
type Engine interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Remove(key []byte) error
	GetAll(fn func(key, value []byte) error) error
	CountAll() (int, error)
	Close() error
}

// OpenFunc opens an engine from a configuration.
type OpenFunc func(cfg *Config) (Engine, error)

var (
	enginesMu sync.RWMutex
	engines   = map[string]OpenFunc{
		"cmap":   openCMap,
		"pebble": openPebble,
	}
)

// Register makes an engine available to Open under name, replacing any
// engine registered under it before.
func Register(name string, open OpenFunc) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = open
}

// Engines returns the registered engine names in sorted order.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	return slices.Sorted(maps.Keys(engines))
}

// DB is an open key-value database.
type DB struct {
	name   string
	engine Engine
	closed atomic.Bool
}

// Open opens the engine called name.
func Open(name string, cfg *Config) (*DB, error) {
	enginesMu.RLock()
	open, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownEngine, name, Engines())
	}
	if cfg == nil {
		cfg = NewConfig()
	}

	e, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("kv: open %s: %w", name, err)
	}
	path, _ := cfg.stringOr(KeyPath, "")
	logger.L.Debug("kv opened", "engine", name, "path", path)
	return &DB{name: name, engine: e}, nil
}

// Engine returns the name the database was opened with.
func (db *DB) Engine() string { return db.name }

// Put stores value under key, replacing any previous value.
func (db *DB) Put(key, value []byte) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.engine.Put(key, value)
}

// Get returns a copy of the value stored under key.
func (db *DB) Get(key []byte) ([]byte, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return db.engine.Get(key)
}

// Remove deletes key. It returns ErrNotFound when key is absent.
func (db *DB) Remove(key []byte) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.engine.Remove(key)
}

// GetAll calls fn for every pair. The slices are only valid during the
// call. An error from fn stops the walk and is returned.
func (db *DB) GetAll(fn func(key, value []byte) error) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return db.engine.GetAll(fn)
}

// CountAll returns the number of stored pairs.
func (db *DB) CountAll() (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	return db.engine.CountAll()
}

// Close releases the engine. Closing twice is a no-op.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	return db.engine.Close()
}
