package kv

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Recognized configuration keys.
const (
	KeyPath            = "path"
	KeySize            = "size"
	KeyLayout          = "layout"
	KeyBuckets         = "buckets"
	KeyForceCreate     = "force_create"
	KeyCreateIfMissing = "create_if_missing"
)

// Config holds typed engine settings. A key holds either a string or a
// uint64; reading it as the other type is an ErrConfig.
type Config struct {
	values map[string]any
}

// NewConfig returns an empty configuration.
func NewConfig() *Config {
	return &Config{values: make(map[string]any)}
}

// PutString sets key to a string value.
func (c *Config) PutString(key, value string) {
	c.values[key] = value
}

// PutUint64 sets key to an unsigned integer value.
func (c *Config) PutUint64(key string, value uint64) {
	c.values[key] = value
}

// Has reports whether key is set.
func (c *Config) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Keys returns the set keys in sorted order.
func (c *Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.values))
}

// GetString returns the string stored under key.
func (c *Config) GetString(key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %q not set", ErrConfig, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, not a string", ErrConfig, key, v)
	}
	return s, nil
}

// GetUint64 returns the integer stored under key.
func (c *Config) GetUint64(key string) (uint64, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q not set", ErrConfig, key)
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("%w: %q is %T, not an integer", ErrConfig, key, v)
	}
	return n, nil
}

// stringOr returns the string under key, or def when the key is unset.
func (c *Config) stringOr(key, def string) (string, error) {
	if !c.Has(key) {
		return def, nil
	}
	return c.GetString(key)
}

// uint64Or returns the integer under key, or def when the key is unset.
func (c *Config) uint64Or(key string, def uint64) (uint64, error) {
	if !c.Has(key) {
		return def, nil
	}
	return c.GetUint64(key)
}

// flag reads a 0/1 switch.
func (c *Config) flag(key string) (bool, error) {
	n, err := c.uint64Or(key, 0)
	if err != nil {
		return false, err
	}
	if n > 1 {
		return false, fmt.Errorf("%w: %q must be 0 or 1, got %d", ErrConfig, key, n)
	}
	return n == 1, nil
}

// LoadConfig reads a flat YAML mapping. Integers and booleans become
// uint64 values, strings stay strings.
//
//	path: /mnt/pmem/kv.pool
//	size: 67108864
//	force_create: true
func LoadConfig(r io.Reader) (*Config, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	cfg := NewConfig()
	for k, v := range raw {
		switch x := v.(type) {
		case string:
			cfg.PutString(k, x)
		case int:
			if x < 0 {
				return nil, fmt.Errorf("%w: %q is negative", ErrConfig, k)
			}
			cfg.PutUint64(k, uint64(x))
		case int64:
			if x < 0 {
				return nil, fmt.Errorf("%w: %q is negative", ErrConfig, k)
			}
			cfg.PutUint64(k, uint64(x))
		case uint64:
			cfg.PutUint64(k, x)
		case bool:
			var n uint64
			if x {
				n = 1
			}
			cfg.PutUint64(k, n)
		default:
			return nil, fmt.Errorf("%w: %q has unsupported type %T", ErrConfig, k, v)
		}
	}
	return cfg, nil
}
