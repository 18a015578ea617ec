package obj

import (
	"log/slog"

	"github.com/joshuapare/pmemkit/pool"
	"github.com/joshuapare/pmemkit/pool/alloc"
)

// Options controls how a store is created or opened. nil selects defaults.
type Options struct {
	// Mapper maps the pool file. Default: pool.DefaultMapper().
	Mapper pool.Mapper

	// FlushMode selects the barrier each drain issues. Default: FlushAuto.
	FlushMode FlushMode

	// PreFault populates the page tables after mapping (linux only).
	PreFault bool

	// SizeClasses tunes the allocator's free lists. Default: alloc.DefaultConfig.
	SizeClasses *alloc.SizeClassConfig

	// Logger receives store events. Default: the package logger, which
	// discards until logger.Init is called.
	Logger *slog.Logger
}

func (o *Options) poolOptions() *pool.Options {
	if o == nil {
		return nil
	}
	return &pool.Options{
		Mapper:    o.Mapper,
		FlushMode: o.FlushMode,
		PreFault:  o.PreFault,
		Logger:    o.Logger,
	}
}

func (o *Options) sizeClasses() *alloc.SizeClassConfig {
	if o == nil {
		return nil
	}
	return o.SizeClasses
}
