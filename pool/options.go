package pool

import "log/slog"

// FlushMode controls which OS-level barrier Sync issues after flushed
// ranges have been written back.
type FlushMode int

const (
	// FlushAuto issues fdatasync, the cheapest call that makes data durable.
	FlushAuto FlushMode = iota

	// FlushDataOnly skips the fdatasync. Written-back ranges rely on the
	// page cache (or on MAP_SYNC persistent memory) for durability.
	FlushDataOnly

	// FlushFull requests the strongest barrier available (F_FULLFSYNC on darwin).
	FlushFull
)

func (m FlushMode) String() string {
	switch m {
	case FlushAuto:
		return "auto"
	case FlushDataOnly:
		return "data-only"
	case FlushFull:
		return "full"
	default:
		return "unknown"
	}
}

// Options controls how a pool is mapped. A nil *Options selects the defaults.
type Options struct {
	// Mapper maps the backing file. Default: DefaultMapper().
	Mapper Mapper

	// FlushMode selects the barrier used by Sync. Default: FlushAuto.
	FlushMode FlushMode

	// PreFault touches every page after mapping so the first accesses do
	// not take page faults. Only effective on linux.
	PreFault bool

	// Logger receives pool lifecycle events. Default: logger.L.
	Logger *slog.Logger
}

func (o *Options) withDefaults() Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Mapper == nil {
		out.Mapper = DefaultMapper()
	}
	return out
}
