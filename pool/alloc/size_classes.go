package alloc

import (
	"math"
	"sort"

	"github.com/joshuapare/pmemkit/internal/format"
)

// SizeClassConfig defines how free slots are bucketed by size.
type SizeClassConfig struct {
	// Name for this configuration
	Name string

	// Small slots use linear buckets
	SmallMin       uint64
	SmallMax       uint64
	SmallIncrement uint64

	// Medium slots grow geometrically up to MediumMax; anything larger
	// lands in a single large class.
	MediumMax    uint64
	GrowthFactor float64
}

var (
	// ConfigBalanced: 32-512 step 16 + 512-64K log growth.
	ConfigBalanced = SizeClassConfig{
		Name:           "Balanced",
		SmallMin:       format.MinSlotSize,
		SmallMax:       512,
		SmallIncrement: 16,
		MediumMax:      64 << 10,
		GrowthFactor:   1.5,
	}

	// ConfigCoarse: fewer buckets, more scanning in the large class.
	ConfigCoarse = SizeClassConfig{
		Name:           "Coarse",
		SmallMin:       format.MinSlotSize,
		SmallMax:       512,
		SmallIncrement: 64,
		MediumMax:      16 << 10,
		GrowthFactor:   2.0,
	}

	// DefaultConfig is used when nil is passed to NewHeap.
	DefaultConfig = ConfigBalanced
)

// sizeClassTable holds the computed size class boundaries.
type sizeClassTable struct {
	config     SizeClassConfig
	boundaries []uint64 // inclusive upper bound of each class
}

func newSizeClassTable(config SizeClassConfig) *sizeClassTable {
	t := &sizeClassTable{config: config, boundaries: make([]uint64, 0, 64)}

	for size := config.SmallMin; size < config.SmallMax; size += config.SmallIncrement {
		t.boundaries = append(t.boundaries, size+config.SmallIncrement-1)
	}

	size := config.SmallMax
	for size < config.MediumMax {
		next := uint64(math.Ceil(float64(size) * config.GrowthFactor))
		if next <= size {
			next = size + 1
		}
		t.boundaries = append(t.boundaries, next-1)
		size = next
	}
	return t
}

// classOf returns the class index for a slot size. Sizes beyond the last
// boundary map to numClasses(), the large class.
func (t *sizeClassTable) classOf(size uint64) int {
	return sort.Search(len(t.boundaries), func(i int) bool { return size <= t.boundaries[i] })
}

// numClasses excludes the large class.
func (t *sizeClassTable) numClasses() int { return len(t.boundaries) }

func (t *sizeClassTable) String() string { return t.config.Name }
