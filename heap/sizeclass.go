package heap

import "math"

// SizeClassConfig defines the free-list size class strategy. Different
// configurations trade lookup granularity against heap count.
type SizeClassConfig struct {
	// Name for this configuration (for benchmarking).
	Name string

	// Small allocation settings (linear increments).
	SmallMin       int64
	SmallMax       int64
	SmallIncrement int64

	// Medium allocation settings (logarithmic growth). Cells at or above
	// MediumMax go to the large list.
	MediumMax    int64
	GrowthFactor float64
}

var (
	// ConfigBalanced is a balance between table size and granularity:
	// 16-512 step 16 + 512-16K log growth.
	ConfigBalanced = SizeClassConfig{
		Name:           "Balanced",
		SmallMin:       16,
		SmallMax:       512,
		SmallIncrement: 16,
		MediumMax:      16384,
		GrowthFactor:   1.5,
	}

	// ConfigFineGrained has many small buckets for varied object sizes.
	ConfigFineGrained = SizeClassConfig{
		Name:           "FineGrained",
		SmallMin:       16,
		SmallMax:       256,
		SmallIncrement: 8,
		MediumMax:      16384,
		GrowthFactor:   1.5,
	}

	// DefaultConfig is used when Open is given a nil config.
	DefaultConfig = ConfigBalanced
)

// sizeClassTable holds the computed size class boundaries.
type sizeClassTable struct {
	config     SizeClassConfig
	boundaries []int64 // upper bound for each size class
	numClasses int
}

func newSizeClassTable(config SizeClassConfig) *sizeClassTable {
	table := &sizeClassTable{
		config:     config,
		boundaries: make([]int64, 0, 64),
	}

	for size := config.SmallMin; size < config.SmallMax; size += config.SmallIncrement {
		table.boundaries = append(table.boundaries, size+config.SmallIncrement-1)
	}

	if config.SmallMax < config.MediumMax {
		size := config.SmallMax
		for size < config.MediumMax {
			nextSize := int64(math.Ceil(float64(size) * config.GrowthFactor))
			if nextSize <= size {
				nextSize = size + 1
			}
			// The last class must stop exactly at MediumMax so that
			// cells at or above it go to the large list.
			if nextSize > config.MediumMax {
				nextSize = config.MediumMax
			}
			table.boundaries = append(table.boundaries, nextSize-1)
			size = nextSize
		}
	}

	table.numClasses = len(table.boundaries)
	return table
}

// getSizeClass returns the size class index for a cell size, or numClasses
// for sizes that belong on the large list.
func (t *sizeClassTable) getSizeClass(size int64) int {
	lo, hi := 0, t.numClasses-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if size <= t.boundaries[mid] {
			if mid == 0 || size > t.boundaries[mid-1] {
				return mid
			}
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return t.numClasses
}

// NumClasses returns the number of size classes (excluding the large list).
func (t *sizeClassTable) NumClasses() int {
	return t.numClasses
}
