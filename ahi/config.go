// Package ahi ties the fingerprint, arena and heuristic packages
// together into the adaptive hash index's public operations: page
// build/drop, split-time entry migration, the hash lookup fast path,
// and the enable/disable/lazy-free lifecycle. It plays the
// orchestrating role over fold, arena and heuristic that package
// quantum plays over types, alloc and space.
package ahi

import "github.com/outofforest/ahi/heuristic"

// Config holds every AHI tunable. Like alloc.Config and
// space.Config[K, V], it is a plain struct populated by the embedding
// binary; this package never reads the environment itself.
type Config struct {
	// Enabled is carried in the config but not read by NewGlobal: a new
	// Global always starts disabled, whatever this field says, and
	// EnableGlobal/DisableGlobal switch it on and off.
	Enabled bool

	// BuildPerPageLimit and BuildPotentialLimit are the heuristic's
	// build-recommendation thresholds. Zero means "use the package
	// default".
	BuildPerPageLimit   uint32
	BuildPotentialLimit uint32

	// BufferPoolBytes and PointerSize size the hash table at enable
	// time: n_cells ~= BufferPoolBytes / PointerSize / 64.
	BufferPoolBytes uint64
	PointerSize     uint64
}

func (c Config) withDefaults() Config {
	if c.BuildPerPageLimit == 0 {
		c.BuildPerPageLimit = heuristic.DefaultBuildPerPageLimit
	}
	if c.BuildPotentialLimit == 0 {
		c.BuildPotentialLimit = heuristic.DefaultBuildPotentialLimit
	}
	if c.PointerSize == 0 {
		c.PointerSize = 8
	}
	return c
}

func (c Config) hashTableCells() uint32 {
	if c.BufferPoolBytes == 0 || c.PointerSize == 0 {
		return 1024
	}
	n := c.BufferPoolBytes / c.PointerSize / 64
	if n == 0 {
		n = 1
	}
	if n > 1<<31 {
		n = 1 << 31
	}
	return uint32(n)
}
