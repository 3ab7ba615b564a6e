// Package heuristic implements the AHI's self-tuning build heuristic
// (per-page metadata and per-index search heuristic): it watches real B-tree cursor traffic
// and recommends, per index, which leading key prefix is worth
// hashing, and, per page, whether that recommendation has paid off
// often enough to justify building a hash index.
//
// Every field this package touches on types.SearchInfo and
// types.BlockInfo is read and written through sync/atomic accessors.
// The heuristic is deliberately racy: two goroutines positioning
// cursors concurrently may observe a torn ensemble of these counters,
// and that is fine -- the worst outcome is a suboptimal build decision,
// never a corrupted one.
package heuristic

import "github.com/outofforest/ahi/types"

// DefaultBuildPerPageLimit and DefaultBuildPotentialLimit are the
// default build-recommendation tunables.
const (
	DefaultBuildPerPageLimit   = 16
	DefaultBuildPotentialLimit = 100
)

// Tuner holds the two threshold tunables the build-recommendation
// predicate compares against. It carries no mutable state of its own;
// all state lives in the types.SearchInfo/types.BlockInfo the caller
// passes in.
type Tuner struct {
	BuildPerPageLimit   uint32
	BuildPotentialLimit uint32
}

// NewTuner returns a Tuner with the default thresholds.
func NewTuner() Tuner {
	return Tuner{
		BuildPerPageLimit:   DefaultBuildPerPageLimit,
		BuildPotentialLimit: DefaultBuildPotentialLimit,
	}
}

// CursorObservation is the subset of a positioned B-tree cursor the
// heuristic needs. It is distinct from contracts.Cursor (which also
// carries the fold/flag/rec fields relevant to the hash lookup fast
// path) so this package does not need to import contracts at all.
type CursorObservation struct {
	LowMatch, LowBytes int
	UpMatch, UpBytes   int
}

// pairCmp lexicographically compares (a1, b1) against (a2, b2): the
// same "ut_pair_cmp" primitive the original B-tree search info update
// is built on.
func pairCmp(a1, b1, a2, b2 int) int {
	if a1 != a2 {
		return a1 - a2
	}
	return b1 - b2
}

// UpdateFromCursor implements update_hash_info_from_cursor: after
// every B-tree positioning that did not itself
// come from the hash index, decide whether the current per-index
// recommendation still looks right, or compute a new one.
func (t Tuner) UpdateFromCursor(info *types.SearchInfo, uniquePrefixLen uint16, c CursorObservation) {
	rec := info.Recommendation()

	if info.Potential() > 0 {
		if rec.NFields >= uniquePrefixLen && uint16(clampNonNegative(c.UpMatch)) >= uniquePrefixLen {
			t.incrementPotential(info)
			return
		}

		cmp := pairCmp(int(rec.NFields), int(rec.NBytes), c.LowMatch, c.LowBytes)
		tooDeepVsLow := cmpExceeds(rec.LeftSide, cmp)

		if !tooDeepVsLow {
			cmp2 := pairCmp(int(rec.NFields), int(rec.NBytes), c.UpMatch, c.UpBytes)
			if cmpExceeds(rec.LeftSide, cmp2) {
				t.incrementPotential(info)
				return
			}
		}
	}

	t.setNewRecommendation(info, uniquePrefixLen, c)
}

// cmpExceeds reports whether cmp shows the recommendation reaches
// deeper than the bound it was compared against, in the direction
// implied by leftSide: left-side recommendations reset on cmp <= 0,
// right-side ones reset on cmp > 0.
func cmpExceeds(leftSide bool, cmp int) bool {
	if leftSide {
		return cmp <= 0
	}
	return cmp > 0
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (t Tuner) incrementPotential(info *types.SearchInfo) {
	// Unbounded in this path: only guess_on_hash's success bump
	// saturates, at BuildPotentialLimit+5.
	info.IncPotential(^uint32(0))
}

func (t Tuner) setNewRecommendation(info *types.SearchInfo, uniquePrefixLen uint16, c CursorObservation) {
	cmp := pairCmp(c.UpMatch, c.UpBytes, c.LowMatch, c.LowBytes)
	leftSide := cmp >= 0

	var shape types.Shape
	var potential uint32

	switch {
	case cmp == 0:
		shape = types.Shape{NFields: 1, NBytes: 0, LeftSide: leftSide}
		potential = 0
	case cmp > 0:
		potential = 1
		switch {
		case uint16(clampNonNegative(c.UpMatch)) >= uniquePrefixLen:
			shape = types.Shape{NFields: uniquePrefixLen, NBytes: 0, LeftSide: leftSide}
		case c.LowMatch < c.UpMatch:
			shape = types.Shape{NFields: uint16(c.LowMatch + 1), NBytes: 0, LeftSide: leftSide}
		default:
			shape = types.Shape{NFields: uint16(c.LowMatch), NBytes: uint16(c.LowBytes + 1), LeftSide: leftSide}
		}
	default:
		potential = 0
		switch {
		case uint16(clampNonNegative(c.LowMatch)) >= uniquePrefixLen:
			shape = types.Shape{NFields: uniquePrefixLen, NBytes: 0, LeftSide: leftSide}
		case c.LowMatch > c.UpMatch:
			shape = types.Shape{NFields: uint16(c.UpMatch + 1), NBytes: 0, LeftSide: leftSide}
		default:
			shape = types.Shape{NFields: uint16(c.UpMatch), NBytes: uint16(c.UpBytes + 1), LeftSide: leftSide}
		}
	}

	info.SetRecommendation(shape)
	info.SetPotential(potential)
}

// UpdateBlock implements update_block_hash_info: called on every
// cursor that found its target, it tracks whether the
// page's candidate shape has stabilized on the index's recommendation
// and reports whether building (or rebuilding) a hash index on the
// page is now worthwhile.
func (t Tuner) UpdateBlock(block *types.BlockInfo, info *types.SearchInfo, pageRecords uint32) bool {
	info.SetLastHashSucc(false)

	rec := info.Recommendation()
	candidate := block.CandidateShape()

	if block.HashHelps() > 0 && info.Potential() > 0 && candidate == rec {
		if installedID, ok := block.Index(); ok {
			_ = installedID
			if block.InstalledShape() == rec {
				info.SetLastHashSucc(true)
			}
		}
		block.IncHashHelps()
	} else {
		block.SetHashHelps(1)
		block.SetCandidateShape(rec)
	}

	perPageLimit := t.BuildPerPageLimit
	if perPageLimit == 0 {
		perPageLimit = DefaultBuildPerPageLimit
	}
	potentialLimit := t.BuildPotentialLimit
	if potentialLimit == 0 {
		potentialLimit = DefaultBuildPotentialLimit
	}

	if block.HashHelps() > pageRecords/perPageLimit && info.Potential() >= potentialLimit {
		_, hasIndex := block.Index()
		if !hasIndex ||
			block.HashHelps() > 2*pageRecords ||
			block.CandidateShape() != block.InstalledShape() {
			return true
		}
	}
	return false
}
