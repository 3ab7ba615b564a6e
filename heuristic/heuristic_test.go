package heuristic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/ahi/types"
)

func TestUpdateFromCursorSetsMinimalPrefixWhenBoundsEqual(t *testing.T) {
	info := &types.SearchInfo{}
	tuner := NewTuner()

	tuner.UpdateFromCursor(info, 3, CursorObservation{
		LowMatch: 2, LowBytes: 0,
		UpMatch: 2, UpBytes: 0,
	})

	rec := info.Recommendation()
	assert.Equal(t, types.Shape{NFields: 1, NBytes: 0, LeftSide: true}, rec)
	assert.EqualValues(t, 0, info.Potential())
}

func TestUpdateFromCursorPicksShortestDistinguishingPrefixLeftSide(t *testing.T) {
	info := &types.SearchInfo{}
	tuner := NewTuner()

	// up deeper than low -> cmp > 0 -> left_side = true branch per
	// ut_pair_cmp(up, low) >= 0.
	tuner.UpdateFromCursor(info, 5, CursorObservation{
		LowMatch: 1, LowBytes: 0,
		UpMatch: 2, UpBytes: 0,
	})

	rec := info.Recommendation()
	assert.True(t, rec.LeftSide)
	assert.EqualValues(t, 2, rec.NFields) // low_match(1) < up_match(2) -> low_match+1
	assert.EqualValues(t, 0, rec.NBytes)
	assert.EqualValues(t, 1, info.Potential())
}

func TestUpdateFromCursorClampsToUniquePrefixLen(t *testing.T) {
	info := &types.SearchInfo{}
	tuner := NewTuner()

	tuner.UpdateFromCursor(info, 2, CursorObservation{
		LowMatch: 0, LowBytes: 0,
		UpMatch: 5, UpBytes: 3,
	})

	rec := info.Recommendation()
	assert.EqualValues(t, 2, rec.NFields)
	assert.EqualValues(t, 0, rec.NBytes)
}

func TestUpdateFromCursorIncrementsPotentialWhenRecommendationStillFits(t *testing.T) {
	info := &types.SearchInfo{}
	info.SetRecommendation(types.Shape{NFields: 3, NBytes: 0, LeftSide: false})
	info.SetPotential(5)
	tuner := NewTuner()

	// n_fields(3) >= unique(3) and up_match(4) >= unique(3): short-circuit
	// "would have succeeded" branch, just bump potential.
	tuner.UpdateFromCursor(info, 3, CursorObservation{
		LowMatch: 3, LowBytes: 0,
		UpMatch: 4, UpBytes: 0,
	})

	assert.EqualValues(t, 6, info.Potential())
	rec := info.Recommendation()
	assert.EqualValues(t, 3, rec.NFields) // unchanged
}

func TestUpdateFromCursorResetsWhenRecommendationTooDeep(t *testing.T) {
	info := &types.SearchInfo{}
	info.SetRecommendation(types.Shape{NFields: 4, NBytes: 0, LeftSide: false})
	info.SetPotential(5)
	tuner := NewTuner()

	// right-side recommendation deeper (4,0) than both low/up match
	// (1,0): cmp>0 against low triggers reset.
	tuner.UpdateFromCursor(info, 10, CursorObservation{
		LowMatch: 1, LowBytes: 0,
		UpMatch: 1, UpBytes: 0,
	})

	rec := info.Recommendation()
	assert.NotEqual(t, uint16(4), rec.NFields)
}

func TestUpdateBlockRecommendsBuildWhenThresholdsClear(t *testing.T) {
	block := &types.BlockInfo{}
	info := &types.SearchInfo{}
	shape := types.Shape{NFields: 1, NBytes: 0, LeftSide: true}
	info.SetRecommendation(shape)
	info.SetPotential(100)
	block.SetHashHelps(1)
	block.SetCandidateShape(shape)

	tuner := NewTuner()
	// 200 records / 16 == 12; need hash_helps > 12.
	block.SetHashHelps(13)

	build := tuner.UpdateBlock(block, info, 200)
	require.True(t, build)
}

func TestUpdateBlockDoesNotRebuildWhenAlreadyInstalledAtSameShape(t *testing.T) {
	block := &types.BlockInfo{}
	info := &types.SearchInfo{}
	shape := types.Shape{NFields: 1, NBytes: 0, LeftSide: true}
	info.SetRecommendation(shape)
	info.SetPotential(100)
	block.SetHashHelps(13)
	block.SetCandidateShape(shape)
	block.SetInstalledShape(shape)
	block.SetIndex(types.IndexID(7), true)

	tuner := NewTuner()
	build := tuner.UpdateBlock(block, info, 200)
	require.False(t, build)
}

func TestUpdateBlockRebuildsWhenCandidateDivergesFromInstalled(t *testing.T) {
	block := &types.BlockInfo{}
	info := &types.SearchInfo{}
	rec := types.Shape{NFields: 2, NBytes: 0, LeftSide: true}
	info.SetRecommendation(rec)
	info.SetPotential(100)
	block.SetHashHelps(13)
	block.SetCandidateShape(rec)
	block.SetInstalledShape(types.Shape{NFields: 1, NBytes: 0, LeftSide: true})
	block.SetIndex(types.IndexID(7), true)

	tuner := NewTuner()
	build := tuner.UpdateBlock(block, info, 200)
	require.True(t, build)
}

func TestUpdateBlockResetsCandidateWhenShapeChanged(t *testing.T) {
	block := &types.BlockInfo{}
	info := &types.SearchInfo{}
	info.SetRecommendation(types.Shape{NFields: 2, NBytes: 0, LeftSide: true})
	info.SetPotential(100)
	block.SetHashHelps(5)
	block.SetCandidateShape(types.Shape{NFields: 1, NBytes: 0, LeftSide: true})

	tuner := NewTuner()
	tuner.UpdateBlock(block, info, 200)

	assert.EqualValues(t, 1, block.HashHelps())
	assert.Equal(t, types.Shape{NFields: 2, NBytes: 0, LeftSide: true}, block.CandidateShape())
}
