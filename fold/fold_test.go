package fold_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/fold"
	"github.com/outofforest/ahi/types"
)

// row is a minimal contracts.RecordReader usable for both a "record"
// and a "tuple" in tests -- real records/tuples differ in how they are
// read off a page vs. constructed by the optimizer, but the fold
// algorithm only cares about the FieldView sequence.
type row struct {
	layout types.Layout
	fields []contracts.FieldView
}

func (r row) NumFields() int                     { return len(r.fields) }
func (r row) Field(i int) contracts.FieldView     { return r.fields[i] }
func (r row) Layout() types.Layout                { return r.layout }

func field(b []byte) contracts.FieldView { return contracts.FieldView{Bytes: b} }
func nullField(fixedLen int) contracts.FieldView {
	return contracts.FieldView{Null: true, FixedLen: fixedLen}
}

func TestFoldRecordTupleEquivalence(t *testing.T) {
	seed := fold.Seed(types.IndexID(42))

	r := row{layout: types.LayoutCompact, fields: []contracts.FieldView{
		field([]byte("abc")), field([]byte("defgh")),
	}}
	tuple := row{layout: types.LayoutCompact, fields: []contracts.FieldView{
		field([]byte("abc")), field([]byte("defgh")),
	}}

	rf := fold.FoldRecord(seed, r, 1, 2)
	tf := fold.FoldTuple(seed, tuple, 1, 2)
	assert.Equal(t, rf, tf)
}

func TestFoldDifferentSeedsDiffer(t *testing.T) {
	r := row{layout: types.LayoutCompact, fields: []contracts.FieldView{field([]byte("abc"))}}
	f1 := fold.FoldRecord(fold.Seed(1), r, 1, 0)
	f2 := fold.FoldRecord(fold.Seed(2), r, 1, 0)
	assert.NotEqual(t, f1, f2)
}

func TestFoldNullCompactContributesNothing(t *testing.T) {
	seed := fold.Seed(7)
	withNull := row{layout: types.LayoutCompact, fields: []contracts.FieldView{
		nullField(4), field([]byte("x")),
	}}
	skipped := row{layout: types.LayoutCompact, fields: []contracts.FieldView{
		field([]byte("x")),
	}}

	// In compact layout, folding 2 fields where the first is NULL must
	// equal folding only the second field: NULL contributes zero bytes.
	got := fold.FoldRecord(seed, withNull, 2, 0)
	want := fold.FoldRecord(seed, skipped, 1, 0)
	assert.Equal(t, want, got)
}

func TestFoldNullLegacyPadsFixedLength(t *testing.T) {
	seed := fold.Seed(7)
	withNull := row{layout: types.LayoutLegacy, fields: []contracts.FieldView{
		nullField(4), field([]byte("x")),
	}}
	withZeros := row{layout: types.LayoutLegacy, fields: []contracts.FieldView{
		field([]byte{0, 0, 0, 0}), field([]byte("x")),
	}}

	got := fold.FoldRecord(seed, withNull, 2, 0)
	want := fold.FoldRecord(seed, withZeros, 2, 0)
	assert.Equal(t, want, got)
}

func TestFoldTruncatesPartialField(t *testing.T) {
	seed := fold.Seed(7)
	long := row{layout: types.LayoutCompact, fields: []contracts.FieldView{
		field([]byte("abc")), field([]byte("hello world")),
	}}
	short := row{layout: types.LayoutCompact, fields: []contracts.FieldView{
		field([]byte("abc")), field([]byte("hel")),
	}}

	got := fold.FoldRecord(seed, long, 1, 3)
	want := fold.FoldRecord(seed, short, 1, 3)
	assert.Equal(t, want, got)
}

func TestFoldZeroShapeIsDegenerate(t *testing.T) {
	seed := fold.Seed(7)
	r := row{layout: types.LayoutCompact, fields: []contracts.FieldView{field([]byte("abc"))}}
	require.Equal(t, types.Fold(seed), fold.FoldRecord(seed, r, 0, 0))
}
