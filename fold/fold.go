// Package fold computes the 32-bit fingerprint used to key the adaptive
// hash table. The same algorithm must be reachable
// from both a physical record on a page (FoldRecord) and a logical
// search tuple (FoldTuple); that equivalence is the only reason a hash
// lookup can ever validate against a B-tree search.
package fold

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/outofforest/ahi/contracts"
	"github.com/outofforest/ahi/types"
)

// castagnoli is the CRC-32C polynomial table. hash/crc32 picks the
// hardware-accelerated path on amd64/arm64 automatically, which is
// exactly the "CRC-32C" combiner the fold calls for -- see DESIGN.md for
// why no third-party checksum package was reached for instead.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// zeroBuf is scratch padding for NULL columns under the legacy
// fixed-width layout; grown lazily for fields wider than this.
var zeroBuf = make([]byte, 256)

func zeroBytes(n int) []byte {
	if n <= len(zeroBuf) {
		return zeroBuf[:n]
	}
	return make([]byte, n)
}

// Seed derives the stable 32-bit value every fold of this index starts
// from, so that two different indexes never collide on identical key
// bytes.
func Seed(indexID types.IndexID) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(indexID))
	return crc32.Checksum(buf[:], castagnoli)
}

// FoldRecord folds the prefix of a physical record.
func FoldRecord(seed uint32, rec contracts.RecordReader, nFields, nBytes uint16) types.Fold {
	return foldPrefix(seed, rec, nFields, nBytes)
}

// FoldTuple folds the prefix of a logical search tuple. For any tuple t
// and record r that compare equal under the index's comparator,
// FoldTuple(seed, t, nf, nb) == FoldRecord(seed, r, nf, nb).
func FoldTuple(seed uint32, tuple contracts.RecordReader, nFields, nBytes uint16) types.Fold {
	return foldPrefix(seed, tuple, nFields, nBytes)
}

func foldPrefix(seed uint32, src contracts.RecordReader, nFields, nBytes uint16) types.Fold {
	crc := seed
	layout := src.Layout()
	nf := int(nFields)
	if nf > src.NumFields() {
		nf = src.NumFields()
	}

	for i := 0; i < nf; i++ {
		crc = foldField(crc, src.Field(i), layout)
	}

	if nBytes > 0 && nf < src.NumFields() {
		crc = foldFieldTruncated(crc, src.Field(nf), layout, int(nBytes))
	}

	return types.Fold(crc)
}

// foldField folds one complete leading field.
func foldField(crc uint32, f contracts.FieldView, layout types.Layout) uint32 {
	if f.Null {
		if layout == types.LayoutLegacy && f.FixedLen > 0 {
			return crc32.Update(crc, castagnoli, zeroBytes(f.FixedLen))
		}
		// Compact layout: a NULL column contributes nothing.
		return crc
	}
	return crc32.Update(crc, castagnoli, f.Bytes)
}

// foldFieldTruncated folds the partial (n_fields+1-th) field, truncating
// non-NULL data to maxBytes. A legacy-layout NULL still contributes its
// full fixed padding, matching foldField -- the source record does not
// truncate the zero-padding of a NULL fixed column by n_bytes either.
func foldFieldTruncated(crc uint32, f contracts.FieldView, layout types.Layout, maxBytes int) uint32 {
	if f.Null {
		if layout == types.LayoutLegacy && f.FixedLen > 0 {
			return crc32.Update(crc, castagnoli, zeroBytes(f.FixedLen))
		}
		return crc
	}
	b := f.Bytes
	if len(b) > maxBytes {
		b = b[:maxBytes]
	}
	return crc32.Update(crc, castagnoli, b)
}
