// Package bitutil implements C1: classification and in-place merging of
// equal-length aggregation bitvectors, the primitive AttestationGroup builds
// its subset/superset collapsing on (§4.1, §4.2). Bitvectors are represented
// as raw byte slices so the same code classifies both
// github.com/prysmaticlabs/go-bitfield Bitlist (aggregation bits) and
// Bitvector64 (Electra committee bits) without an adapter layer.
package bitutil

import "github.com/pkg/errors"

// Relation is the result of classifying two equal-length bitvectors.
type Relation int

const (
	// Exclusive means the two bitvectors share no set bit.
	Exclusive Relation = iota
	// Subset means a's set bits are all present in b (a ⊆ b), and a != b.
	Subset
	// Superset means b's set bits are all present in a (a ⊇ b), and a != b.
	Superset
	// Equal means a and b have identical set bits.
	Equal
	// Overlapping means a and b share at least one set bit but neither
	// contains the other — block packing must skip merging in this case.
	Overlapping
)

// String implements fmt.Stringer, used in log fields across the pool.
func (r Relation) String() string {
	switch r {
	case Exclusive:
		return "exclusive"
	case Subset:
		return "subset"
	case Superset:
		return "superset"
	case Equal:
		return "equal"
	case Overlapping:
		return "overlapping"
	default:
		return "unknown"
	}
}

// ErrLengthMismatch is returned when Classify or Merge is called with
// differently-sized byte slices.
var ErrLengthMismatch = errors.New("bitutil: bitvectors have different lengths")

// Classify compares a and b byte-pair-wise and reports their subset
// relation. It never allocates (§4.1).
func Classify(a, b []byte) (Relation, error) {
	if len(a) != len(b) {
		return Exclusive, ErrLengthMismatch
	}
	aHasExtra, bHasExtra, overlap := false, false, false
	for i := range a {
		onlyA := a[i] &^ b[i]
		onlyB := b[i] &^ a[i]
		both := a[i] & b[i]
		if onlyA != 0 {
			aHasExtra = true
		}
		if onlyB != 0 {
			bHasExtra = true
		}
		if both != 0 {
			overlap = true
		}
	}
	switch {
	case !aHasExtra && !bHasExtra:
		return Equal, nil
	case !aHasExtra && bHasExtra:
		// a contributes nothing b doesn't already have.
		return Subset, nil
	case aHasExtra && !bHasExtra:
		return Superset, nil
	case overlap:
		return Overlapping, nil
	default:
		return Exclusive, nil
	}
}

// Merge ORs src into dst in place. dst and src must have equal length.
func Merge(dst, src []byte) error {
	if len(dst) != len(src) {
		return ErrLengthMismatch
	}
	for i := range dst {
		dst[i] |= src[i]
	}
	return nil
}

// PopCount returns the total number of set bits across the byte slice.
func PopCount(b []byte) int {
	count := 0
	for _, v := range b {
		for v != 0 {
			count++
			v &= v - 1
		}
	}
	return count
}
