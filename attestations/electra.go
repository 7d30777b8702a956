package attestations

import (
	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"

	"github.com/chainforge/beacon-core/primitives"
)

// ErrElectraNoAttestations is returned by ConsolidateElectra when given an
// empty attestation slice.
var ErrElectraNoAttestations = errors.New("attestations: no electra attestations to consolidate")

// ErrElectraMismatchedData is returned when the attestations passed to
// ConsolidateElectra do not share the same AttestationData.
var ErrElectraMismatchedData = errors.New("attestations: electra attestations do not share data")

// ErrElectraDuplicateCommittee is returned when two input attestations
// claim the same committee index.
var ErrElectraDuplicateCommittee = errors.New("attestations: electra attestations claim the same committee twice")

// ConsolidateElectra implements the EIP-7549 cross-committee aggregation
// step (§3, §4.2, §9 EXPANSION): each input attestation carries exactly one
// set bit in CommitteeBits (a single-committee gossip attestation) and an
// AggregationBits sized to that committee. The result sets every
// represented committee's bit in CommitteeBits and concatenates each
// committee's AggregationBits, in ascending committee-index order, into one
// dense table — the layout on-chain aggregation expects. committeeSizes
// gives each candidate committee index's length, since a bitvector alone
// does not carry enough information to lay out the concatenation; a
// production caller derives this from beacon state committee assignments
// (out of this module's scope, §1).
//
// Grounded on the cross-committee merge in eip7549.go's
// AggregateIndexedAttestations, generalized here from a same-committee bit
// OR to a genuine dense transpose across distinct committees.
func ConsolidateElectra(atts []*Attestation, committeeSizes map[primitives.CommitteeIndex]int) (*Attestation, error) {
	if len(atts) == 0 {
		return nil, ErrElectraNoAttestations
	}
	data := atts[0].Data
	committeeBits := make(bitfield.Bitvector64, len(atts[0].CommitteeBits))
	seen := make(map[uint64]bool)
	maxCommittee := uint64(0)
	for _, a := range atts {
		if !a.Data.Equal(data) {
			return nil, ErrElectraMismatchedData
		}
		idx := soleCommitteeBit(a.CommitteeBits)
		if seen[idx] {
			return nil, ErrElectraDuplicateCommittee
		}
		seen[idx] = true
		if idx > maxCommittee {
			maxCommittee = idx
		}
	}

	// Lay committees out in ascending index order regardless of input order.
	ordered := make([]*Attestation, 0, len(atts))
	for i := uint64(0); i <= maxCommittee; i++ {
		for _, a := range atts {
			if soleCommitteeBit(a.CommitteeBits) == i {
				ordered = append(ordered, a)
				committeeBits.SetBitAt(i, true)
			}
		}
	}

	totalBits := 0
	for _, a := range ordered {
		idx := soleCommitteeBit(a.CommitteeBits)
		size, ok := committeeSizes[primitives.CommitteeIndex(idx)]
		if !ok {
			size = len(a.AggregationBits) * 8
		}
		totalBits += size
	}
	dense := bitfield.NewBitlist(uint64(totalBits))
	offset := uint64(0)
	for _, a := range ordered {
		idx := soleCommitteeBit(a.CommitteeBits)
		size := committeeSizes[primitives.CommitteeIndex(idx)]
		if size == 0 {
			size = len(a.AggregationBits) * 8
		}
		for b := uint64(0); b < uint64(size) && b < a.AggregationBits.Len(); b++ {
			if a.AggregationBits.BitAt(b) {
				dense.SetBitAt(offset+b, true)
			}
		}
		offset += uint64(size)
	}

	sig, err := aggregateSignatures(ordered)
	if err != nil {
		return nil, err
	}
	return &Attestation{
		Data:            data,
		AggregationBits: dense,
		CommitteeBits:   committeeBits,
		Signature:       sig,
	}, nil
}

// soleCommitteeBit returns the single set bit's index in a single-committee
// Electra attestation's CommitteeBits.
func soleCommitteeBit(bits bitfield.Bitvector64) uint64 {
	for i := uint64(0); i < uint64(len(bits))*8; i++ {
		if bits.BitAt(i) {
			return i
		}
	}
	return 0
}

// countSetBits64 counts the set bits in a Bitvector64, the fixed-width
// analogue of Bitlist.Count used to validate an Electra attestation's
// CommitteeBits carries exactly one committee (§4.3's add()).
func countSetBits64(bits bitfield.Bitvector64) int {
	n := 0
	for i := uint64(0); i < uint64(len(bits))*8; i++ {
		if bits.BitAt(i) {
			n++
		}
	}
	return n
}
