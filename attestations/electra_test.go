package attestations

import (
	"testing"

	"github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/primitives"
)

func electraAtt(slot uint64, committee uint64, bits bitfield.Bitlist) *Attestation {
	cb := bitfield.NewBitvector64()
	cb.SetBitAt(committee, true)
	d := testData(slot)
	d.CommitteeIndex = 0
	return &Attestation{
		Data:            d,
		AggregationBits: bits,
		CommitteeBits:   cb,
		Signature:       make([]byte, 96),
	}
}

func TestConsolidateElectra_MergesDistinctCommittees(t *testing.T) {
	bitsA := bitfield.NewBitlist(2)
	bitsA.SetBitAt(0, true)
	bitsB := bitfield.NewBitlist(2)
	bitsB.SetBitAt(1, true)

	a := electraAtt(1, 0, bitsA)
	b := electraAtt(1, 1, bitsB)

	sizes := map[primitives.CommitteeIndex]int{0: 2, 1: 2}
	got, err := ConsolidateElectra([]*Attestation{a, b}, sizes)
	require.NoError(t, err)
	require.True(t, got.CommitteeBits.BitAt(0))
	require.True(t, got.CommitteeBits.BitAt(1))
	require.True(t, got.AggregationBits.BitAt(0))
	require.True(t, got.AggregationBits.BitAt(3))
}

func TestConsolidateElectra_RejectsMismatchedData(t *testing.T) {
	a := electraAtt(1, 0, bitfield.Bitlist{0b1})
	b := electraAtt(2, 1, bitfield.Bitlist{0b1})
	_, err := ConsolidateElectra([]*Attestation{a, b}, nil)
	require.ErrorIs(t, err, ErrElectraMismatchedData)
}

func TestConsolidateElectra_RejectsDuplicateCommittee(t *testing.T) {
	a := electraAtt(1, 0, bitfield.Bitlist{0b1})
	b := electraAtt(1, 0, bitfield.Bitlist{0b1})
	_, err := ConsolidateElectra([]*Attestation{a, b}, nil)
	require.ErrorIs(t, err, ErrElectraDuplicateCommittee)
}

func TestConsolidateElectra_EmptyErrors(t *testing.T) {
	_, err := ConsolidateElectra(nil, nil)
	require.ErrorIs(t, err, ErrElectraNoAttestations)
}
