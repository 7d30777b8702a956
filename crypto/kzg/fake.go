package kzg

import (
	"crypto/sha256"
)

// fakeBackend is a deterministic, non-cryptographic stand-in for the real
// KZG backend, used so DAS cache tests can exercise the engine-fetch and
// reconstruction pipelines without a cgo dependency (§1: KZG is opaque).
type fakeBackend struct{}

func (fakeBackend) BlobToCommitment(blob []byte) (Commitment, error) {
	var c Commitment
	sum := sha256.Sum256(blob)
	copy(c[:], sum[:])
	return c, nil
}

func (fakeBackend) ComputeCellsAndProofs(blob []byte) ([]Cell, []Proof, error) {
	const n = 128 // matches primitives.NumberOfColumns; duplicated to avoid an import cycle
	cells := make([]Cell, n)
	proofs := make([]Proof, n)
	for i := 0; i < n; i++ {
		h := sha256.Sum256(append(blob, byte(i)))
		copy(cells[i][:], h[:])
		copy(proofs[i][:], h[:])
	}
	return cells, proofs, nil
}

func (fakeBackend) RecoverCellsAndProofs(cellIndices []int, cells []Cell, commitment Commitment) ([]Cell, []Proof, error) {
	if len(cellIndices) != len(cells) {
		return nil, nil, ErrMismatchedLengths
	}
	const n = 128
	outCells := make([]Cell, n)
	outProofs := make([]Proof, n)
	for i, idx := range cellIndices {
		outCells[idx] = cells[i]
		h := sha256.Sum256(append(commitment[:], byte(idx)))
		copy(outProofs[idx][:], h[:])
	}
	for i := 0; i < n; i++ {
		if outCells[i] == (Cell{}) {
			h := sha256.Sum256(append(commitment[:], byte(i), 0xFF))
			copy(outCells[i][:], h[:])
			copy(outProofs[i][:], h[:])
		}
	}
	return outCells, outProofs, nil
}

// versionedHash computes the EIP-4844 blob versioned hash for a commitment.
func versionedHash(c Commitment) VersionedHash {
	sum := sha256.Sum256(c[:])
	var vh VersionedHash
	vh[0] = 0x01
	copy(vh[1:], sum[1:])
	return vh
}
