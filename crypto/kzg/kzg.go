// Package kzg defines the KZG commitment contract the DAS cache depends on
// for blob-to-column cell computation (§4.4.1) and column reconstruction
// (§4.4.2). As with crypto/bls, the real primitives are an opaque external
// collaborator (§1) that a production binary wires via
// crate-crypto/go-kzg-4844 (the teacher's go.mod requires
// github.com/crate-crypto/go-kzg-4844 and github.com/ethereum/c-kzg-4844 for
// exactly this role); this package exposes only the interface plus a
// deterministic fake for tests.
package kzg

import "github.com/pkg/errors"

// Commitment is a compressed KZG commitment to a blob's polynomial.
type Commitment [48]byte

// Proof is a compressed KZG opening proof.
type Proof [48]byte

// Cell is one erasure-coded shard of a blob's polynomial evaluated at the
// coset of roots of unity assigned to a column (§4.5, §4.4.1).
type Cell [2048]byte

// VersionedHash is an execution-layer blob versioned hash, used when
// requesting blobs from the execution engine by commitment (§4.4.1).
type VersionedHash [32]byte

// ErrMismatchedLengths is returned when cell/proof slices disagree in length
// with the commitment slice they accompany.
var ErrMismatchedLengths = errors.New("kzg: mismatched cells/commitments/proofs length")

// Backend is the opaque KZG primitive contract. A production binary installs
// a c-kzg-4844-backed Backend at startup; SetBackend below is that seam.
type Backend interface {
	// BlobToCommitment derives the KZG commitment for a blob.
	BlobToCommitment(blob []byte) (Commitment, error)
	// ComputeCellsAndProofs splits a blob into NumberOfColumns cells with
	// accompanying opening proofs (§4.4.1).
	ComputeCellsAndProofs(blob []byte) ([]Cell, []Proof, error)
	// RecoverCellsAndProofs reconstructs the full cell/proof set from at
	// least half of them (§4.4.2).
	RecoverCellsAndProofs(cellIndices []int, cells []Cell, commitment Commitment) ([]Cell, []Proof, error)
}

var active Backend = fakeBackend{}

// SetBackend overrides the active KZG backend.
func SetBackend(b Backend) { active = b }

// ComputeCellsAndKZGProofs computes the per-column cells and proofs for a blob.
func ComputeCellsAndKZGProofs(blob []byte) ([]Cell, []Proof, error) {
	return active.ComputeCellsAndProofs(blob)
}

// RecoverCellsAndKZGProofs reconstructs missing cells from a >= half subset.
func RecoverCellsAndKZGProofs(cellIndices []int, cells []Cell, commitment Commitment) ([]Cell, []Proof, error) {
	return active.RecoverCellsAndProofs(cellIndices, cells, commitment)
}

// BlobToKZGCommitment derives a blob's commitment.
func BlobToKZGCommitment(blob []byte) (Commitment, error) {
	return active.BlobToCommitment(blob)
}

// ToVersionedHash derives the execution-layer versioned hash for a
// commitment (0x01 prefix + sha256(commitment)[1:], per EIP-4844). This uses
// the standard library hash, not the opaque KZG backend, since it is a
// plain digest rather than a cryptographic commitment operation.
func ToVersionedHash(c Commitment) VersionedHash {
	return versionedHash(c)
}
