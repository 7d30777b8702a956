package das

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/chainforge/beacon-core/crypto/kzg"
	"github.com/chainforge/beacon-core/primitives"
)

// ErrSidecarBuildNoCells is returned by BuildDataColumnSidecar when no cells
// are supplied.
var ErrSidecarBuildNoCells = errors.New("das: no cells provided for sidecar")

// ErrSidecarBuildMismatch is returned when the cell/commitment/proof counts
// disagree.
var ErrSidecarBuildMismatch = errors.New("das: cells/commitments/proofs length mismatch")

// BuildDataColumnSidecar constructs a DataColumnSidecar from one column's
// worth of per-blob cells, commitments, and proofs, plus a simplified
// inclusion proof: the Merkle branch over Keccak256(commitment || column
// index) leaves, which does not reference the block body. Grounded
// on other_examples/cell_gossip_scorer.go's BuildDataColumnSidecar.
func BuildDataColumnSidecar(columnIndex ColumnIndex, cells []kzg.Cell, commitments []kzg.Commitment, proofs []kzg.Proof) (*DataColumnSidecar, error) {
	if len(cells) == 0 {
		return nil, ErrSidecarBuildNoCells
	}
	if len(cells) != len(commitments) || len(cells) != len(proofs) {
		return nil, ErrSidecarBuildMismatch
	}
	if uint64(columnIndex) >= primitives.NumberOfColumns {
		return nil, ErrInvalidColumnIndex
	}

	return &DataColumnSidecar{
		Index:          columnIndex,
		Column:         cells,
		KZGCommitments: commitments,
		KZGProofs:      proofs,
		InclusionProof: buildCommitmentInclusionProof(commitments, uint64(columnIndex)),
	}, nil
}

// buildCommitmentInclusionProof builds a simplified Merkle inclusion proof
// for a column index over the block's commitment list: the sibling hashes
// along the path from the index's leaf to the root, using Keccak256 as the
// hash function.
func buildCommitmentInclusionProof(commitments []kzg.Commitment, index uint64) [][32]byte {
	n := len(commitments)
	if n == 0 {
		return nil
	}

	leaves := make([][32]byte, n)
	for i, c := range commitments {
		h := sha3.NewLegacyKeccak256()
		h.Write(c[:])
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], index)
		h.Write(buf[:])
		var leaf [32]byte
		h.Sum(leaf[:0])
		leaves[i] = leaf
	}

	var proof [][32]byte
	current := leaves
	idx := index % uint64(n)
	for len(current) > 1 {
		if len(current)%2 != 0 {
			current = append(current, current[len(current)-1])
		}
		sibling := idx ^ 1
		if sibling < uint64(len(current)) {
			proof = append(proof, current[sibling])
		}
		next := make([][32]byte, len(current)/2)
		for i := 0; i < len(current); i += 2 {
			h := sha3.NewLegacyKeccak256()
			h.Write(current[i][:])
			h.Write(current[i+1][:])
			h.Sum(next[i/2][:0])
		}
		current = next
		idx /= 2
	}
	return proof
}

// VerifyGossipColumn validates a DataColumnSidecar received over gossip
// against the node's custody assignment, returning the subnet it belongs to
// on success.
func VerifyGossipColumn(sc *DataColumnSidecar, custody []ColumnIndex) (SubnetID, error) {
	if err := VerifyDataColumnSidecar(sc); err != nil {
		return 0, err
	}
	subnet := ColumnSubnet(sc.Index)
	if len(custody) > 0 && !ShouldCustodyColumn(sc.Index, custody) {
		return 0, errors.Wrapf(ErrCellNotInCustody, "column %d", sc.Index)
	}
	return subnet, nil
}

// ComputeSidecarHash computes a content-addressed identifier for a
// DataColumnSidecar, used for gossip-layer deduplication.
func ComputeSidecarHash(sc *DataColumnSidecar) [32]byte {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(sc.Index))
	h.Write(buf[:])
	for _, cell := range sc.Column {
		h.Write(cell[:])
	}
	for _, c := range sc.KZGCommitments {
		h.Write(c[:])
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
