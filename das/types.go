// Package das implements C4 (the data-availability block-input cache), C5
// (the custody map), and C6 (column reconstruction), grounded on the
// teacher's beacon-chain/das package (cache.go, availability.go,
// availability_columns.go) and on the PeerDAS gossip/reconstruction logic in
// other_examples/cell_gossip_scorer.go.
package das

import (
	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/crypto/kzg"
	"github.com/chainforge/beacon-core/primitives"
)

// ColumnIndex identifies one of NumberOfColumns data columns.
type ColumnIndex uint64

// SubnetID identifies a data column gossip subnet.
type SubnetID uint64

// ErrInvalidColumnIndex is returned when a column index exceeds
// NumberOfColumns.
var ErrInvalidColumnIndex = errors.New("das: column index out of range")

// ErrCellNotInCustody is returned by VerifyGossipColumn when a received
// column is not one the node is required to custody.
var ErrCellNotInCustody = errors.New("das: column not in custody set")

// DataColumnSidecar is one PeerDAS column: the per-blob cells, commitments,
// and proofs at a given column index, plus the simplified inclusion proof
// BuildDataColumnSidecar computes over the commitments; it does not
// reference the block body (§4.5).
type DataColumnSidecar struct {
	Index          ColumnIndex
	Column         []kzg.Cell
	KZGCommitments []kzg.Commitment
	KZGProofs      []kzg.Proof
	InclusionProof [][32]byte
}

// ColumnSubnet maps a column index to its gossip subnet.
func ColumnSubnet(idx ColumnIndex) SubnetID {
	return SubnetID(uint64(idx) % primitives.DataColumnSidecarSubnetCount)
}

// ShouldCustodyColumn reports whether idx is in the custody set.
func ShouldCustodyColumn(idx ColumnIndex, custody []ColumnIndex) bool {
	for _, c := range custody {
		if c == idx {
			return true
		}
	}
	return false
}

// VerifyDataColumnSidecar performs the structural checks a gossip validator
// runs before accepting a column sidecar: matching cell/commitment/proof
// counts and an in-range index.
func VerifyDataColumnSidecar(sc *DataColumnSidecar) error {
	if sc == nil {
		return errors.New("das: nil data column sidecar")
	}
	if uint64(sc.Index) >= primitives.NumberOfColumns {
		return ErrInvalidColumnIndex
	}
	if len(sc.Column) != len(sc.KZGCommitments) || len(sc.Column) != len(sc.KZGProofs) {
		return errors.New("das: mismatched cell/commitment/proof counts")
	}
	return nil
}

// BlockInputKind distinguishes the two sidecar families a block input can
// carry post-Deneb: full blobs (Deneb/Electra) or erasure-coded columns
// (Fulu/PeerDAS). A block input carries exactly one, chosen by its fork
// (§4.4).
type BlockInputKind int

const (
	KindBlobs BlockInputKind = iota
	KindColumns
)

// BlockInputState is C4's per-entry state machine: PreData is the zero
// value, which Store.SetBlock replaces as soon as the block arrives;
// AwaitingData means the block is in and not every required sidecar has
// arrived; Available means every required sidecar is present and verified
// (§4.4).
type BlockInputState int

const (
	StatePreData BlockInputState = iota
	StateAwaitingData
	StateAvailable
)

// BlockInput is C4's cache payload: everything known about one block's
// data-availability status.
type BlockInput struct {
	Root  primitives.Root
	Slot  primitives.Slot
	Kind  BlockInputKind
	State BlockInputState

	// Commitments is the block body's ordered KZG commitment list, the
	// expected set every blob/column sidecar is checked against.
	Commitments []kzg.Commitment

	Blobs   map[uint64][]byte
	Columns map[ColumnIndex]*DataColumnSidecar
}
