// Package types holds the ReqResp wire payloads named in §6: plain structs,
// with no SSZ codec wired in (SSZ encoding is an opaque external
// collaborator out of scope per §1, the way the teacher's own
// consensus-types/* structs are built against ferranbt/fastssz but this
// repo stops at the struct boundary). SSZMarshaler is the seam a real codec
// plugs into without touching call sites.
package types

import (
	"github.com/chainforge/beacon-core/das"
	"github.com/chainforge/beacon-core/primitives"
)

// SSZMarshaler is the Encode/Decode seam every wire payload in this package
// satisfies once a real SSZ codec is wired in. Left unimplemented here:
// callers exchange these structs directly in-process (tests, and any
// Transport shim), exactly the boundary §1 draws around SSZ.
type SSZMarshaler interface {
	MarshalSSZ() ([]byte, error)
	UnmarshalSSZ([]byte) error
}

// StatusV1 is the STATUS handshake payload (§6), v1/v2.
type StatusV1 struct {
	ForkDigest     [4]byte
	FinalizedRoot  primitives.Root
	FinalizedEpoch primitives.Epoch
	HeadRoot       primitives.Root
	HeadSlot       primitives.Slot
}

// StatusV2 additionally conveys the server's earliest available slot, so a
// range request can be clamped to what the peer actually retains.
type StatusV2 struct {
	StatusV1
	EarliestAvailableSlot primitives.Slot
}

// Ping is the PING payload (§6 v1): a sequence number the responder echoes.
type Ping struct {
	SeqNumber uint64
}

// Goodbye is the GOODBYE payload (§6 v1): a peer-reason code.
type Goodbye struct {
	Reason uint64
}

// MetadataV1 is the METADATA payload (§6 v1): sequence number plus attnets.
type MetadataV1 struct {
	SeqNumber uint64
	Attnets   []byte
}

// MetadataV2 additionally conveys syncnets (v2).
type MetadataV2 struct {
	MetadataV1
	Syncnets []byte
}

// MetadataV3 additionally conveys a PeerDAS custody group count (v3).
type MetadataV3 struct {
	MetadataV2
	CustodyGroupCount uint64
}

// BeaconBlocksByRangeRequest is {start_slot, count, step} (§6 v1/v2).
type BeaconBlocksByRangeRequest struct {
	StartSlot primitives.Slot
	Count     uint64
	Step      uint64
}

// BeaconBlocksByRootRequest is a list of block roots (§6 v1/v2).
type BeaconBlocksByRootRequest struct {
	Roots []primitives.Root
}

// BlobSidecarsByRangeRequest is {start_slot, count} (§6 v1).
type BlobSidecarsByRangeRequest struct {
	StartSlot primitives.Slot
	Count     uint64
}

// BlobIdentifier pairs a block root with a blob index, the element type for
// BlobSidecarsByRootRequest.
type BlobIdentifier struct {
	BlockRoot primitives.Root
	Index     uint64
}

// BlobSidecarsByRootRequest is a list<(root, blob_index)> (§6 v1).
type BlobSidecarsByRootRequest struct {
	Identifiers []BlobIdentifier
}

// DataColumnSidecarsByRangeRequest is {start_slot, count, columns} (§6 v1).
type DataColumnSidecarsByRangeRequest struct {
	StartSlot primitives.Slot
	Count     uint64
	Columns   []das.ColumnIndex
}

// DataColumnIdentifier pairs a block root with the set of requested column
// indices, the element type for DataColumnSidecarsByRootRequest.
type DataColumnIdentifier struct {
	BlockRoot primitives.Root
	Columns   []das.ColumnIndex
}

// DataColumnSidecarsByRootRequest is a list<(root, column_indices)> (§6 v1).
type DataColumnSidecarsByRootRequest struct {
	Identifiers []DataColumnIdentifier
}

// ClampCount clamps count to [1, MaxRequestBlocksDeneb], the range/root
// request invariant named in §6.
func ClampCount(count uint64) uint64 {
	if count < 1 {
		count = 1
	}
	if count > primitives.MaxRequestBlocksDeneb {
		count = primitives.MaxRequestBlocksDeneb
	}
	return count
}

// MinimumRequestEpoch computes the earliest epoch a DataColumnSidecarsByRoot
// server is obligated to still have data for (§6): max(finalized_epoch,
// current_epoch - MIN_EPOCHS_FOR_DATA_COLUMN_SIDECARS_REQUESTS,
// FULU_FORK_EPOCH).
func MinimumRequestEpoch(finalized, current primitives.Epoch) primitives.Epoch {
	window := primitives.MinEpochsForDataColumnSidecarsRequests
	var fromWindow primitives.Epoch
	if uint64(current) > window {
		fromWindow = primitives.Epoch(uint64(current) - window)
	}
	min := finalized
	if fromWindow > min {
		min = fromWindow
	}
	if primitives.FuluForkEpoch > min {
		min = primitives.FuluForkEpoch
	}
	return min
}
