package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/das"
	"github.com/chainforge/beacon-core/primitives"
)

func TestStatusV2_EmbedsV1Fields(t *testing.T) {
	s := StatusV2{
		StatusV1: StatusV1{
			ForkDigest:     [4]byte{1, 2, 3, 4},
			FinalizedEpoch: 10,
			HeadSlot:       320,
		},
		EarliestAvailableSlot: 1,
	}
	require.Equal(t, primitives.Epoch(10), s.FinalizedEpoch)
	require.Equal(t, primitives.Slot(320), s.HeadSlot)
	require.Equal(t, primitives.Slot(1), s.EarliestAvailableSlot)
}

func TestMetadataV3_EmbedsV1AndV2Fields(t *testing.T) {
	m := MetadataV3{
		MetadataV2: MetadataV2{
			MetadataV1: MetadataV1{SeqNumber: 7, Attnets: []byte{0xff}},
			Syncnets:   []byte{0x01},
		},
		CustodyGroupCount: 8,
	}
	require.Equal(t, uint64(7), m.SeqNumber)
	require.Equal(t, []byte{0xff}, m.Attnets)
	require.Equal(t, []byte{0x01}, m.Syncnets)
	require.Equal(t, uint64(8), m.CustodyGroupCount)
}

func TestClampCount(t *testing.T) {
	require.Equal(t, uint64(1), ClampCount(0))
	require.Equal(t, uint64(1), ClampCount(1))
	require.Equal(t, uint64(64), ClampCount(64))
	require.Equal(t, uint64(primitives.MaxRequestBlocksDeneb), ClampCount(1000))
}

func TestMinimumRequestEpoch(t *testing.T) {
	// Window larger than current epoch: floor is finalized or FuluForkEpoch,
	// never underflows.
	got := MinimumRequestEpoch(primitives.Epoch(5), primitives.Epoch(10))
	require.Equal(t, primitives.Epoch(5), got)

	// current - window dominates once it exceeds finalized.
	current := primitives.Epoch(primitives.MinEpochsForDataColumnSidecarsRequests + 100)
	got = MinimumRequestEpoch(primitives.Epoch(5), current)
	require.Equal(t, primitives.Epoch(100), got)

	// finalized ahead of the window floor wins.
	got = MinimumRequestEpoch(primitives.Epoch(200), current)
	require.Equal(t, primitives.Epoch(200), got)
}

func TestBeaconBlocksByRootRequest_HoldsRoots(t *testing.T) {
	req := BeaconBlocksByRootRequest{Roots: []primitives.Root{{1}, {2}}}
	require.Len(t, req.Roots, 2)
}

func TestBlobSidecarsByRootRequest_HoldsIdentifiers(t *testing.T) {
	req := BlobSidecarsByRootRequest{
		Identifiers: []BlobIdentifier{
			{BlockRoot: primitives.Root{1}, Index: 0},
			{BlockRoot: primitives.Root{1}, Index: 1},
		},
	}
	require.Len(t, req.Identifiers, 2)
	require.Equal(t, uint64(1), req.Identifiers[1].Index)
}

func TestDataColumnSidecarsByRangeRequest_HoldsColumns(t *testing.T) {
	req := DataColumnSidecarsByRangeRequest{
		StartSlot: 100,
		Count:     10,
		Columns:   []das.ColumnIndex{2, 5, 9},
	}
	require.Len(t, req.Columns, 3)
}

func TestDataColumnSidecarsByRootRequest_HoldsIdentifiers(t *testing.T) {
	req := DataColumnSidecarsByRootRequest{
		Identifiers: []DataColumnIdentifier{
			{BlockRoot: primitives.Root{3}, Columns: []das.ColumnIndex{1, 2}},
		},
	}
	require.Len(t, req.Identifiers, 1)
	require.Len(t, req.Identifiers[0].Columns, 2)
}
