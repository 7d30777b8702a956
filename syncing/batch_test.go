package syncing

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/primitives"
)

func TestBatch_HappyPathTransitions(t *testing.T) {
	b := NewBatch(primitives.Epoch(1), 32)
	require.Equal(t, AwaitingDownload, b.Status)

	require.NoError(t, b.StartDownloading())
	require.Equal(t, Downloading, b.Status)

	require.NoError(t, b.DownloadingSuccess([]Block{{Slot: 32}}))
	require.Equal(t, AwaitingProcessing, b.Status)
	require.Len(t, b.DownloadedBlocks, 1)

	require.NoError(t, b.StartProcessing())
	require.Equal(t, Processing, b.Status)

	require.NoError(t, b.ProcessingSuccess())
	require.Equal(t, AwaitingValidation, b.Status)

	require.NoError(t, b.ValidationSuccess())
	require.Equal(t, Dropped, b.Status)
}

func TestBatch_DownloadingErrorReturnsToAwaitingDownload(t *testing.T) {
	b := NewBatch(0, 32)
	require.NoError(t, b.StartDownloading())
	require.NoError(t, b.DownloadingError("peer1"))
	require.Equal(t, AwaitingDownload, b.Status)
	require.Equal(t, []peer.ID{"peer1"}, b.FailedPeers)
}

func TestBatch_ProcessingErrorAborts(t *testing.T) {
	b := NewBatch(0, 32)
	require.NoError(t, b.StartDownloading())
	require.NoError(t, b.DownloadingSuccess(nil))
	require.NoError(t, b.StartProcessing())
	require.NoError(t, b.ProcessingError())
	require.True(t, b.Aborted())
}

func TestBatch_IllegalTransitionErrors(t *testing.T) {
	b := NewBatch(0, 32)
	require.ErrorIs(t, b.StartProcessing(), ErrWrongStatus)
	require.ErrorIs(t, b.ValidationSuccess(), ErrWrongStatus)

	require.NoError(t, b.StartDownloading())
	require.ErrorIs(t, b.StartDownloading(), ErrWrongStatus)
}

func TestBatch_IsHealthy(t *testing.T) {
	b := NewBatch(0, 32)
	require.True(t, b.IsHealthy(2))
	require.NoError(t, b.StartDownloading())
	require.NoError(t, b.DownloadingError("a"))
	require.NoError(t, b.StartDownloading())
	require.NoError(t, b.DownloadingError("b"))
	require.False(t, b.IsHealthy(2))
}

func TestBatch_StartSlotFromEpoch(t *testing.T) {
	b := NewBatch(primitives.Epoch(3), 32)
	require.Equal(t, primitives.Slot(3*primitives.SlotsPerEpoch), b.StartSlot())
}
