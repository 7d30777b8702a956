package peers

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/p2p/peerdata"
	"github.com/chainforge/beacon-core/p2p/peers/scorers"
	"github.com/chainforge/beacon-core/primitives"
)

type recordingTransport struct {
	pings     []peer.ID
	statuses  []peer.ID
	goodbyes  []peer.ID
	reasons   []GoodbyeReason
	metadatas []peer.ID
	disconns  []peer.ID
}

func (r *recordingTransport) Transport() Transport {
	return Transport{
		SendPing: func(ctx context.Context, pid peer.ID) error {
			r.pings = append(r.pings, pid)
			return nil
		},
		SendStatus: func(ctx context.Context, pid peer.ID) error {
			r.statuses = append(r.statuses, pid)
			return nil
		},
		SendMetadataReq: func(ctx context.Context, pid peer.ID) error {
			r.metadatas = append(r.metadatas, pid)
			return nil
		},
		SendGoodbye: func(ctx context.Context, pid peer.ID, reason GoodbyeReason) error {
			r.goodbyes = append(r.goodbyes, pid)
			r.reasons = append(r.reasons, reason)
			return nil
		},
		Disconnect: func(pid peer.ID) error {
			r.disconns = append(r.disconns, pid)
			return nil
		},
	}
}

func newTestManager(t *testing.T, rt *recordingTransport, relevance RelevanceChecker) (*Manager, *peerdata.Store) {
	t.Helper()
	store := peerdata.NewStore(context.Background(), &peerdata.StoreConfig{MaxPeers: 30})
	scores := NewPeerScoreStore(store, &scorers.Config{})
	m := NewManager(&ManagerConfig{
		Store:     store,
		Scores:    scores,
		Transport: rt.Transport(),
		Relevance: relevance,
	})
	return m, store
}

func TestManager_ConnectionOpenOutboundPingsAndStatuses(t *testing.T) {
	rt := &recordingTransport{}
	m, _ := newTestManager(t, rt, nil)
	require.NoError(t, m.ConnectionOpen(context.Background(), "peer1", network.DirOutbound))
	require.Equal(t, []peer.ID{"peer1"}, rt.pings)
	require.Equal(t, []peer.ID{"peer1"}, rt.statuses)
}

func TestManager_ConnectionOpenInboundIsSilent(t *testing.T) {
	rt := &recordingTransport{}
	m, _ := newTestManager(t, rt, nil)
	require.NoError(t, m.ConnectionOpen(context.Background(), "peer1", network.DirInbound))
	require.Empty(t, rt.pings)
	require.Empty(t, rt.statuses)
}

func TestManager_OnStatusRelevantEmitsPeerConnected(t *testing.T) {
	rt := &recordingTransport{}
	relevance := func(local, remote peerdata.ChainState) (bool, error) { return true, nil }
	m, store := newTestManager(t, rt, relevance)
	require.NoError(t, m.ConnectionOpen(context.Background(), "peer1", network.DirOutbound))

	var connected peer.ID
	m.OnPeerConnected(func(pid peer.ID) { connected = pid })

	require.NoError(t, m.OnStatus(context.Background(), "peer1", peerdata.ChainState{HeadSlot: 10}))
	require.Equal(t, peer.ID("peer1"), connected)

	d, ok := store.PeerData("peer1")
	require.True(t, ok)
	require.True(t, d.Relevant)
	require.Equal(t, peerdata.PeerConnected, d.ConnState)
}

func TestManager_OnStatusIrrelevantSendsGoodbyeAndDisconnects(t *testing.T) {
	rt := &recordingTransport{}
	relevance := func(local, remote peerdata.ChainState) (bool, error) { return false, nil }
	m, store := newTestManager(t, rt, relevance)
	require.NoError(t, m.ConnectionOpen(context.Background(), "peer1", network.DirOutbound))

	require.NoError(t, m.OnStatus(context.Background(), "peer1", peerdata.ChainState{}))
	require.Equal(t, []peer.ID{"peer1"}, rt.goodbyes)
	require.Equal(t, []GoodbyeReason{IrrelevantNetwork}, rt.reasons)
	require.Equal(t, []peer.ID{"peer1"}, rt.disconns)

	d, ok := store.PeerData("peer1")
	require.True(t, ok)
	require.False(t, d.Relevant)
}

func TestManager_OnStatusUnknownPeerErrors(t *testing.T) {
	rt := &recordingTransport{}
	m, _ := newTestManager(t, rt, nil)
	err := m.OnStatus(context.Background(), "ghost", peerdata.ChainState{})
	require.ErrorIs(t, err, ErrPeerUnknown)
}

func TestManager_OnPingStaleSeqRequestsMetadata(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	d := store.PeerDataGetOrCreate("peer1")
	d.MetaData = &peerdata.MetaData{SeqNumber: 1}

	require.NoError(t, m.OnPing(context.Background(), "peer1", 2))
	require.Equal(t, []peer.ID{"peer1"}, rt.metadatas)
}

func TestManager_OnPingMatchingSeqIsSilent(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	d := store.PeerDataGetOrCreate("peer1")
	d.MetaData = &peerdata.MetaData{SeqNumber: 5}

	require.NoError(t, m.OnPing(context.Background(), "peer1", 5))
	require.Empty(t, rt.metadatas)
}

func TestManager_OnGoodbyeAppliesCooldownAndDisconnectsLocally(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	store.PeerDataGetOrCreate("peer1")

	m.OnGoodbye("peer1", BannedReason)
	d, ok := store.PeerData("peer1")
	require.True(t, ok)
	require.Equal(t, peerdata.PeerDisconnected, d.ConnState)
	require.False(t, d.BanExpiry.IsZero())
}

func TestManager_SetHeadSlotClearsStarvation(t *testing.T) {
	rt := &recordingTransport{}
	m, _ := newTestManager(t, rt, nil)
	m.starved = true
	m.SetHeadSlot(100)
	require.False(t, m.Starved())
	require.Equal(t, primitives.Slot(100), m.headSlot)
}

func TestManager_HeartbeatBansDisconnectBannedPeers(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	store.PeerDataGetOrCreate("peer1")
	m.cfg.Scores.ApplyAction("peer1", Fatal)

	m.heartbeat(context.Background())
	require.Contains(t, rt.goodbyes, peer.ID("peer1"))
	require.Contains(t, rt.disconns, peer.ID("peer1"))
	_, ok := store.PeerData("peer1")
	require.False(t, ok)
}

func TestManager_HeartbeatPrioritizerTrimsExcessConnectedPeers(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	for _, id := range []peer.ID{"a", "b", "c"} {
		d := store.PeerDataGetOrCreate(id)
		d.ConnState = peerdata.PeerConnected
	}
	m.cfg.MaxPeers = 2
	m.cfg.TargetPeers = 2

	m.heartbeat(context.Background())
	require.Len(t, rt.disconns, 1)
	require.Equal(t, 2, store.Len())
}

func TestManager_CloseSendsGoodbyeToEveryPeer(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	store.PeerDataGetOrCreate("peer1")
	store.PeerDataGetOrCreate("peer2")

	m.Close(context.Background())
	require.ElementsMatch(t, []peer.ID{"peer1", "peer2"}, rt.goodbyes)
	for _, r := range rt.reasons {
		require.Equal(t, ClientShutdown, r)
	}
}

func TestManager_PruneFractionDisconnectsApproximateShare(t *testing.T) {
	rt := &recordingTransport{}
	m, store := newTestManager(t, rt, nil)
	for i := 0; i < 20; i++ {
		store.PeerDataGetOrCreate(peer.ID(string(rune('a' + i))))
	}
	m.pruneFraction(context.Background(), 0.05)
	require.Len(t, rt.disconns, 1)
}
