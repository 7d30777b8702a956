package scorers

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/p2p/peerdata"
)

func newTestService(t *testing.T, cfg *Config) *Service {
	t.Helper()
	store := peerdata.NewStore(context.Background(), &peerdata.StoreConfig{MaxPeers: 30})
	return NewService(store, cfg)
}

func TestService_DefaultParams(t *testing.T) {
	s := newTestService(t, &Config{})
	require.Equal(t, DefaultBadResponsesThreshold, s.BadResponsesScorer().Params().Threshold)
	require.Equal(t, DefaultBlockProviderProcessedBatchWeight, s.BlockProviderScorer().Params().ProcessedBatchWeight)
}

func TestService_NoPeerRegistered(t *testing.T) {
	s := newTestService(t, &Config{})
	require.Equal(t, 0.0, s.BadResponsesScorer().Score("peer1"))
	require.Equal(t, s.BlockProviderScorer().MaxScore(), s.BlockProviderScorer().Score("peer1"))
	require.Equal(t, 0.0, s.Score("peer1"))
}

func TestService_BadResponsesScore(t *testing.T) {
	s := newTestService(t, &Config{BadResponsesScorerConfig: &BadResponsesScorerConfig{Threshold: 5}})
	penalty := (-10 / float64(s.BadResponsesScorer().Params().Threshold)) * 0.3

	s.BadResponsesScorer().Increment("peer2")
	require.Equal(t, penalty, s.BadResponsesScorer().Score("peer2"))

	s.BadResponsesScorer().Increment("peer1")
	s.BadResponsesScorer().Increment("peer1")
	require.Equal(t, 2*penalty, s.BadResponsesScorer().Score("peer1"))

	s.BadResponsesScorer().Decay()
	require.Equal(t, penalty, s.BadResponsesScorer().Score("peer1"))
}

func TestService_BlockProviderScore(t *testing.T) {
	s := newTestService(t, &Config{BlockProviderScorerConfig: &BlockProviderScorerConfig{Decay: 64}})
	bp := s.BlockProviderScorer()
	batchSize := bp.Params().ProcessedBlocksCap / 20

	bp.IncrementProcessedBlocks("peer1", batchSize)
	require.Equal(t, bp.Params().ProcessedBatchWeight, bp.Score("peer1"))

	bp.IncrementProcessedBlocks("peer2", batchSize*4)
	require.Equal(t, bp.Params().ProcessedBatchWeight*4, bp.Score("peer2"))
}

func TestService_OverallScore(t *testing.T) {
	s := newTestService(t, &Config{BadResponsesScorerConfig: &BadResponsesScorerConfig{Threshold: 5}})
	penalty := (-10 / float64(s.BadResponsesScorer().Params().Threshold)) * 0.3

	s.BlockProviderScorer().IncrementProcessedBlocks("peer1", s.BlockProviderScorer().Params().ProcessedBlocksCap)
	require.Equal(t, 0.0, s.Score("peer1"))

	s.BadResponsesScorer().Increment("peer1")
	s.BadResponsesScorer().Increment("peer1")
	require.Equal(t, 2*penalty, s.Score("peer1"))
}

func TestService_IsBadPeerAndBadPeers(t *testing.T) {
	s := newTestService(t, &Config{BadResponsesScorerConfig: &BadResponsesScorerConfig{Threshold: 2}})
	require.False(t, s.IsBadPeer("peer1"))

	for _, pid := range []peer.ID{"peer1", "peer3"} {
		s.BadResponsesScorer().Increment(pid)
		s.BadResponsesScorer().Increment(pid)
	}
	require.True(t, s.IsBadPeer("peer1"))
	require.False(t, s.IsBadPeer("peer2"))
	require.True(t, s.IsBadPeer("peer3"))
	require.Len(t, s.BadPeers(), 2)
}

type fakeGossipProvider struct{ scores map[peer.ID]float64 }

func (f fakeGossipProvider) Score(pid peer.ID) float64 { return f.scores[pid] }

func TestService_GossipBlendDiscountsNegativeFeed(t *testing.T) {
	s := newTestService(t, &Config{})
	s.BlockProviderScorer().IncrementProcessedBlocks("peer1", s.BlockProviderScorer().Params().ProcessedBlocksCap)
	before := s.Score("peer1")
	require.Equal(t, 0.0, before)

	s.BadResponsesScorer().Increment("peer1")
	withPenalty := s.Score("peer1")
	require.Less(t, withPenalty, 0.0)

	s.SetGossipScoreProvider(fakeGossipProvider{scores: map[peer.ID]float64{"peer1": -50}})
	blended := s.Score("peer1")
	require.Greater(t, blended, withPenalty) // negative score scaled toward zero, i.e. less negative
}
