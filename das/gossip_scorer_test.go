package das

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGossipScorer_RewardAndPenalty(t *testing.T) {
	gs := NewGossipScorer(DefaultGossipScoreConfig())
	peer := GossipPeerID{1}

	gs.RecordValidMessage(peer, 0)
	score, ok := gs.PeerSubnetScore(peer, 0)
	require.True(t, ok)
	require.Equal(t, 1.0, score)

	gs.RecordInvalidMessage(peer, 0)
	score, _ = gs.PeerSubnetScore(peer, 0)
	require.Equal(t, -9.0, score)
}

func TestGossipScorer_ClampsToConfiguredBounds(t *testing.T) {
	gs := NewGossipScorer(DefaultGossipScoreConfig())
	peer := GossipPeerID{2}
	for i := 0; i < 1000; i++ {
		gs.RecordInvalidMessage(peer, 0)
	}
	score, _ := gs.PeerSubnetScore(peer, 0)
	require.Equal(t, -100.0, score)
}

func TestGossipScorer_IsBelowThreshold(t *testing.T) {
	gs := NewGossipScorer(DefaultGossipScoreConfig())
	peer := GossipPeerID{3}
	require.False(t, gs.IsBelowThreshold(peer))
	for i := 0; i < 20; i++ {
		gs.RecordInvalidMessage(peer, 0)
	}
	require.True(t, gs.IsBelowThreshold(peer))
}

func TestGossipScorer_RankPeersForSubnet(t *testing.T) {
	gs := NewGossipScorer(DefaultGossipScoreConfig())
	low, high := GossipPeerID{4}, GossipPeerID{5}
	gs.RecordValidMessage(low, 1)
	for i := 0; i < 3; i++ {
		gs.RecordValidMessage(high, 1)
	}
	ranked := gs.RankPeersForSubnet(1)
	require.Equal(t, []GossipPeerID{high, low}, ranked)
}

func TestGossipScorer_PeerCount(t *testing.T) {
	gs := NewGossipScorer(DefaultGossipScoreConfig())
	require.Equal(t, 0, gs.PeerCount())
	gs.RecordValidMessage(GossipPeerID{6}, 0)
	require.Equal(t, 1, gs.PeerCount())
}
