package das

import (
	"sort"
	"sync"
	"time"
)

// GossipPeerID identifies a peer for per-subnet gossip scoring purposes.
// The das package has no libp2p dependency of its own, so callers derive
// this from whatever peer identifier their transport uses.
type GossipPeerID [32]byte

// GossipScoreConfig configures DAS subnet gossip scoring. Grounded on
// other_examples/cell_gossip_scorer.go's GossipScoreConfig, adapted to this
// package's naming.
type GossipScoreConfig struct {
	MaxScore              float64
	MinScore              float64
	InvalidMessagePenalty float64
	ValidMessageReward    float64
	LateDeliveryPenalty   float64
	DecayInterval         time.Duration
	DecayFactor           float64
}

// DefaultGossipScoreConfig returns sensible defaults for DAS subnet gossip
// scoring, one slot's worth of decay interval at a time.
func DefaultGossipScoreConfig() GossipScoreConfig {
	return GossipScoreConfig{
		MaxScore:              100.0,
		MinScore:              -100.0,
		InvalidMessagePenalty: -10.0,
		ValidMessageReward:    1.0,
		LateDeliveryPenalty:   -2.0,
		DecayInterval:         12 * time.Second,
		DecayFactor:           0.9,
	}
}

type gossipPeerEntry struct {
	score           float64
	validMessages   uint64
	invalidMessages uint64
	lateMessages    uint64
	lastMessageTime time.Time
	lastDecayTime   time.Time
}

// GossipScorer tracks per-peer, per-subnet gossip quality scores for DAS
// column subnets (§4.5 custody duties): reward for valid deliveries,
// penalty for invalid or late ones, with periodic decay toward zero.
type GossipScorer struct {
	mu     sync.RWMutex
	config GossipScoreConfig
	peers  map[GossipPeerID]map[SubnetID]*gossipPeerEntry
}

// NewGossipScorer returns a GossipScorer using the given configuration.
func NewGossipScorer(config GossipScoreConfig) *GossipScorer {
	return &GossipScorer{config: config, peers: make(map[GossipPeerID]map[SubnetID]*gossipPeerEntry)}
}

// RecordValidMessage rewards peer for a valid delivery on subnet.
func (gs *GossipScorer) RecordValidMessage(peer GossipPeerID, subnet SubnetID) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	e := gs.getOrCreate(peer, subnet)
	e.validMessages++
	e.score += gs.config.ValidMessageReward
	if e.score > gs.config.MaxScore {
		e.score = gs.config.MaxScore
	}
	e.lastMessageTime = time.Now()
}

// RecordInvalidMessage penalizes peer for an invalid delivery on subnet.
func (gs *GossipScorer) RecordInvalidMessage(peer GossipPeerID, subnet SubnetID) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	e := gs.getOrCreate(peer, subnet)
	e.invalidMessages++
	e.score += gs.config.InvalidMessagePenalty
	if e.score < gs.config.MinScore {
		e.score = gs.config.MinScore
	}
}

// RecordLateDelivery penalizes peer for delivering past the expected window.
func (gs *GossipScorer) RecordLateDelivery(peer GossipPeerID, subnet SubnetID) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	e := gs.getOrCreate(peer, subnet)
	e.lateMessages++
	e.score += gs.config.LateDeliveryPenalty
	if e.score < gs.config.MinScore {
		e.score = gs.config.MinScore
	}
}

// PeerSubnetScore returns peer's score on subnet, and whether any activity
// has been recorded for that pair.
func (gs *GossipScorer) PeerSubnetScore(peer GossipPeerID, subnet SubnetID) (float64, bool) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	subnets, ok := gs.peers[peer]
	if !ok {
		return 0, false
	}
	e, ok := subnets[subnet]
	if !ok {
		return 0, false
	}
	return e.score, true
}

// PeerAggregateScore sums peer's score across every subnet it has activity on.
func (gs *GossipScorer) PeerAggregateScore(peer GossipPeerID) float64 {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	var total float64
	for _, e := range gs.peers[peer] {
		total += e.score
	}
	return total
}

// IsBelowThreshold reports whether peer's aggregate score has reached or
// fallen below MinScore, signalling it should be disconnected or
// deprioritized.
func (gs *GossipScorer) IsBelowThreshold(peer GossipPeerID) bool {
	return gs.PeerAggregateScore(peer) <= gs.config.MinScore
}

// RankPeersForSubnet returns the peers with activity on subnet, sorted by
// descending score.
func (gs *GossipScorer) RankPeersForSubnet(subnet SubnetID) []GossipPeerID {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	type scored struct {
		id    GossipPeerID
		score float64
	}
	var ranked []scored
	for peer, subnets := range gs.peers {
		if e, ok := subnets[subnet]; ok {
			ranked = append(ranked, scored{id: peer, score: e.score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]GossipPeerID, len(ranked))
	for i, r := range ranked {
		out[i] = r.id
	}
	return out
}

// DecayScores applies time-based decay to every tracked score. Intended to
// be called once per slot via async.RunEvery.
func (gs *GossipScorer) DecayScores() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	now := time.Now()
	for _, subnets := range gs.peers {
		for _, e := range subnets {
			if now.Sub(e.lastDecayTime) >= gs.config.DecayInterval {
				e.score *= gs.config.DecayFactor
				e.lastDecayTime = now
			}
		}
	}
}

// PeerCount returns the number of distinct peers tracked.
func (gs *GossipScorer) PeerCount() int {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return len(gs.peers)
}

func (gs *GossipScorer) getOrCreate(peer GossipPeerID, subnet SubnetID) *gossipPeerEntry {
	subnets, ok := gs.peers[peer]
	if !ok {
		subnets = make(map[SubnetID]*gossipPeerEntry)
		gs.peers[peer] = subnets
	}
	e, ok := subnets[subnet]
	if !ok {
		e = &gossipPeerEntry{lastDecayTime: time.Now()}
		subnets[subnet] = e
	}
	return e
}
