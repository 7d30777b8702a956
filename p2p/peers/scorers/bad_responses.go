// Package scorers implements C7's individual scoring strategies, composed
// by Service. Grounded on the teacher's beacon-chain/p2p/peers/scorers
// package (service_test.go, block_providers_test.go).
package scorers

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/chainforge/beacon-core/p2p/peerdata"
)

// DefaultBadResponsesThreshold is the bad-response count at which a peer is
// considered bad.
const DefaultBadResponsesThreshold = 6

// DefaultBadResponsesDecayInterval is the default DecayInterval. Decay does
// not read it: every Decay call halves the counts.
const DefaultBadResponsesDecayInterval = 10 * time.Minute

// BadResponsesScorerConfig configures BadResponsesScorer.
type BadResponsesScorerConfig struct {
	Threshold     int
	DecayInterval time.Duration
}

func (c *BadResponsesScorerConfig) withDefaults() *BadResponsesScorerConfig {
	if c == nil {
		c = &BadResponsesScorerConfig{}
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultBadResponsesThreshold
	}
	if c.DecayInterval == 0 {
		c.DecayInterval = DefaultBadResponsesDecayInterval
	}
	return c
}

// BadResponsesScorer counts malformed/invalid responses per peer; a peer at
// or above Threshold is "bad", and every recorded response lowers its score.
type BadResponsesScorer struct {
	mu     sync.RWMutex
	store  *peerdata.Store
	config *BadResponsesScorerConfig
}

func newBadResponsesScorer(store *peerdata.Store, config *BadResponsesScorerConfig) *BadResponsesScorer {
	return &BadResponsesScorer{store: store, config: config.withDefaults()}
}

// Params returns the scorer's configuration.
func (s *BadResponsesScorer) Params() *BadResponsesScorerConfig {
	return s.config
}

// Increment records one bad response from pid.
func (s *BadResponsesScorer) Increment(pid peer.ID) {
	d := s.store.PeerDataGetOrCreate(pid)
	s.mu.Lock()
	defer s.mu.Unlock()
	d.BadResponses++
}

// Count returns pid's current bad-response count.
func (s *BadResponsesScorer) Count(pid peer.ID) int {
	d, ok := s.store.PeerData(pid)
	if !ok {
		return 0
	}
	return d.BadResponses
}

// IsBadPeer reports whether pid has reached the bad-response threshold.
func (s *BadResponsesScorer) IsBadPeer(pid peer.ID) bool {
	return s.Count(pid) >= s.config.Threshold
}

// BadPeers returns every tracked peer currently at/above threshold.
func (s *BadResponsesScorer) BadPeers() []peer.ID {
	var bad []peer.ID
	for pid, d := range s.store.Peers() {
		if d.BadResponses >= s.config.Threshold {
			bad = append(bad, pid)
		}
	}
	return bad
}

// Score returns the scorer's contribution to pid's overall score: zero with
// no bad responses, otherwise count × (-10/Threshold × 0.3), so the penalty
// grows linearly from the first bad response.
func (s *BadResponsesScorer) Score(pid peer.ID) float64 {
	count := s.Count(pid)
	if count == 0 {
		return 0
	}
	penalty := (-10 / float64(s.config.Threshold)) * 0.3
	return float64(count) * penalty
}

// Decay halves every tracked peer's bad-response count, rounding down.
func (s *BadResponsesScorer) Decay() {
	for _, d := range s.store.Peers() {
		s.mu.Lock()
		if d.BadResponses > 0 {
			d.BadResponses /= 2
		}
		s.mu.Unlock()
	}
}
