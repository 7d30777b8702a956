package scorers

import (
	"math"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/chainforge/beacon-core/p2p/peerdata"
)

// GossipScoreProvider supplies a per-peer gossipsub score, blended into the
// overall score each heartbeat (§4.6). Satisfied by package peers'
// gossipAdapter, which serves the scores installed with
// PeerScoreStore.SetGossipScores.
type GossipScoreProvider interface {
	Score(pid peer.ID) float64
}

// Config configures every composed scorer in a Service.
type Config struct {
	BadResponsesScorerConfig *BadResponsesScorerConfig
	BlockProviderScorerConfig *BlockProviderScorerConfig
}

// Service is C7's scoring core: it composes the individual scoring
// strategies (bad responses, block-serving usefulness, and an optional
// gossipsub feed) into one overall per-peer score. Grounded on the
// teacher's scorers.Service (service_test.go).
type Service struct {
	store         *peerdata.Store
	badResponses  *BadResponsesScorer
	blockProvider *BlockProviderScorer
	gossip        GossipScoreProvider
}

// NewService builds a Service over store using config (nil for defaults).
func NewService(store *peerdata.Store, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	return &Service{
		store:         store,
		badResponses:  newBadResponsesScorer(store, config.BadResponsesScorerConfig),
		blockProvider: newBlockProviderScorer(store, config.BlockProviderScorerConfig),
	}
}

// SetGossipScoreProvider installs the gossipsub feed blended into Score.
func (s *Service) SetGossipScoreProvider(g GossipScoreProvider) {
	s.gossip = g
}

// BadResponsesScorer returns the bad-responses strategy.
func (s *Service) BadResponsesScorer() *BadResponsesScorer { return s.badResponses }

// BlockProviderScorer returns the block-provider strategy.
func (s *Service) BlockProviderScorer() *BlockProviderScorer { return s.blockProvider }

// Score computes pid's overall score: the bad-responses penalty plus the
// block-provider score's deviation from its own max (so a peer that has
// never served blocks contributes zero, not a penalty), multiplicatively
// blended with the gossipsub feed when one is installed.
func (s *Service) Score(pid peer.ID) float64 {
	score := s.badResponses.Score(pid) + (s.blockProvider.Score(pid) - s.blockProvider.MaxScore())
	if s.gossip != nil {
		blend := s.gossip.Score(pid)
		// A neutral-or-better gossip score (>=0) doesn't discount; only a
		// negative gossip score pulls the overall score down, scaled to
		// [0, 1] over [-100, 0] so one bad gossip sample can't zero out an
		// otherwise-good peer outright.
		if blend < 0 {
			factor := 1 + blend/100
			if factor < 0 {
				factor = 0
			}
			score *= factor
		}
	}
	return math.Round(score*10000) / 10000
}

// IsBadPeer reports whether pid is bad by any composed strategy.
func (s *Service) IsBadPeer(pid peer.ID) bool {
	return s.badResponses.IsBadPeer(pid)
}

// BadPeers returns every peer bad by any composed strategy.
func (s *Service) BadPeers() []peer.ID {
	return s.badResponses.BadPeers()
}

// Decay decays every composed scorer's accumulated state. PeerScoreStore's
// Update calls it on every PeerManager heartbeat.
func (s *Service) Decay() {
	s.badResponses.Decay()
	s.blockProvider.Decay()
}
