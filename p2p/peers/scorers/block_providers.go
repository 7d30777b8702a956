package scorers

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/chainforge/beacon-core/p2p/peerdata"
)

// Default block-provider scorer tuning, mirroring the teacher's
// scorers.DefaultBlockProvider* constants.
const (
	DefaultBlockProviderProcessedBatchWeight = 0.05
	DefaultBlockProviderProcessedBlocksCap   = uint64(20000)
	DefaultBlockProviderDecayInterval        = 10 * time.Minute
	DefaultBlockProviderDecay                = uint64(64)
)

// BlockProviderScorerConfig configures BlockProviderScorer.
type BlockProviderScorerConfig struct {
	ProcessedBatchWeight float64
	ProcessedBlocksCap   uint64
	DecayInterval        time.Duration
	Decay                uint64
}

func (c *BlockProviderScorerConfig) withDefaults() *BlockProviderScorerConfig {
	if c == nil {
		c = &BlockProviderScorerConfig{}
	}
	if c.ProcessedBatchWeight == 0 {
		c.ProcessedBatchWeight = DefaultBlockProviderProcessedBatchWeight
	}
	if c.ProcessedBlocksCap == 0 {
		c.ProcessedBlocksCap = DefaultBlockProviderProcessedBlocksCap
	}
	if c.DecayInterval == 0 {
		c.DecayInterval = DefaultBlockProviderDecayInterval
	}
	if c.Decay == 0 {
		c.Decay = DefaultBlockProviderDecay
	}
	return c
}

// BlockProviderScorer rewards peers proportionally to the blocks they have
// successfully served during range-sync, capped and decayed over time so
// a once-useful peer that goes quiet doesn't retain an unbounded lead.
type BlockProviderScorer struct {
	mu     sync.Mutex
	store  *peerdata.Store
	config *BlockProviderScorerConfig
}

func newBlockProviderScorer(store *peerdata.Store, config *BlockProviderScorerConfig) *BlockProviderScorer {
	return &BlockProviderScorer{store: store, config: config.withDefaults()}
}

// Params returns the scorer's configuration.
func (s *BlockProviderScorer) Params() *BlockProviderScorerConfig {
	return s.config
}

// MaxScore is the highest achievable block-provider score.
func (s *BlockProviderScorer) MaxScore() float64 {
	return 1.0
}

// IncrementProcessedBlocks credits pid with cnt more processed blocks,
// capped at ProcessedBlocksCap.
func (s *BlockProviderScorer) IncrementProcessedBlocks(pid peer.ID, cnt uint64) {
	d := s.store.PeerDataGetOrCreate(pid)
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ProcessedBlocks += cnt
	if d.ProcessedBlocks > s.config.ProcessedBlocksCap {
		d.ProcessedBlocks = s.config.ProcessedBlocksCap
	}
}

// ProcessedBlocks returns pid's current processed-block count.
func (s *BlockProviderScorer) ProcessedBlocks(pid peer.ID) uint64 {
	d, ok := s.store.PeerData(pid)
	if !ok {
		return 0
	}
	return d.ProcessedBlocks
}

// Score returns pid's block-provider score: ProcessedBatchWeight per full
// batch of ProcessedBlocksCap/20 blocks processed, capped at MaxScore. A
// peer with no recorded activity yet scores MaxScore, so fresh peers are
// not penalized before they've had a chance to serve anything.
func (s *BlockProviderScorer) Score(pid peer.ID) float64 {
	d, ok := s.store.PeerData(pid)
	if !ok || d.ProcessedBlocks == 0 {
		return s.MaxScore()
	}
	batchSize := s.config.ProcessedBlocksCap / 20
	if batchSize == 0 {
		batchSize = 1
	}
	batches := float64(d.ProcessedBlocks) / float64(batchSize)
	score := batches * s.config.ProcessedBatchWeight
	if score > s.MaxScore() {
		score = s.MaxScore()
	}
	return score
}

// Decay reduces every tracked peer's processed-block count by 1/Decay.
func (s *BlockProviderScorer) Decay() {
	for _, d := range s.store.Peers() {
		s.mu.Lock()
		d.ProcessedBlocks -= d.ProcessedBlocks / s.config.Decay
		s.mu.Unlock()
	}
}
