package monitor

import (
	"github.com/chainforge/beacon-core/primitives"
)

// ProcessBlockInclusion records that proposer proposed a block at slot,
// incrementing its per-epoch proposal count if proposer is tracked
// (§4.11 EXPANSION: "block inclusion").
func (s *Service) ProcessBlockInclusion(proposer primitives.ValidatorIndex, slot primitives.Slot) {
	if !s.TrackedIndex(proposer) {
		return
	}
	s.mu.Lock()
	p := s.perfLocked(proposer)
	p.BlocksProposed++
	s.mu.Unlock()

	log.WithFields(map[string]interface{}{
		"ValidatorIndex": proposer,
		"Slot":           slot,
	}).Info("Block proposed")
}
