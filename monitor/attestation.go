package monitor

import (
	"github.com/chainforge/beacon-core/primitives"
)

// ProcessAttestation folds a newly-included attestation into each attesting
// tracked validator's latest performance record, logging the way the
// teacher's monitor logs "Attestation included" (§4.11 EXPANSION). Callers
// (the attestation-processing pipeline, outside this module's scope) supply
// attestingIndices already resolved from the committee and the correctness
// flags already computed against the canonical chain.
func (s *Service) ProcessAttestation(
	data primitives.AttestationData,
	attestingIndices []primitives.ValidatorIndex,
	inclusionSlot primitives.Slot,
	correctSource, correctTarget, correctHead bool,
	balanceChange int64,
	newBalance primitives.Gwei,
) {
	for _, idx := range attestingIndices {
		if !s.TrackedIndex(idx) {
			continue
		}
		s.mu.Lock()
		p := s.perfLocked(idx)
		p.AttestedSlot = data.Slot
		p.InclusionSlot = inclusionSlot
		p.CorrectSource = correctSource
		p.CorrectTarget = correctTarget
		p.CorrectHead = correctHead
		p.BalanceChange = balanceChange
		p.Balance = newBalance
		s.mu.Unlock()

		log.WithFields(map[string]interface{}{
			"ValidatorIndex": idx,
			"Slot":           data.Slot,
			"InclusionSlot":  inclusionSlot,
			"Source":         data.Source.Root.Hex(),
			"Target":         data.Target.Root.Hex(),
			"Head":           data.BeaconBlockRoot.Hex(),
			"CorrectSource":  correctSource,
			"CorrectTarget":  correctTarget,
			"CorrectHead":    correctHead,
			"BalanceChange":  balanceChange,
			"NewBalance":     newBalance,
		}).Info("Attestation included")
	}
}

// InclusionDistance returns the record's inclusion distance
// (InclusionSlot - AttestedSlot), the same metric AttestationData.
// InclusionDistance uses for packing (§4.3), reused here for reporting.
func (p ValidatorLatestPerformance) InclusionDistance() uint64 {
	if p.InclusionSlot <= p.AttestedSlot {
		return 1
	}
	return uint64(p.InclusionSlot - p.AttestedSlot)
}
