package attestations

import "github.com/chainforge/beacon-core/primitives"

// CommitteeInfo is the per-committee metadata GetAttestationsForBlock needs
// but this module does not itself compute, since deriving it requires the
// full beacon-state shuffling function (§1 Non-goals).
type CommitteeInfo struct {
	// Size is the committee's member count, needed to lay out Electra's
	// dense cross-committee concatenation (ConsolidateElectra's
	// committeeSizes argument) and to size the not-seen working set.
	Size int
	// EffectiveBalanceIncrements is indexed by committee position (not
	// validator index), matching AggregationBits' bit order, per §4.2's
	// get_attestations_for_block scoring contract.
	EffectiveBalanceIncrements []primitives.Gwei
}

// BlockProductionState is the minimal read-only projection of a beacon
// state that GetAttestationsForBlock needs to filter and score candidate
// attestations (§4.3). This module does not implement beacon-state types
// or the state-transition function (§1 Non-goals); a production caller
// builds one of these from its own state before calling into the pool.
type BlockProductionState struct {
	// Slot is the state's slot — the block being built goes at Slot+1 in
	// the teacher's convention, but inclusion-delay and window checks
	// compare directly against Slot per §4.3's literal wording.
	Slot primitives.Slot

	// CurrentJustifiedCheckpoint and PreviousJustifiedCheckpoint are the
	// justified checkpoints for the state's current and previous epoch,
	// used to validate a candidate's source checkpoint (§4.3.1).
	CurrentJustifiedCheckpoint  primitives.Checkpoint
	PreviousJustifiedCheckpoint primitives.Checkpoint

	// BlockRoot is the root of the block the state descends from; the
	// shuffling-compatibility check walks fork choice from this root
	// (§4.3.1).
	BlockRoot primitives.Root

	// Committee returns the committee metadata for (slot, committeeIndex).
	// A zero-Size result is treated as "committee unknown" and the
	// candidate is skipped.
	Committee func(slot primitives.Slot, committeeIndex primitives.CommitteeIndex) CommitteeInfo
}

// Epoch returns the state's current epoch.
func (s *BlockProductionState) Epoch() primitives.Epoch {
	return s.Slot.ToEpoch()
}
