package attestations

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"

	"github.com/chainforge/beacon-core/forkchoice"
	"github.com/chainforge/beacon-core/primitives"
)

// errNotYetEligible and errInclusionWindowExpired are internal skip
// signals for GetAttestationsForBlock's eligibility filter: neither is a
// protocol fault, so callers never see them — the candidate is simply left
// out of the packed result (§7: skip candidate, keep packing).
var (
	errNotYetEligible         = errors.New("attestations: inclusion delay not yet satisfied")
	errInclusionWindowExpired = errors.New("attestations: pre-Deneb inclusion window has expired")
)

// groupEntry pairs a stored AttestationGroup with the committee it belongs
// to, resolved once per packing pass rather than per member.
type groupEntry struct {
	data           primitives.AttestationData
	committeeIndex primitives.CommitteeIndex
	group          *AttestationGroup
}

// bySlotLocked buckets every non-empty AttestationGroup by its data slot.
// Caller must hold p.mu (for reading).
func (p *Pool) bySlotLocked() map[primitives.Slot][]*groupEntry {
	out := make(map[primitives.Slot][]*groupEntry)
	for _, g := range p.aggregated {
		members := g.Members()
		if len(members) == 0 {
			continue
		}
		best := g.Best()
		committeeIndex, err := committeeIndexOf(best)
		if err != nil {
			continue
		}
		data := members[0].Data
		out[data.Slot] = append(out[data.Slot], &groupEntry{
			data:           data,
			committeeIndex: committeeIndex,
			group:          g,
		})
	}
	return out
}

// descendingSlots returns bySlot's keys sorted highest-first, the order
// §4.3's packing loop scans in (closer slots score better and fill the
// block first).
func descendingSlots(bySlot map[primitives.Slot][]*groupEntry) []primitives.Slot {
	slots := make([]primitives.Slot, 0, len(bySlot))
	for s := range bySlot {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] > slots[j] })
	return slots
}

// fullBitlist returns an n-bit list with every bit set, the initial
// not-seen working set for a committee packing has not yet touched.
func fullBitlist(n int) bitfield.Bitlist {
	b := bitfield.NewBitlist(uint64(n))
	for i := uint64(0); i < uint64(n); i++ {
		b.SetBitAt(i, true)
	}
	return b
}

// eligible applies §4.3's inclusion-eligibility filter, shared by both the
// pre-Electra and Electra packing paths: the inclusion delay must have
// elapsed, the pre-Deneb inclusion window must not have expired, and the
// shuffling-compatibility check (§4.3.1, target epoch + source checkpoint
// + dependent root) must pass.
func (p *Pool) eligible(ctx context.Context, fc forkchoice.Getter, data primitives.AttestationData, state *BlockProductionState, preDeneb bool) error {
	if uint64(data.Slot)+primitives.MinAttestationInclusionDelay > uint64(state.Slot) {
		return errNotYetEligible
	}
	if preDeneb && uint64(state.Slot) > uint64(data.Slot)+primitives.SlotsPerEpoch {
		return errInclusionWindowExpired
	}
	return p.shufflingCache.checkShufflingCompatible(ctx, fc, data, state)
}

// GetAttestationsForBlock is §4.3's get_attestations_for_block(fork,
// fork_choice, state): it filters the pool's aggregated attestations for
// inclusion eligibility, scores the survivors, and returns the
// fork-appropriate top slice ready to go into a block body.
func (p *Pool) GetAttestationsForBlock(ctx context.Context, fork primitives.Fork, fc forkchoice.Getter, state *BlockProductionState) ([]*Attestation, error) {
	if fork.AtLeast(primitives.Electra) {
		return p.packElectra(ctx, fc, state)
	}
	return p.packPreElectra(ctx, fc, state, !fork.AtLeast(primitives.Deneb))
}

type scoredAttestation struct {
	att   *Attestation
	score float64
}

// packPreElectra implements §4.3's pre-Electra path: iterate slots
// descending, greedily pack each (data root, committee index) group
// (capped at PreElectraRetainedAttestations), score each pick by
// new_seen_effective_balance / inclusion_distance, and keep the top
// MaxAttestations. From the second scanned slot on, it stops scanning
// further slots once it holds 2*MaxAttestations candidates; the slots
// left unscanned are not considered at all.
func (p *Pool) packPreElectra(ctx context.Context, fc forkchoice.Getter, state *BlockProductionState, preDeneb bool) ([]*Attestation, error) {
	p.mu.RLock()
	bySlot := p.bySlotLocked()
	p.mu.RUnlock()

	var scored []scoredAttestation
	for slotIdx, slot := range descendingSlots(bySlot) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, entry := range bySlot[slot] {
			if err := p.eligible(ctx, fc, entry.data, state, preDeneb); err != nil {
				continue
			}
			info := state.Committee(slot, entry.committeeIndex)
			if info.Size == 0 {
				continue
			}
			notSeen := fullBitlist(info.Size)
			dist := entry.data.InclusionDistance(state.Slot)
			for _, pick := range entry.group.GetAttestationsForBlock(info.EffectiveBalanceIncrements, notSeen, primitives.PreElectraRetainedAttestations) {
				if pick.Gain == 0 {
					continue
				}
				scored = append(scored, scoredAttestation{
					att:   pick.Attestation,
					score: float64(pick.Gain) / float64(dist),
				})
			}
		}
		// Early exit (§4.3): from the second scanned slot on, stop once we
		// hold twice the block's cap worth of candidates. Remaining slots
		// carry a larger inclusion distance, but a pick there with a large
		// enough gain could still outscore a held candidate; it is skipped.
		if slotIdx >= 1 && len(scored) >= 2*primitives.MaxAttestations {
			break
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > primitives.MaxAttestations {
		scored = scored[:primitives.MaxAttestations]
	}
	out := make([]*Attestation, len(scored))
	for i, s := range scored {
		out[i] = s.att
	}
	return out, nil
}

// packElectra implements §4.3's Electra path: per slot (aborting once a
// slot falls before the state's previous epoch), group committees sharing
// a data root, build the consolidation[i] dense [max_per_committee][committees]
// table described in §9 DESIGN NOTES, score each row by its summed
// effective-balance gain over inclusion distance, and keep the top
// MaxAttestationsElectra after consolidating each selected row via
// ConsolidateElectra.
func (p *Pool) packElectra(ctx context.Context, fc forkchoice.Getter, state *BlockProductionState) ([]*Attestation, error) {
	p.mu.RLock()
	bySlot := p.bySlotLocked()
	p.mu.RUnlock()

	prevEpoch := state.Epoch()
	if prevEpoch > 0 {
		prevEpoch--
	}

	var scored []scoredAttestation
	for _, slot := range descendingSlots(bySlot) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if slot.ToEpoch() < prevEpoch {
			break
		}

		byDataRoot := make(map[primitives.Root][]*groupEntry)
		for _, entry := range bySlot[slot] {
			byDataRoot[entry.data.BeaconBlockRoot] = append(byDataRoot[entry.data.BeaconBlockRoot], entry)
		}

		for _, entries := range byDataRoot {
			committeeSizes := make(map[primitives.CommitteeIndex]int, len(entries))
			var perCommittee [][]AttestationWithGain
			var dist uint64 = 1
			for _, entry := range entries {
				if err := p.eligible(ctx, fc, entry.data, state, false); err != nil {
					continue
				}
				info := state.Committee(slot, entry.committeeIndex)
				if info.Size == 0 {
					continue
				}
				committeeSizes[entry.committeeIndex] = info.Size
				notSeen := fullBitlist(info.Size)
				picks := entry.group.GetAttestationsForBlock(info.EffectiveBalanceIncrements, notSeen, primitives.ElectraRetainedAttestations)
				if len(picks) == 0 {
					continue
				}
				perCommittee = append(perCommittee, picks)
				dist = entry.data.InclusionDistance(state.Slot)
			}

			maxRows := 0
			for _, picks := range perCommittee {
				if len(picks) > maxRows {
					maxRows = len(picks)
				}
			}
			for row := 0; row < maxRows; row++ {
				var rowAtts []*Attestation
				var rowGain primitives.Gwei
				for _, picks := range perCommittee {
					if row < len(picks) {
						rowAtts = append(rowAtts, picks[row].Attestation)
						rowGain += picks[row].Gain
					}
				}
				if len(rowAtts) == 0 {
					continue
				}
				consolidated, err := ConsolidateElectra(rowAtts, committeeSizes)
				if err != nil {
					continue
				}
				scored = append(scored, scoredAttestation{
					att:   consolidated,
					score: float64(rowGain) / float64(dist),
				})
			}
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > primitives.MaxAttestationsElectra {
		scored = scored[:primitives.MaxAttestationsElectra]
	}
	out := make([]*Attestation, len(scored))
	for i, s := range scored {
		out[i] = s.att
	}
	return out, nil
}
