package attestations

import (
	"sort"

	"github.com/prysmaticlabs/go-bitfield"

	"github.com/chainforge/beacon-core/bitutil"
	"github.com/chainforge/beacon-core/primitives"
)

// InsertOutcome reports how Insert changed (or didn't change) a group's
// member set (§4.2). Old, the fourth member of the spec's insert outcome
// enum, is a pool-level concern (stale-slot rejection happens before the
// group is ever consulted — see Pool.Add) and so has no group-level value.
type InsertOutcome int

const (
	// AlreadyKnown means att added nothing: its bits were a Subset or Equal
	// of an existing member.
	AlreadyKnown InsertOutcome = iota
	// Aggregated means att was OR-merged with bits and BLS signatures into
	// an existing Exclusive member.
	Aggregated
	// NewData means att was appended, or replaced one or more Subset-
	// dominated members, as a new, separately-tracked member.
	NewData
)

// String implements fmt.Stringer.
func (o InsertOutcome) String() string {
	switch o {
	case AlreadyKnown:
		return "already_known"
	case Aggregated:
		return "aggregated"
	case NewData:
		return "new_data"
	default:
		return "unknown"
	}
}

// AttestationGroup is C1.BitUnion applied to attestation aggregation: a set
// of attestations that all share the same AttestationData, kept collapsed so
// that no member is a strict bitwise subset of another (§4.2). Inserting a
// Subset or Equal attestation is a no-op; inserting a Superset replaces
// every member it dominates; an Exclusive attestation is OR-merged with BLS
// signature aggregation into the first exclusive match; an Overlapping
// attestation (shares some but not all bits with every retained member) is
// appended as a new, separately-tracked member, since merging would
// double-count a validator's attestation without a fresh signature
// aggregation.
type AttestationGroup struct {
	members []*Attestation
}

// NewAttestationGroup returns an empty group.
func NewAttestationGroup() *AttestationGroup {
	return &AttestationGroup{}
}

// retainedCap returns the group's retention cap (§3): 8 once att is in the
// post-Electra cross-committee format, 3 otherwise. The cap is derived from
// the attestation's own wire format rather than plumbed in separately,
// since every member of a group necessarily shares one fork's format.
func retainedCap(att *Attestation) int {
	if att.IsElectra() {
		return primitives.ElectraRetainedAttestations
	}
	return primitives.PreElectraRetainedAttestations
}

// Insert adds att to the group, collapsing subset/superset/equal/exclusive
// relations against existing members, then truncating to the retained cap
// by descending true-bits-count if the insert grew the group past it
// (§4.2).
func (g *AttestationGroup) Insert(att *Attestation) (InsertOutcome, error) {
	for i, m := range g.members {
		rel, err := bitutil.Classify(m.AggregationBits, att.AggregationBits)
		if err != nil {
			// Different bitlist lengths (e.g. committee size changed across
			// a boundary) — treat as unrelated, try the next member.
			continue
		}
		switch rel {
		case bitutil.Equal, bitutil.Superset:
			// m already represents at least as much as att: no-op.
			return AlreadyKnown, nil
		case bitutil.Subset:
			// att represents everything m did and more: replace m and drop
			// any later member att also dominates.
			kept := append(g.members[:i:i], att)
			for _, o := range g.members[i+1:] {
				if r, err := bitutil.Classify(o.AggregationBits, att.AggregationBits); err == nil && r == bitutil.Subset {
					continue
				}
				kept = append(kept, o)
			}
			g.members = kept
			g.enforceCap(att)
			return NewData, nil
		case bitutil.Exclusive:
			merged := m.Clone()
			if err := bitutil.Merge(merged.AggregationBits, att.AggregationBits); err != nil {
				return AlreadyKnown, err
			}
			sig, err := aggregateSignatures([]*Attestation{m, att})
			if err != nil {
				return AlreadyKnown, err
			}
			merged.Signature = sig
			g.members[i] = merged
			g.enforceCap(att)
			return Aggregated, nil
		case bitutil.Overlapping:
			// Shares bits with m but neither contains the other: merging
			// here would double-count an attester. Try the next member.
		}
	}
	g.members = append(g.members, att)
	g.enforceCap(att)
	return NewData, nil
}

// enforceCap truncates the member set to retainedCap(last), keeping the
// members with the most set bits, once insertion has grown it past the cap.
func (g *AttestationGroup) enforceCap(last *Attestation) {
	limit := retainedCap(last)
	if len(g.members) <= limit {
		return
	}
	sort.SliceStable(g.members, func(i, j int) bool {
		return g.members[i].AggregationBits.Count() > g.members[j].AggregationBits.Count()
	})
	g.members = g.members[:limit]
}

// Members returns every collapsed member of the group.
func (g *AttestationGroup) Members() []*Attestation {
	out := make([]*Attestation, len(g.members))
	copy(out, g.members)
	return out
}

// Len reports the number of collapsed members.
func (g *AttestationGroup) Len() int { return len(g.members) }

// Best returns the member with the most set aggregation bits, the one block
// packing prefers when only a single attestation per committee fits (§4.2).
func (g *AttestationGroup) Best() *Attestation {
	if len(g.members) == 0 {
		return nil
	}
	best := g.members[0]
	bestCount := best.AggregationBits.Count()
	for _, m := range g.members[1:] {
		if c := m.AggregationBits.Count(); c > bestCount {
			best, bestCount = m, c
		}
	}
	return best
}

// Remove deletes the first member whose aggregation bits exactly equal
// att's, reporting whether a member was removed.
func (g *AttestationGroup) Remove(att *Attestation) bool {
	for i, m := range g.members {
		rel, err := bitutil.Classify(m.AggregationBits, att.AggregationBits)
		if err == nil && rel == bitutil.Equal {
			g.members = append(g.members[:i], g.members[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether att's attesters are already fully represented by
// some member of the group (att is Equal to or a Subset of a member).
func (g *AttestationGroup) Contains(att *Attestation) (bool, error) {
	for _, m := range g.members {
		rel, err := bitutil.Classify(att.AggregationBits, m.AggregationBits)
		if err != nil {
			continue
		}
		if rel == bitutil.Equal || rel == bitutil.Subset {
			return true, nil
		}
	}
	return false, nil
}

// AttestationWithGain pairs a candidate attestation with the effective-
// balance gain it contributed at the greedy selection step that picked it
// (§4.2).
type AttestationWithGain struct {
	Attestation *Attestation
	Gain        primitives.Gwei
}

// GetAttestationsForBlock greedily selects up to max retained members: at
// each step it picks the member maximizing the sum of effective-balance
// increments of committee positions that are both set in the member's
// aggregation bits and in notSeen, then contracts notSeen to the positions
// that member did not cover. It stops once notSeen is empty, max picks have
// been made, or no positive-gain candidate remains (§4.2, Testable
// Property 3). effectiveBalanceIncrements is indexed by committee position,
// matching notSeen's bit positions.
func (g *AttestationGroup) GetAttestationsForBlock(effectiveBalanceIncrements []primitives.Gwei, notSeen bitfield.Bitlist, max int) []AttestationWithGain {
	remaining := append([]*Attestation(nil), g.members...)
	notSeen = append(bitfield.Bitlist(nil), notSeen...)

	var out []AttestationWithGain
	for len(out) < max && len(remaining) > 0 && bitutil.PopCount(notSeen) > 0 {
		bestIdx := -1
		var bestGain primitives.Gwei
		for i, m := range remaining {
			gain := gainOf(m.AggregationBits, notSeen, effectiveBalanceIncrements)
			if bestIdx == -1 || gain > bestGain {
				bestIdx, bestGain = i, gain
			}
		}
		if bestGain == 0 {
			break
		}
		picked := remaining[bestIdx]
		out = append(out, AttestationWithGain{Attestation: picked, Gain: bestGain})
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		clearCoveredBits(notSeen, picked.AggregationBits)
	}
	return out
}

// gainOf sums weights[i] for every position i set in both bits and notSeen.
func gainOf(bits, notSeen bitfield.Bitlist, weights []primitives.Gwei) primitives.Gwei {
	var sum primitives.Gwei
	n := bits.Len()
	if notSeen.Len() < n {
		n = notSeen.Len()
	}
	for i := uint64(0); i < n; i++ {
		if bits.BitAt(i) && notSeen.BitAt(i) {
			if i < uint64(len(weights)) {
				sum += weights[i]
			}
		}
	}
	return sum
}

// clearCoveredBits unsets every position in notSeen that bits covers, so the
// not-seen set contracts to the positions the just-picked attestation did
// not cover (§4.2).
func clearCoveredBits(notSeen, bits bitfield.Bitlist) {
	n := notSeen.Len()
	if bits.Len() < n {
		n = bits.Len()
	}
	for i := uint64(0); i < n; i++ {
		if bits.BitAt(i) {
			notSeen.SetBitAt(i, false)
		}
	}
}
