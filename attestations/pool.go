package attestations

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/bitutil"
	"github.com/chainforge/beacon-core/primitives"
)

// blockAttCacheSize and forkchoiceCacheSize bound the block-attestation and
// forkchoice-attestation side caches by distinct data ID, evicting the
// least-recently-used entry once full. Prune does not touch these caches;
// the LRU bound is the only limit on how many distinct data IDs they hold.
const (
	blockAttCacheSize   = 2048
	forkchoiceCacheSize = 4096
)

// ErrAttestationOld is returned by Add when an attestation's slot falls
// below the pool's current retention floor (§4.3's add() Old outcome). It
// is a local, uncounted rejection — not a protocol fault — matching §7's
// error taxonomy.
var ErrAttestationOld = errors.New("attestations: attestation slot below lowest permissible slot")

// ErrElectraCommitteeBitCount is returned when an Electra attestation's
// CommitteeBits does not carry exactly one set bit. Per §4.3's add(), this
// is a fatal invariant break: a gossip-validated Electra attestation is
// defined to represent exactly one committee.
var ErrElectraCommitteeBitCount = errors.New("attestations: electra attestation must set exactly one committee bit")

// Pool is C3: the attestation pool a validator client's block-packing RPC
// and the gossip-validation pipeline share, mirroring the teacher's
// attestations/kv.AttCaches (map-of-slices plus a go-cache seen-set).
//
// Every exported method takes the pool's own lock; callers never see a
// torn read, matching the single-writer-per-component discipline the
// teacher applies throughout beacon-chain.
type Pool struct {
	mu sync.RWMutex

	aggregated   map[ID]*AttestationGroup
	unaggregated map[string]*Attestation
	blockAtt     *lru.Cache // ID -> []*Attestation
	forkchoice   *lru.Cache // ID -> []*Attestation

	// seen records the group ID of every aggregated insert, with an empty
	// value; nothing in the pool reads it back.
	// Mirrors kv.AttCaches.seenAtt (go-cache with a default TTL).
	seen *gocache.Cache

	// lowestPermissibleSlot is the retention floor Prune last computed
	// (§4.3's lowest_permissible_slot): Add rejects anything below it as Old
	// without ever consulting the slot's AttestationGroup.
	lowestPermissibleSlot primitives.Slot

	shufflingCache *shufflingCache
}

// NewPool returns an empty Pool. Entries in seen expire five minutes after
// they were last set.
func NewPool() *Pool {
	blockAtt, err := lru.New(blockAttCacheSize)
	if err != nil {
		panic(err) // only errors on a non-positive size, which blockAttCacheSize never is
	}
	forkchoice, err := lru.New(forkchoiceCacheSize)
	if err != nil {
		panic(err)
	}
	return &Pool{
		aggregated:     make(map[ID]*AttestationGroup),
		unaggregated:   make(map[string]*Attestation),
		blockAtt:       blockAtt,
		forkchoice:     forkchoice,
		seen:           gocache.New(5*time.Minute, 10*time.Minute),
		shufflingCache: newShufflingCache(),
	}
}

// committeeIndexOf derives the committee an attestation belongs to: for an
// Electra (CommitteeBits-carrying) attestation, the single set bit — fatal
// if CommitteeBits does not carry exactly one (§4.3's add()); pre-Electra,
// Data.CommitteeIndex directly, since Electra's wire format always zeroes
// that field in favor of CommitteeBits (§3).
func committeeIndexOf(att *Attestation) (primitives.CommitteeIndex, error) {
	if att == nil {
		return 0, ErrNilAttestation
	}
	if att.IsElectra() {
		if countSetBits64(att.CommitteeBits) != 1 {
			return 0, ErrElectraCommitteeBitCount
		}
		return primitives.CommitteeIndex(soleCommitteeBit(att.CommitteeBits)), nil
	}
	return att.Data.CommitteeIndex, nil
}

// groupID keys the aggregated pool's (slot, data_root, committee_index)
// structure (§4.3): AttestationData hashed with CommitteeIndex overridden
// to the attestation's derived committee, so Electra attestations — whose
// wire CommitteeIndex is always zero — still group by their real
// committee instead of colliding on data root alone.
func groupID(d primitives.AttestationData, committeeIndex primitives.CommitteeIndex) ID {
	keyed := d
	keyed.CommitteeIndex = committeeIndex
	return dataID(keyed)
}

// SaveUnaggregatedAttestation stages a single-attester attestation (§4.2
// EXPANSION: gossip staging).
func (p *Pool) SaveUnaggregatedAttestation(att *Attestation) error {
	if err := validate(att); err != nil {
		return err
	}
	if err := validateData(att); err != nil {
		return err
	}
	if att.IsAggregated() {
		// Already an aggregate; route it to the aggregated pool instead of
		// silently dropping it, matching SaveAggregatedAttestation's path.
		return p.SaveAggregatedAttestation(att)
	}
	key, err := attestationID(att)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unaggregated[key] = att
	return nil
}

// SaveUnaggregatedAttestations stages each attestation, returning the first
// error encountered (the rest are still attempted, mirroring
// SaveAggregatedAttestations' "some good some bad" contract).
func (p *Pool) SaveUnaggregatedAttestations(atts []*Attestation) error {
	var firstErr error
	for _, a := range atts {
		if err := p.SaveUnaggregatedAttestation(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UnaggregatedAttestations returns every staged single-attester attestation.
func (p *Pool) UnaggregatedAttestations() []*Attestation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Attestation, 0, len(p.unaggregated))
	for _, a := range p.unaggregated {
		out = append(out, a)
	}
	return out
}

// UnaggregatedAttestationCount reports the size of the staging set.
func (p *Pool) UnaggregatedAttestationCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.unaggregated)
}

// DeleteUnaggregatedAttestation removes att from staging, if present.
func (p *Pool) DeleteUnaggregatedAttestation(att *Attestation) error {
	key, err := attestationID(att)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.unaggregated, key)
	return nil
}

// AggregateUnaggregatedAttestations groups every staged attestation by data
// ID, aggregates each group's bits and signatures, inserts the results into
// the aggregated pool, and drains staging (§4.2 EXPANSION: two-phase
// gossip insertion — Save* stages, this promotes).
func (p *Pool) AggregateUnaggregatedAttestations(ctx context.Context) error {
	p.mu.Lock()
	byData := make(map[ID][]*Attestation)
	for _, a := range p.unaggregated {
		id := dataID(a.Data)
		byData[id] = append(byData[id], a)
	}
	p.unaggregated = make(map[string]*Attestation)
	p.mu.Unlock()

	for _, group := range byData {
		if err := ctx.Err(); err != nil {
			return err
		}
		agg, err := aggregate(group)
		if err != nil {
			continue
		}
		if _, err := p.insertAggregated(agg); err != nil {
			continue
		}
	}
	return nil
}

// aggregate merges a same-data attestation set's bits and BLS signatures
// into a single aggregate (§4.2).
func aggregate(atts []*Attestation) (*Attestation, error) {
	if len(atts) == 0 {
		return nil, errors.New("attestations: nothing to aggregate")
	}
	merged := atts[0].Clone()
	for _, a := range atts[1:] {
		if err := bitutil.Merge(merged.AggregationBits, a.AggregationBits); err != nil {
			return nil, err
		}
	}
	sig, err := aggregateSignatures(atts)
	if err != nil {
		return nil, err
	}
	merged.Signature = sig
	return merged, nil
}

// SaveAggregatedAttestation validates and inserts a multi-attester
// attestation into its data's AttestationGroup.
func (p *Pool) SaveAggregatedAttestation(att *Attestation) error {
	if err := validate(att); err != nil {
		return err
	}
	if err := validateData(att); err != nil {
		return err
	}
	if !att.IsAggregated() {
		return ErrNotAggregated
	}
	_, err := p.insertAggregated(att)
	return err
}

// Add is §4.3's add(att, data_root_hex, attesting_indices_count,
// committee_members): the pool's canonical ingestion entry point. It runs
// SaveAggregatedAttestation's validation except the aggregated-only check
// (single-bit attestations are accepted), plus the Old rejection that
// insertAggregated alone cannot perform, since an attestation below the retention floor
// should never reach — or create — an AttestationGroup at all.
func (p *Pool) Add(att *Attestation) (InsertOutcome, error) {
	if err := validate(att); err != nil {
		return AlreadyKnown, err
	}
	if err := validateData(att); err != nil {
		return AlreadyKnown, err
	}
	p.mu.RLock()
	floor := p.lowestPermissibleSlot
	p.mu.RUnlock()
	if att.Data.Slot < floor {
		return AlreadyKnown, ErrAttestationOld
	}
	return p.insertAggregated(att)
}

// insertAggregated derives att's committee index (fatal on an Electra
// attestation that doesn't carry exactly one committee bit), keys its
// AttestationGroup by (data, committee index), and inserts.
func (p *Pool) insertAggregated(att *Attestation) (InsertOutcome, error) {
	committeeIndex, err := committeeIndexOf(att)
	if err != nil {
		return AlreadyKnown, err
	}
	id := groupID(att.Data, committeeIndex)

	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.aggregated[id]
	if !ok {
		g = NewAttestationGroup()
		p.aggregated[id] = g
	}
	outcome, err := g.Insert(att)
	if err != nil {
		return outcome, err
	}
	p.seen.Set(id.String(), struct{}{}, gocache.DefaultExpiration)
	return outcome, nil
}

// Prune implements §4.3's prune(clock_slot): post-Deneb the pool retains
// the previous epoch's start slot through clockSlot; pre-Deneb it retains
// only the last SLOTS_PER_EPOCH slots. lowestPermissibleSlot advances to
// the new floor so future Add calls reject anything below it as Old
// without needing to touch a group.
func (p *Pool) Prune(clockSlot primitives.Slot, fork primitives.Fork) {
	var floor primitives.Slot
	if fork.AtLeast(primitives.Deneb) {
		epoch := clockSlot.ToEpoch()
		if epoch > 0 {
			floor = primitives.Epoch(uint64(epoch) - 1).StartSlot()
		}
	} else if uint64(clockSlot) > primitives.SlotsPerEpoch {
		floor = clockSlot - primitives.SlotsPerEpoch
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if floor > p.lowestPermissibleSlot {
		p.lowestPermissibleSlot = floor
	}
	for id, g := range p.aggregated {
		kept := g.members[:0]
		for _, a := range g.members {
			if a.Data.Slot >= p.lowestPermissibleSlot {
				kept = append(kept, a)
			}
		}
		if len(kept) == 0 {
			delete(p.aggregated, id)
		} else {
			g.members = kept
		}
	}
	for key, a := range p.unaggregated {
		if a.Data.Slot < p.lowestPermissibleSlot {
			delete(p.unaggregated, key)
		}
	}
}

// SaveAggregatedAttestations inserts each attestation, returning the first
// validation error but continuing to insert the rest.
func (p *Pool) SaveAggregatedAttestations(atts []*Attestation) error {
	var firstErr error
	for _, a := range atts {
		if err := p.SaveAggregatedAttestation(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AggregatedAttestations returns the collapsed member set across every
// data group in the pool.
func (p *Pool) AggregatedAttestations() []*Attestation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Attestation
	for _, g := range p.aggregated {
		out = append(out, g.Members()...)
	}
	return out
}

// AggregatedAttestationCount reports the total number of collapsed members
// across every data group.
func (p *Pool) AggregatedAttestationCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, g := range p.aggregated {
		n += g.Len()
	}
	return n
}

// AggregatedAttestationsBySlotIndex returns the aggregated attestations for
// slot whose committee selection includes committeeIndex — for a
// pre-Electra attestation that means Data.CommitteeIndex == committeeIndex;
// for an Electra attestation it means CommitteeBits has that bit set
// (§4.2, §9 EXPANSION).
func (p *Pool) AggregatedAttestationsBySlotIndex(ctx context.Context, slot primitives.Slot, committeeIndex primitives.CommitteeIndex) []*Attestation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Attestation
	for _, g := range p.aggregated {
		for _, a := range g.Members() {
			if a.Data.Slot != slot {
				continue
			}
			if a.IsElectra() {
				if uint64(committeeIndex) < uint64(len(a.CommitteeBits))*8 && a.CommitteeBits.BitAt(uint64(committeeIndex)) {
					out = append(out, a)
				}
				continue
			}
			if a.Data.CommitteeIndex == committeeIndex {
				out = append(out, a)
			}
		}
	}
	return out
}

// DeleteAggregatedAttestation removes att's exact member from its data
// group, pruning the group entirely once empty.
func (p *Pool) DeleteAggregatedAttestation(att *Attestation) error {
	if err := validate(att); err != nil {
		return err
	}
	if err := validateData(att); err != nil {
		return err
	}
	if !att.IsAggregated() {
		return ErrNotAggregated
	}
	committeeIndex, err := committeeIndexOf(att)
	if err != nil {
		return err
	}
	id := groupID(att.Data, committeeIndex)
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.aggregated[id]
	if !ok {
		return nil
	}
	g.Remove(att)
	if g.Len() == 0 {
		delete(p.aggregated, id)
	}
	return nil
}

// HasAggregatedAttestation reports whether att's attesters are already
// fully represented by an existing aggregate for the same data.
func (p *Pool) HasAggregatedAttestation(att *Attestation) (bool, error) {
	if err := validate(att); err != nil {
		return false, err
	}
	if err := validateData(att); err != nil {
		return false, err
	}
	committeeIndex, err := committeeIndexOf(att)
	if err != nil {
		return false, err
	}
	id := groupID(att.Data, committeeIndex)
	p.mu.RLock()
	defer p.mu.RUnlock()

	if g, ok := p.aggregated[id]; ok {
		if has, err := g.Contains(att); err != nil || has {
			return has, err
		}
	}
	for _, b := range blockAttsLocked(p.blockAtt, id) {
		rel, err := bitutil.Classify(att.AggregationBits, b.AggregationBits)
		if err != nil {
			return false, err
		}
		if rel == bitutil.Equal || rel == bitutil.Subset {
			return true, nil
		}
	}
	return false, nil
}

// blockAttsLocked reads id's block-attestation list from cache, if any.
// Caller must hold p.mu.
func blockAttsLocked(cache *lru.Cache, id ID) []*Attestation {
	v, ok := cache.Get(id)
	if !ok {
		return nil
	}
	return v.([]*Attestation)
}

// SaveBlockAttestation records att as having been included in an imported
// block, so future HasAggregatedAttestation checks treat its attesters as
// already represented.
func (p *Pool) SaveBlockAttestation(att *Attestation) error {
	if err := validate(att); err != nil {
		return err
	}
	if err := validateData(att); err != nil {
		return err
	}
	id := dataID(att.Data)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockAtt.Add(id, append(blockAttsLocked(p.blockAtt, id), att))
	return nil
}

// SaveBlockAttestations records multiple block attestations.
func (p *Pool) SaveBlockAttestations(atts []*Attestation) error {
	var firstErr error
	for _, a := range atts {
		if err := p.SaveBlockAttestation(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SaveForkchoiceAttestation records att as relevant to fork-choice weight
// accounting, kept separate from the block-packing pool (§9 DESIGN NOTES).
func (p *Pool) SaveForkchoiceAttestation(att *Attestation) error {
	if err := validate(att); err != nil {
		return err
	}
	if err := validateData(att); err != nil {
		return err
	}
	id := dataID(att.Data)
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, _ := p.forkchoice.Get(id)
	var atts []*Attestation
	if existing != nil {
		atts = existing.([]*Attestation)
	}
	p.forkchoice.Add(id, append(atts, att))
	return nil
}

// ForkchoiceAttestations returns every attestation recorded for fork-choice
// weight accounting.
func (p *Pool) ForkchoiceAttestations() []*Attestation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Attestation
	for _, key := range p.forkchoice.Keys() {
		v, ok := p.forkchoice.Peek(key)
		if !ok {
			continue
		}
		out = append(out, v.([]*Attestation)...)
	}
	return out
}

// DeleteForkchoiceAttestation drops every forkchoice-pool entry sharing
// att's data, once the block-tree node they vote for is pruned.
func (p *Pool) DeleteForkchoiceAttestation(att *Attestation) error {
	if err := validate(att); err != nil {
		return err
	}
	if err := validateData(att); err != nil {
		return err
	}
	id := dataID(att.Data)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forkchoice.Remove(id)
	return nil
}

// validateData rejects the zero-value Attestation{}, the Go analogue of the
// teacher's "attestation's data can't be nil" case (Data is a value type
// here, so there is no pointer-nil to check; an unset AggregationBits is the
// equivalent tell).
func validateData(att *Attestation) error {
	if att.AggregationBits == nil {
		return ErrNilAttestationData
	}
	return nil
}
