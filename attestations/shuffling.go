package attestations

import (
	"context"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/forkchoice"
	"github.com/chainforge/beacon-core/primitives"
)

// §4.3.1 shuffling-compatibility error taxonomy (§7): each names a distinct
// reason a candidate attestation is skipped during block packing rather
// than included.
var (
	// ErrInvalidTargetEpoch is returned when a candidate's target epoch is
	// neither the state's current nor previous epoch.
	ErrInvalidTargetEpoch = errors.New("attestations: target epoch is not state's current or previous epoch")
	// ErrInvalidSourceCheckPoint is returned when a candidate's source
	// checkpoint does not match the justified checkpoint for its target
	// epoch.
	ErrInvalidSourceCheckPoint = errors.New("attestations: source checkpoint does not match state's justified checkpoint")
	// ErrBlockNotInForkChoice is returned when a candidate's beacon block
	// root has not been imported into fork choice.
	ErrBlockNotInForkChoice = errors.New("attestations: beacon block root is not known to fork choice")
	// ErrCannotGetShufflingDependentRoot is returned when fork choice cannot
	// resolve the pivot-slot ancestor for either side of the comparison.
	ErrCannotGetShufflingDependentRoot = errors.New("attestations: could not resolve shuffling pivot dependent root")
	// ErrIncorrectDependentRoot is returned when the candidate's and the
	// state's pivot-slot dependent roots disagree, meaning the candidate
	// was computed against an incompatible shuffling.
	ErrIncorrectDependentRoot = errors.New("attestations: shuffling dependent root mismatch")
)

// shufflingCacheSize bounds the pivot-slot dependent-root memo.
const shufflingCacheSize = 4096

// shufflingCache memoizes AncestorRoot(root, pivot_slot) lookups keyed by
// (beacon_block_root_hex, target_epoch), per §4.3.1's stated cache.
type shufflingCache struct {
	cache *lru.Cache
}

func newShufflingCache() *shufflingCache {
	c, err := lru.New(shufflingCacheSize)
	if err != nil {
		panic(err) // only errors on a non-positive size, which shufflingCacheSize never is
	}
	return &shufflingCache{cache: c}
}

func shufflingCacheKey(root primitives.Root, targetEpoch primitives.Epoch) string {
	return root.Hex() + ":" + strconv.FormatUint(uint64(targetEpoch), 10)
}

func (c *shufflingCache) dependentRoot(ctx context.Context, fc forkchoice.Getter, root primitives.Root, targetEpoch primitives.Epoch, pivotSlot primitives.Slot) (primitives.Root, error) {
	key := shufflingCacheKey(root, targetEpoch)
	if v, ok := c.cache.Get(key); ok {
		return v.(primitives.Root), nil
	}
	r, err := fc.AncestorRoot(ctx, root, pivotSlot)
	if err != nil {
		return primitives.Root{}, ErrCannotGetShufflingDependentRoot
	}
	c.cache.Add(key, r)
	return r, nil
}

// checkShufflingCompatible validates a candidate attestation's eligibility
// per §4.3.1: its target epoch and source checkpoint must match the
// state's view, and — once a pivot slot exists to compare against — the
// block it was computed against must share the state's shuffling-pivot
// dependent root.
//
// The pivot-slot back-walk relies on fork choice's AncestorRoot to resolve
// skip slots (it walks the canonical chain backward to the requested
// slot); if fork choice cannot resolve it — e.g. the pivot predates what
// this node has imported — this reports CannotGetShufflingDependentRoot
// rather than guessing (§9 DESIGN NOTES).
func (c *shufflingCache) checkShufflingCompatible(ctx context.Context, fc forkchoice.Getter, data primitives.AttestationData, state *BlockProductionState) error {
	currentEpoch := state.Epoch()
	targetEpoch := data.Target.Epoch

	if targetEpoch != currentEpoch && targetEpoch+1 != currentEpoch {
		return ErrInvalidTargetEpoch
	}

	wantSource := state.CurrentJustifiedCheckpoint
	if targetEpoch+1 == currentEpoch {
		wantSource = state.PreviousJustifiedCheckpoint
	}
	if data.Source != wantSource {
		return ErrInvalidSourceCheckPoint
	}

	// No pivot slot exists this early in the chain's history; nothing left
	// to compare.
	if targetEpoch < 2 {
		return nil
	}

	if !fc.HasNode(data.BeaconBlockRoot) {
		return ErrBlockNotInForkChoice
	}

	pivotSlot := primitives.Epoch(uint64(targetEpoch)-1).StartSlot() - 1

	stateDependent, err := c.dependentRoot(ctx, fc, state.BlockRoot, targetEpoch, pivotSlot)
	if err != nil {
		return err
	}
	candidateDependent, err := c.dependentRoot(ctx, fc, data.BeaconBlockRoot, targetEpoch, pivotSlot)
	if err != nil {
		return err
	}
	if stateDependent != candidateDependent {
		return ErrIncorrectDependentRoot
	}
	return nil
}
