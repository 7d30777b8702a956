// Package forkchoice exposes a read-only view onto the canonical chain that
// attestations and das need for shuffling validation and pruning decisions
// (§4.3.1, §4.4). Fork choice itself — the weighted-tree algorithm that picks
// the head — sits outside this module's scope (§1: external collaborator);
// this package only wraps whatever store implements the Getter contract with
// enforced read-locking, mirroring the teacher's forkchoice.ROForkChoice
// pattern (beacon-chain/forkchoice/ro_test.go).
package forkchoice

import (
	"context"

	"github.com/chainforge/beacon-core/primitives"
)

// Getter is the subset of the fork choice store's read surface this module
// depends on.
type Getter interface {
	// HasNode reports whether root has been imported into the store.
	HasNode(root primitives.Root) bool
	// AncestorRoot returns the ancestor of root at slot, walking the
	// canonical chain backwards.
	AncestorRoot(ctx context.Context, root primitives.Root, slot primitives.Slot) (primitives.Root, error)
	// IsCanonical reports whether root is part of the canonical chain.
	IsCanonical(root primitives.Root) bool
	// FinalizedCheckpoint returns the store's current finalized checkpoint.
	FinalizedCheckpoint() primitives.Checkpoint
	// JustifiedCheckpoint returns the store's current justified checkpoint.
	JustifiedCheckpoint() primitives.Checkpoint
	// Slot returns the slot of the block identified by root.
	Slot(root primitives.Root) (primitives.Slot, error)
}

// Locker is satisfied by any store that guards its state with a
// sync.RWMutex-shaped lock, letting ROForkChoice enforce read-locking around
// every call regardless of the concrete store implementation.
type Locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// GetterLocker is the combined contract a concrete fork choice store must
// satisfy to be wrapped by NewROForkChoice.
type GetterLocker interface {
	Getter
	Locker
}

// ROForkChoice wraps a GetterLocker and enforces RLock/RUnlock around every
// read, so callers outside the fork choice package's single-writer
// discipline can never observe a torn read.
type ROForkChoice struct {
	store GetterLocker
}

// NewROForkChoice wraps store in a read-only accessor.
func NewROForkChoice(store GetterLocker) *ROForkChoice {
	return &ROForkChoice{store: store}
}

func (ro *ROForkChoice) HasNode(root primitives.Root) bool {
	ro.store.RLock()
	defer ro.store.RUnlock()
	return ro.store.HasNode(root)
}

func (ro *ROForkChoice) AncestorRoot(ctx context.Context, root primitives.Root, slot primitives.Slot) (primitives.Root, error) {
	ro.store.RLock()
	defer ro.store.RUnlock()
	return ro.store.AncestorRoot(ctx, root, slot)
}

func (ro *ROForkChoice) IsCanonical(root primitives.Root) bool {
	ro.store.RLock()
	defer ro.store.RUnlock()
	return ro.store.IsCanonical(root)
}

func (ro *ROForkChoice) FinalizedCheckpoint() primitives.Checkpoint {
	ro.store.RLock()
	defer ro.store.RUnlock()
	return ro.store.FinalizedCheckpoint()
}

func (ro *ROForkChoice) JustifiedCheckpoint() primitives.Checkpoint {
	ro.store.RLock()
	defer ro.store.RUnlock()
	return ro.store.JustifiedCheckpoint()
}

func (ro *ROForkChoice) Slot(root primitives.Root) (primitives.Slot, error) {
	ro.store.RLock()
	defer ro.store.RUnlock()
	return ro.store.Slot(root)
}
