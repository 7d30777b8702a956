package attestations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/forkchoice"
	"github.com/chainforge/beacon-core/primitives"
)

func buildChain(s *forkchoice.Store, roots []primitives.Root, slots []primitives.Slot) {
	s.Lock()
	defer s.Unlock()
	var parent primitives.Root
	for i, r := range roots {
		s.InsertNode(r, slots[i], parent, true)
		parent = r
	}
}

func TestCheckShufflingCompatible_InvalidTargetEpoch(t *testing.T) {
	c := newShufflingCache()
	data := testData(100)
	data.Target.Epoch = 5
	state := &BlockProductionState{Slot: 32}
	err := c.checkShufflingCompatible(context.Background(), forkchoice.NewROForkChoice(forkchoice.NewStore()), data, state)
	require.ErrorIs(t, err, ErrInvalidTargetEpoch)
}

func TestCheckShufflingCompatible_InvalidSourceCheckPoint(t *testing.T) {
	c := newShufflingCache()
	data := testData(32)
	state := &BlockProductionState{
		Slot:                       32,
		CurrentJustifiedCheckpoint: primitives.Checkpoint{Epoch: 0, Root: primitives.Root{9}},
	}
	err := c.checkShufflingCompatible(context.Background(), forkchoice.NewROForkChoice(forkchoice.NewStore()), data, state)
	require.ErrorIs(t, err, ErrInvalidSourceCheckPoint)
}

func TestCheckShufflingCompatible_SkipsPivotBeforeEpochTwo(t *testing.T) {
	c := newShufflingCache()
	data := testData(32)
	state := &BlockProductionState{
		Slot:                       32,
		CurrentJustifiedCheckpoint: data.Source,
	}
	err := c.checkShufflingCompatible(context.Background(), forkchoice.NewROForkChoice(forkchoice.NewStore()), data, state)
	require.NoError(t, err)
}

func TestCheckShufflingCompatible_BlockNotInForkChoice(t *testing.T) {
	c := newShufflingCache()
	data := testData(96) // epoch 3
	data.Target.Epoch = 3
	store := forkchoice.NewStore()
	state := &BlockProductionState{
		Slot:                       96,
		CurrentJustifiedCheckpoint: data.Source,
		BlockRoot:                  primitives.Root{1},
	}
	err := c.checkShufflingCompatible(context.Background(), forkchoice.NewROForkChoice(store), data, state)
	require.ErrorIs(t, err, ErrBlockNotInForkChoice)
}

func TestCheckShufflingCompatible_MatchingDependentRoot(t *testing.T) {
	c := newShufflingCache()
	store := forkchoice.NewStore()

	var pivotRoot, stateRoot, candidateRoot primitives.Root
	pivotRoot[0] = 1
	stateRoot[0] = 2
	candidateRoot[0] = 3

	// target epoch 3 -> pivot_slot = start_slot(2) - 1 = 63.
	buildChain(store, []primitives.Root{pivotRoot, stateRoot}, []primitives.Slot{63, 96})
	store.Lock()
	store.InsertNode(candidateRoot, 90, pivotRoot, true)
	store.Unlock()

	data := testData(90)
	data.Target.Epoch = 3
	data.BeaconBlockRoot = candidateRoot
	state := &BlockProductionState{
		Slot:                       96,
		CurrentJustifiedCheckpoint: data.Source,
		BlockRoot:                  stateRoot,
	}

	err := c.checkShufflingCompatible(context.Background(), forkchoice.NewROForkChoice(store), data, state)
	require.NoError(t, err)
}

func TestCheckShufflingCompatible_IncorrectDependentRoot(t *testing.T) {
	c := newShufflingCache()
	store := forkchoice.NewStore()

	var statePivot, candidatePivot, stateRoot, candidateRoot primitives.Root
	statePivot[0] = 1
	candidatePivot[0] = 2
	stateRoot[0] = 3
	candidateRoot[0] = 4

	buildChain(store, []primitives.Root{statePivot, stateRoot}, []primitives.Slot{63, 96})
	store.Lock()
	store.InsertNode(candidatePivot, 63, primitives.Root{}, true)
	store.InsertNode(candidateRoot, 90, candidatePivot, true)
	store.Unlock()

	data := testData(90)
	data.Target.Epoch = 3
	data.BeaconBlockRoot = candidateRoot
	state := &BlockProductionState{
		Slot:                       96,
		CurrentJustifiedCheckpoint: data.Source,
		BlockRoot:                  stateRoot,
	}

	err := c.checkShufflingCompatible(context.Background(), forkchoice.NewROForkChoice(store), data, state)
	require.ErrorIs(t, err, ErrIncorrectDependentRoot)
}
