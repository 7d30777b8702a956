package forkchoice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/primitives"
)

type mockCall int

const (
	rlockCalled mockCall = iota
	runlockCalled
	hasNodeCalled
)

type mockStore struct {
	calls []mockCall
}

var _ GetterLocker = &mockStore{}

func (m *mockStore) Lock()   {}
func (m *mockStore) Unlock() {}
func (m *mockStore) RLock()  { m.calls = append(m.calls, rlockCalled) }
func (m *mockStore) RUnlock() {
	m.calls = append(m.calls, runlockCalled)
}
func (m *mockStore) HasNode(root primitives.Root) bool {
	m.calls = append(m.calls, hasNodeCalled)
	return false
}
func (m *mockStore) AncestorRoot(ctx context.Context, root primitives.Root, slot primitives.Slot) (primitives.Root, error) {
	return primitives.Root{}, nil
}
func (m *mockStore) IsCanonical(root primitives.Root) bool { return false }
func (m *mockStore) FinalizedCheckpoint() primitives.Checkpoint {
	return primitives.Checkpoint{}
}
func (m *mockStore) JustifiedCheckpoint() primitives.Checkpoint {
	return primitives.Checkpoint{}
}
func (m *mockStore) Slot(root primitives.Root) (primitives.Slot, error) { return 0, nil }

func TestROForkChoice_LocksAroundReads(t *testing.T) {
	m := &mockStore{}
	ro := NewROForkChoice(m)
	ro.HasNode(primitives.Root{})
	require.Equal(t, []mockCall{rlockCalled, hasNodeCalled, runlockCalled}, m.calls)
}

func TestStore_AncestorRootAndCanonical(t *testing.T) {
	s := NewStore()
	var root1, root2, root3 primitives.Root
	root1[0] = 1
	root2[0] = 2
	root3[0] = 3

	s.Lock()
	s.InsertNode(root1, 1, primitives.Root{}, true)
	s.InsertNode(root2, 2, root1, true)
	s.InsertNode(root3, 3, root2, false)
	s.Unlock()

	ro := NewROForkChoice(s)
	require.True(t, ro.HasNode(root2))
	require.True(t, ro.IsCanonical(root2))
	require.False(t, ro.IsCanonical(root3))

	ancestor, err := ro.AncestorRoot(context.Background(), root3, 1)
	require.NoError(t, err)
	require.Equal(t, root1, ancestor)
}

func TestStore_UnknownBlockErrors(t *testing.T) {
	s := NewStore()
	ro := NewROForkChoice(s)
	_, err := ro.Slot(primitives.Root{1})
	require.ErrorIs(t, err, ErrUnknownBlock)
}

func TestStore_Checkpoints(t *testing.T) {
	s := NewStore()
	cp := primitives.Checkpoint{Epoch: 5, Root: primitives.Root{9}}
	s.Lock()
	s.SetFinalizedCheckpoint(cp)
	s.SetJustifiedCheckpoint(cp)
	s.Unlock()

	ro := NewROForkChoice(s)
	require.Equal(t, cp, ro.FinalizedCheckpoint())
	require.Equal(t, cp, ro.JustifiedCheckpoint())
}
