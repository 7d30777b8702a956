package syncing

import (
	"context"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/primitives"
)

// fakeForkChoice is a minimal forkchoice.Getter for resolver tests: nodes
// are whatever roots were explicitly added.
type fakeForkChoice struct {
	nodes     map[primitives.Root]bool
	finalized primitives.Checkpoint
}

func newFakeForkChoice() *fakeForkChoice {
	return &fakeForkChoice{nodes: map[primitives.Root]bool{}}
}

func (f *fakeForkChoice) HasNode(root primitives.Root) bool { return f.nodes[root] }
func (f *fakeForkChoice) AncestorRoot(ctx context.Context, root primitives.Root, slot primitives.Slot) (primitives.Root, error) {
	return primitives.Root{}, nil
}
func (f *fakeForkChoice) IsCanonical(root primitives.Root) bool              { return f.nodes[root] }
func (f *fakeForkChoice) FinalizedCheckpoint() primitives.Checkpoint         { return f.finalized }
func (f *fakeForkChoice) JustifiedCheckpoint() primitives.Checkpoint         { return primitives.Checkpoint{} }
func (f *fakeForkChoice) Slot(root primitives.Root) (primitives.Slot, error) { return 0, nil }

func bestPeerAny(root primitives.Root, candidates []peer.ID, exclude map[peer.ID]bool) (peer.ID, bool) {
	for _, c := range candidates {
		if !exclude[c] {
			return c, true
		}
	}
	return "", false
}

func TestResolver_EnqueueKnownRootIsNoop(t *testing.T) {
	fc := newFakeForkChoice()
	root := primitives.Root{1}
	fc.nodes[root] = true
	r := NewResolver(10, fc, newTestScoreStore(t), ResolverTransport{BestPeerForRoot: bestPeerAny}, func(Block) {})
	require.NoError(t, r.EnqueueUnknownRoot(root, "peer1"))
	require.Equal(t, 0, r.Pending())
}

func TestResolver_EnqueueDedupsCandidatesAndCapsAtMaxPending(t *testing.T) {
	fc := newFakeForkChoice()
	r := NewResolver(1, fc, newTestScoreStore(t), ResolverTransport{BestPeerForRoot: bestPeerAny}, func(Block) {})

	require.NoError(t, r.EnqueueUnknownRoot(primitives.Root{1}, "peer1"))
	require.NoError(t, r.EnqueueUnknownRoot(primitives.Root{1}, "peer1")) // dedup, same root+peer
	require.NoError(t, r.EnqueueUnknownRoot(primitives.Root{1}, "peer2")) // new candidate, same root: fine
	require.Equal(t, 1, r.Pending())

	require.ErrorIs(t, r.EnqueueUnknownRoot(primitives.Root{2}, "peer1"), ErrPendingFull)
}

func TestResolver_Step_ResolvesBlockWithKnownParent(t *testing.T) {
	fc := newFakeForkChoice()
	parent := primitives.Root{9}
	fc.nodes[parent] = true
	root := primitives.Root{1}

	var resolved []Block
	transport := ResolverTransport{
		BestPeerForRoot: bestPeerAny,
		FetchBlockByRoot: func(ctx context.Context, pid peer.ID, root primitives.Root) (Block, error) {
			return Block{Root: root, Slot: 100, ParentRoot: parent}, nil
		},
	}
	r := NewResolver(10, fc, newTestScoreStore(t), transport, func(b Block) { resolved = append(resolved, b) })
	require.NoError(t, r.EnqueueUnknownRoot(root, "peer1"))

	progressed, err := r.Step(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)
	require.Len(t, resolved, 1)
	require.Equal(t, root, resolved[0].Root)
	require.Equal(t, 0, r.Pending())
}

func TestResolver_Step_RecursesOnUnknownParent(t *testing.T) {
	fc := newFakeForkChoice()
	root := primitives.Root{1}
	parent := primitives.Root{2}
	grandparent := primitives.Root{3}
	fc.nodes[grandparent] = true

	calls := map[primitives.Root]Block{
		root:   {Root: root, Slot: 10, ParentRoot: parent},
		parent: {Root: parent, Slot: 5, ParentRoot: grandparent},
	}
	var resolved []primitives.Root
	transport := ResolverTransport{
		BestPeerForRoot: bestPeerAny,
		FetchBlockByRoot: func(ctx context.Context, pid peer.ID, r primitives.Root) (Block, error) {
			return calls[r], nil
		},
	}
	r := NewResolver(10, fc, newTestScoreStore(t), transport, func(b Block) {
		resolved = append(resolved, b.Root)
		fc.nodes[b.Root] = true // the chain processor links it into fork-choice on resolution
	})
	require.NoError(t, r.EnqueueUnknownRoot(root, "peer1"))

	progressed, err := r.Step(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)
	// The block itself is now parked waiting on its parent; the parent was
	// enqueued for the next step.
	require.Equal(t, 1, r.Pending())
	require.Empty(t, resolved)

	progressed, err = r.Step(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)
	require.ElementsMatch(t, []primitives.Root{parent, root}, resolved)
	require.Equal(t, 0, r.Pending())
}

func TestResolver_Step_DiscardsRootMismatchSilently(t *testing.T) {
	fc := newFakeForkChoice()
	root := primitives.Root{1}
	transport := ResolverTransport{
		BestPeerForRoot: bestPeerAny,
		FetchBlockByRoot: func(ctx context.Context, pid peer.ID, r primitives.Root) (Block, error) {
			return Block{Root: primitives.Root{99}}, nil
		},
	}
	var resolved []Block
	r := NewResolver(10, fc, newTestScoreStore(t), transport, func(b Block) { resolved = append(resolved, b) })
	require.NoError(t, r.EnqueueUnknownRoot(root, "peer1"))

	progressed, err := r.Step(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)
	require.Empty(t, resolved)
}

func TestResolver_Step_PenalizesBlockAtOrBeforeFinalizedSlot(t *testing.T) {
	fc := newFakeForkChoice()
	fc.finalized = primitives.Checkpoint{Epoch: 5}
	root := primitives.Root{1}
	transport := ResolverTransport{
		BestPeerForRoot: bestPeerAny,
		FetchBlockByRoot: func(ctx context.Context, pid peer.ID, r primitives.Root) (Block, error) {
			return Block{Root: root, Slot: fc.finalized.Epoch.StartSlot()}, nil
		},
	}
	scores := newTestScoreStore(t)
	r := NewResolver(10, fc, scores, transport, func(b Block) {})
	require.NoError(t, r.EnqueueUnknownRoot(root, "peer1"))

	progressed, err := r.Step(context.Background())
	require.NoError(t, err)
	require.True(t, progressed)
	require.Equal(t, 0, r.Pending())
	require.Equal(t, 6, scores.Scorers().BadResponsesScorer().Count("peer1"))
}

func TestResolver_Step_NoWorkReturnsFalse(t *testing.T) {
	fc := newFakeForkChoice()
	r := NewResolver(10, fc, newTestScoreStore(t), ResolverTransport{BestPeerForRoot: bestPeerAny}, func(Block) {})
	progressed, err := r.Step(context.Background())
	require.NoError(t, err)
	require.False(t, progressed)
}
