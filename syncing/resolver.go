package syncing

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/forkchoice"
	"github.com/chainforge/beacon-core/p2p/peers"
	"github.com/chainforge/beacon-core/primitives"
)

// ErrPendingFull is returned when EnqueueUnknownRoot/EnqueueUnknownParent
// would exceed maxPendingBlocks (§4.11: "a bounded pending map").
var ErrPendingFull = errors.New("syncing: resolver: pending map at capacity")

// ResolverTransport is C11's opaque wire collaborator for BeaconBlocksByRoot
// and its matching blob/column by-root requests.
type ResolverTransport struct {
	FetchBlockByRoot   func(ctx context.Context, pid peer.ID, root primitives.Root) (Block, error)
	FetchBlobsByRoot   func(ctx context.Context, pid peer.ID, root primitives.Root, indices []uint64) ([]BlobSidecar, error)
	FetchColumnsByRoot func(ctx context.Context, pid peer.ID, root primitives.Root, indices []primitives.Slot) ([]ColumnSidecar, error)
	// BestPeerForRoot picks the best candidate excluding any already
	// in-flight for root, by custody-column coverage post-Fulu (§4.11).
	BestPeerForRoot func(root primitives.Root, candidates []peer.ID, exclude map[peer.ID]bool) (peer.ID, bool)
}

// pendingEntry tracks one unresolved root's candidate peers and which of
// them currently have an in-flight request.
type pendingEntry struct {
	candidates []peer.ID
	inFlight   map[peer.ID]bool
}

// Resolver is C11: it walks unknown parents/roots through peers, one
// BeaconBlocksByRoot request at a time, recursing on unknown parents until
// a known ancestor is reached (§4.11).
type Resolver struct {
	mu              sync.Mutex
	pending         map[primitives.Root]*pendingEntry
	waitingOnParent map[primitives.Root][]Block
	maxPending      int

	fc         forkchoice.Getter
	scores     *peers.PeerScoreStore
	transport  ResolverTransport
	onResolved func(Block)
}

// NewResolver builds a Resolver. onResolved is called once per block whose
// parent is already known to fork-choice (or which has a zero parent root);
// the caller is responsible for the actual fork-choice insertion, which is
// a mutation path outside this package's scope (§5: "mutated only by the
// chain processor").
func NewResolver(maxPending int, fc forkchoice.Getter, scores *peers.PeerScoreStore, transport ResolverTransport, onResolved func(Block)) *Resolver {
	if maxPending <= 0 {
		maxPending = 1024
	}
	return &Resolver{
		pending:         make(map[primitives.Root]*pendingEntry),
		waitingOnParent: make(map[primitives.Root][]Block),
		maxPending:      maxPending,
		fc:              fc,
		scores:          scores,
		transport:       transport,
		onResolved:      onResolved,
	}
}

// EnqueueUnknownRoot handles unknown_block_root(root, peer) (§4.11).
func (r *Resolver) EnqueueUnknownRoot(root primitives.Root, pid peer.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqueueLocked(root, pid)
}

// EnqueueUnknownParent handles unknown_parent(block_input, peer) (§4.11):
// the unknown root to resolve is the block's own parent.
func (r *Resolver) EnqueueUnknownParent(blk Block, pid peer.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enqueueLocked(blk.ParentRoot, pid)
}

func (r *Resolver) enqueueLocked(root primitives.Root, pid peer.ID) error {
	if r.fc.HasNode(root) {
		return nil
	}
	entry, ok := r.pending[root]
	if !ok {
		if len(r.pending) >= r.maxPending {
			return ErrPendingFull
		}
		entry = &pendingEntry{inFlight: make(map[peer.ID]bool)}
		r.pending[root] = entry
	}
	for _, c := range entry.candidates {
		if c == pid {
			return nil
		}
	}
	entry.candidates = append(entry.candidates, pid)
	return nil
}

// Pending reports how many roots are currently awaiting resolution.
func (r *Resolver) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Step performs one resolution attempt: picks a pending root with an idle
// candidate, issues BeaconBlocksByRoot against it, and applies the result.
// It reports false when there was no eligible work to do.
func (r *Resolver) Step(ctx context.Context) (bool, error) {
	root, pid, ok := r.claimWork()
	if !ok {
		return false, nil
	}

	blk, err := r.transport.FetchBlockByRoot(ctx, pid, root)
	r.mu.Lock()
	entry := r.pending[root]
	if entry != nil {
		delete(entry.inFlight, pid)
	}
	r.mu.Unlock()
	if err != nil {
		return true, nil
	}

	if blk.Root != root {
		// §4.11: "a returned block whose root differs from the requested
		// root is discarded silently (do not process)".
		return true, nil
	}

	finalizedSlot := r.fc.FinalizedCheckpoint().Epoch.StartSlot()
	if blk.Slot <= finalizedSlot {
		r.scores.ApplyAction(pid, peers.LowToleranceError)
		r.mu.Lock()
		delete(r.pending, root)
		r.mu.Unlock()
		return true, nil
	}

	r.mu.Lock()
	delete(r.pending, root)
	r.mu.Unlock()
	r.link(blk, pid)
	return true, nil
}

// claimWork finds one pending root with a candidate not already in flight,
// marks it in flight, and returns it.
func (r *Resolver) claimWork() (primitives.Root, peer.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for root, entry := range r.pending {
		pid, ok := r.transport.BestPeerForRoot(root, entry.candidates, entry.inFlight)
		if !ok {
			continue
		}
		entry.inFlight[pid] = true
		return root, pid, true
	}
	return primitives.Root{}, "", false
}

// link resolves blk: if its parent is already known (or absent), it is
// handed to onResolved and any blocks waiting on blk as their own parent
// are cascaded through the same check; otherwise blk is parked and its
// parent root is enqueued against the same candidate peer (§4.11 recursion).
func (r *Resolver) link(blk Block, pid peer.ID) {
	if blk.ParentRoot.IsZero() || r.fc.HasNode(blk.ParentRoot) {
		r.onResolved(blk)
		r.mu.Lock()
		waiters := r.waitingOnParent[blk.Root]
		delete(r.waitingOnParent, blk.Root)
		r.mu.Unlock()
		for _, w := range waiters {
			r.link(w, pid)
		}
		return
	}
	r.mu.Lock()
	r.waitingOnParent[blk.ParentRoot] = append(r.waitingOnParent[blk.ParentRoot], blk)
	r.mu.Unlock()
	_ = r.EnqueueUnknownParent(blk, pid)
}
