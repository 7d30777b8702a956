package forkchoice

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/primitives"
)

// ErrUnknownBlock is returned when a root has not been imported into the
// store.
var ErrUnknownBlock = errors.New("forkchoice: unknown block root")

type node struct {
	slot      primitives.Slot
	parent    primitives.Root
	canonical bool
}

// Store is a minimal in-memory GetterLocker, sufficient to exercise
// attestations' shuffling validation and das' finalized-checkpoint pruning in
// tests without pulling in the real weighted fork choice tree
// (protoarray/doubly-linked-tree in the teacher repo, out of scope per §1).
type Store struct {
	mu sync.RWMutex

	nodes     map[primitives.Root]node
	finalized primitives.Checkpoint
	justified primitives.Checkpoint
}

// NewStore returns an empty Store rooted at no block.
func NewStore() *Store {
	return &Store{nodes: make(map[primitives.Root]node)}
}

func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }

// InsertNode records a block root's slot, parent, and canonical status. The
// caller must hold the write lock.
func (s *Store) InsertNode(root primitives.Root, slot primitives.Slot, parent primitives.Root, canonical bool) {
	s.nodes[root] = node{slot: slot, parent: parent, canonical: canonical}
}

// SetFinalizedCheckpoint updates the store's finalized checkpoint. The
// caller must hold the write lock.
func (s *Store) SetFinalizedCheckpoint(cp primitives.Checkpoint) { s.finalized = cp }

// SetJustifiedCheckpoint updates the store's justified checkpoint. The
// caller must hold the write lock.
func (s *Store) SetJustifiedCheckpoint(cp primitives.Checkpoint) { s.justified = cp }

func (s *Store) HasNode(root primitives.Root) bool {
	_, ok := s.nodes[root]
	return ok
}

func (s *Store) IsCanonical(root primitives.Root) bool {
	n, ok := s.nodes[root]
	return ok && n.canonical
}

func (s *Store) FinalizedCheckpoint() primitives.Checkpoint { return s.finalized }
func (s *Store) JustifiedCheckpoint() primitives.Checkpoint { return s.justified }

func (s *Store) Slot(root primitives.Root) (primitives.Slot, error) {
	n, ok := s.nodes[root]
	if !ok {
		return 0, ErrUnknownBlock
	}
	return n.slot, nil
}

// AncestorRoot walks root's parent chain back to the first node at or before
// slot.
func (s *Store) AncestorRoot(ctx context.Context, root primitives.Root, slot primitives.Slot) (primitives.Root, error) {
	cur, ok := s.nodes[root]
	if !ok {
		return primitives.Root{}, ErrUnknownBlock
	}
	curRoot := root
	for cur.slot > slot {
		if err := ctx.Err(); err != nil {
			return primitives.Root{}, err
		}
		parent, ok := s.nodes[cur.parent]
		if !ok {
			return curRoot, nil
		}
		curRoot = cur.parent
		cur = parent
	}
	return curRoot, nil
}
