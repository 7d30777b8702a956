package das

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chainforge/beacon-core/crypto/kzg"
	"github.com/chainforge/beacon-core/primitives"
)

// duplicateBlockCount counts SetBlock calls that found an entry already
// populated for that root/slot (§4.4 step 2: "If already stored, emit
// DuplicateBlock metric and proceed"), mirroring the teacher's
// promauto-registered cache counters.
var duplicateBlockCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "das_duplicate_block_total",
	Help: "Number of SetBlock calls for a root/slot the cache already had a block input for.",
})

// ErrNoBlockYet is returned by Get/IsAvailable when a cache entry does not
// exist, uniformly across forks (§9 Open Question: a cache miss for either
// blobs or columns resolves to the same sentinel rather than a
// fork-specific error, since the caller's retry/backoff behavior is
// identical either way).
var ErrNoBlockYet = errors.New("das: no block input cached for this root/slot yet")

// MissingIndicesError reports which commitment indices are still missing
// from a block input, so a caller can target exactly those peers/subnets
// on retry.
type MissingIndicesError struct {
	Root    primitives.Root
	Slot    primitives.Slot
	Missing []uint64
}

func (e MissingIndicesError) Error() string {
	return fmt.Sprintf("das: block %s (slot %d) missing %d indices", e.Root.Hex(), e.Slot, len(e.Missing))
}

// Store is C4: the data-availability block-input cache. One entry per
// (root, slot) accumulates a block's expected commitments and observed
// blob/column sidecars until every expected index is present, at which
// point the entry transitions to StateAvailable (§4.4).
type Store struct {
	c *cache

	// custody is the set of column indices this node must sample, used to
	// judge column-kind completeness against custody duties rather than
	// the full NumberOfColumns count (§4.5). Nil (the default, from
	// NewStore) means column-kind entries are never auto-resolved by
	// count; a PeerDAS-enabled caller instead constructs the Store with
	// NewStoreWithCustody.
	custody []uint64
}

// NewStore returns an empty Store with no custody-column awareness; column
// completeness checks are then a caller's responsibility (the blob path is
// unaffected).
func NewStore() *Store {
	return &Store{c: newCache()}
}

// NewStoreWithCustody returns a Store whose column-kind entries resolve to
// Available once every column in custody has been observed.
func NewStoreWithCustody(custody []ColumnIndex) *Store {
	want := make([]uint64, len(custody))
	for i, c := range custody {
		want[i] = uint64(c)
	}
	return &Store{c: newCache(), custody: want}
}

// SetBlock records that a block with the given commitments has arrived,
// establishing what the cache should expect for root/slot. Calling this
// again for the same key is a no-op if the entry already has commitments.
func (s *Store) SetBlock(root primitives.Root, slot primitives.Slot, kind BlockInputKind, commitments []kzg.Commitment) *BlockInput {
	k := cacheKey{root: root, slot: slot}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e := s.c.ensure(k)
	if e.input.Commitments == nil {
		e.input.Kind = kind
		e.input.Commitments = commitments
		if kind == KindBlobs {
			e.input.Blobs = make(map[uint64][]byte)
		} else {
			e.input.Columns = make(map[ColumnIndex]*DataColumnSidecar)
		}
		e.input.State = StateAwaitingData
		if len(commitments) == 0 {
			e.input.State = StateAvailable
		}
	} else {
		duplicateBlockCount.Inc()
	}
	return e.input
}

// SaveBlob records a blob sidecar at blobIndex for root/slot, reporting
// whether the entry is now fully available.
func (s *Store) SaveBlob(root primitives.Root, slot primitives.Slot, blobIndex uint64, blob []byte) (bool, error) {
	k := cacheKey{root: root, slot: slot}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e, ok := s.c.entries[k]
	if !ok {
		return false, ErrNoBlockYet
	}
	if e.input.Blobs == nil {
		return false, errors.New("das: entry is not a blob-kind block input")
	}
	e.input.Blobs[blobIndex] = blob
	if blobIndex < uint64(len(e.present)) {
		e.present[blobIndex] = true
	}
	return s.resolveLocked(e), nil
}

// SaveColumn records a data column sidecar for root/slot, reporting whether
// the entry is now fully available.
func (s *Store) SaveColumn(root primitives.Root, slot primitives.Slot, sc *DataColumnSidecar) (bool, error) {
	if err := VerifyDataColumnSidecar(sc); err != nil {
		return false, err
	}
	k := cacheKey{root: root, slot: slot}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e, ok := s.c.entries[k]
	if !ok {
		return false, ErrNoBlockYet
	}
	if e.input.Columns == nil {
		return false, errors.New("das: entry is not a column-kind block input")
	}
	e.input.Columns[sc.Index] = sc
	if uint64(sc.Index) < uint64(len(e.present)) {
		e.present[sc.Index] = true
	}
	return s.resolveLocked(e), nil
}

// resolveLocked flips e to StateAvailable once every expected index is
// present. Caller must hold s.c.mu.
func (s *Store) resolveLocked(e *cacheEntry) bool {
	if e.input.Kind == KindColumns {
		if len(s.custody) > 0 && len(e.present.missingFrom(s.custody)) == 0 {
			e.input.State = StateAvailable
		}
		return e.input.State == StateAvailable
	}
	expect := len(e.input.Commitments)
	if expect > 0 && len(e.present.missing(expect)) == 0 {
		e.input.State = StateAvailable
		return true
	}
	return e.input.State == StateAvailable
}

// Get returns the cached BlockInput for root/slot.
func (s *Store) Get(root primitives.Root, slot primitives.Slot) (*BlockInput, error) {
	k := cacheKey{root: root, slot: slot}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e, ok := s.c.entries[k]
	if !ok {
		return nil, ErrNoBlockYet
	}
	return e.input, nil
}

// IsAvailable reports whether root/slot's block input has every expected
// sidecar, returning a MissingIndicesError naming the gap otherwise.
func (s *Store) IsAvailable(root primitives.Root, slot primitives.Slot) error {
	k := cacheKey{root: root, slot: slot}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	e, ok := s.c.entries[k]
	if !ok {
		return ErrNoBlockYet
	}
	if e.input.State == StateAvailable {
		return nil
	}
	var missing []uint64
	if e.input.Kind == KindColumns {
		if len(s.custody) == 0 {
			return errors.New("das: store has no custody columns configured for column availability checks")
		}
		missing = e.present.missingFrom(s.custody)
	} else {
		missing = e.present.missing(len(e.input.Commitments))
	}
	if len(missing) == 0 {
		e.input.State = StateAvailable
		return nil
	}
	return MissingIndicesError{Root: root, Slot: slot, Missing: missing}
}

// Prune drops every entry at or before finalized's epoch start slot, then,
// if still over MaxBlockInputCacheSize, evicts the oldest remaining
// entries by slot (§4.4 pruning).
func (s *Store) Prune(finalized primitives.Checkpoint) {
	cutoff := finalized.Epoch.StartSlot()
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	for k := range s.c.entries {
		if k.slot <= cutoff {
			delete(s.c.entries, k)
		}
	}
	if len(s.c.entries) <= primitives.MaxBlockInputCacheSize {
		return
	}
	keys := make([]cacheKey, 0, len(s.c.entries))
	for k := range s.c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].slot < keys[j].slot })
	excess := len(keys) - primitives.MaxBlockInputCacheSize
	for i := 0; i < excess; i++ {
		delete(s.c.entries, keys[i])
	}
}
