package das

import (
	"sync"

	"github.com/chainforge/beacon-core/primitives"
)

// cacheKey identifies a block input cache entry: a block is keyed by its
// root and slot together (not root alone), mirroring the teacher's
// das.cacheKey, so a reorg that replaces a block at the same slot under a
// different root never collides with the entry it is replacing.
type cacheKey struct {
	root primitives.Root
	slot primitives.Slot
}

// dbidx tracks, per blob or column index, whether that index's sidecar has
// been observed. It is sized to NumberOfColumns; index positions a given
// block does not expect are simply never set (§4.4).
type dbidx [primitives.NumberOfColumns]bool

// missing returns the sorted list of indices in [0, expect) not yet marked
// present.
func (d dbidx) missing(expect int) []uint64 {
	out := make([]uint64, 0, expect)
	for i := 0; i < expect && i < len(d); i++ {
		if !d[i] {
			out = append(out, uint64(i))
		}
	}
	return out
}

// missingFrom returns the subset of want not yet marked present, in the
// order want is given. Unlike missing, want need not be a contiguous
// [0, expect) range, which lets a caller check completeness against an
// arbitrary custody column set rather than a full index count.
func (d dbidx) missingFrom(want []uint64) []uint64 {
	out := make([]uint64, 0, len(want))
	for _, i := range want {
		if i >= uint64(len(d)) || !d[i] {
			out = append(out, i)
		}
	}
	return out
}

// cacheEntry holds one block's accumulating BlockInput plus the presence
// bitmap used to decide when it transitions to Available.
type cacheEntry struct {
	input   *BlockInput
	present dbidx
}

// cache is the DAS cache's underlying keyed store (C4). Store, in
// availability.go, wraps this with the locking and pruning policy; cache itself just
// holds entries, mirroring the teacher's unexported das.cache.
type cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[cacheKey]*cacheEntry)}
}

// ensure returns the entry for k, creating an empty one if absent. Caller
// must hold c.mu (or go through Store's exported, self-locking API).
func (c *cache) ensure(k cacheKey) *cacheEntry {
	e, ok := c.entries[k]
	if !ok {
		e = &cacheEntry{input: &BlockInput{Root: k.root, Slot: k.slot}}
		c.entries[k] = e
	}
	return e
}

// delete removes k's entry, if any.
func (c *cache) delete(k cacheKey) {
	delete(c.entries, k)
}
