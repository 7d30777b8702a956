package syncing

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/das"
)

// ErrBlobCountMismatch is raised by MatchBlobs when a block's consumed blob
// run doesn't match its expected commitment count.
var ErrBlobCountMismatch = errors.New("syncing: match_blobs: blob count does not match block's commitments")

// ErrUnconsumedBlobs is raised by MatchBlobs when blobs remain after every
// block has claimed its share.
var ErrUnconsumedBlobs = errors.New("syncing: match_blobs: blobs remain unconsumed within range")

func blobBelongsTo(b BlobSidecar, blk Block, source Source) bool {
	if source == SourceFinalizedRange {
		return b.Slot == blk.Slot
	}
	return b.BlockRoot == blk.Root
}

// MatchBlobs pairs blocks with their blob sidecars (§4.9). blocks and blobs
// must already share identical slot ordering, the precondition the range
// sync batcher guarantees by requesting both in the same range. For
// head-sync and by-root sources a blob is claimed by root; for a
// finalized-range batch, by slot (blobs from that source carry no
// reconstructable block root, only the slot they were served against).
func MatchBlobs(blocks []Block, blobs []BlobSidecar, source Source) error {
	i := 0
	for _, blk := range blocks {
		want := len(blk.BlobKZGCommitments)
		if want == 0 {
			continue
		}
		got := 0
		for i < len(blobs) && blobBelongsTo(blobs[i], blk, source) {
			i++
			got++
		}
		if got != want {
			return errors.Wrapf(ErrBlobCountMismatch, "block %s: want %d got %d", blk.Root.Hex(), want, got)
		}
	}
	if i != len(blobs) {
		return ErrUnconsumedBlobs
	}
	return nil
}

// ColumnMatchOutcome is match_columns' result (§4.9): which sampled columns
// are still missing after this attempt, whether the batch is now complete,
// and whether the serving peer should be penalized.
type ColumnMatchOutcome struct {
	// Missing is the pending_columns carry: the subset of sampled still
	// absent, so a subsequent peer only downloads these (§4.9).
	Missing []das.ColumnIndex
	// Complete reports whether every sampled column is now present.
	Complete bool
	// Penalize reports whether the peer should receive a LowToleranceError
	// for failing to supply a requested index (never set for head-sync
	// sources, which tolerate partial responses).
	Penalize bool
}

// MatchColumns checks a peer's DataColumnSidecarsByRange/ByRoot response
// against what was requested and what this node must sample, carrying
// forward prevPending from an earlier partial attempt (§4.9).
func MatchColumns(columns []ColumnSidecar, requested, sampled []das.ColumnIndex, source Source, prevPending []das.ColumnIndex) ColumnMatchOutcome {
	present := make(map[das.ColumnIndex]bool, len(columns))
	for _, c := range columns {
		present[c.Index] = true
	}

	missingRequested := false
	for _, idx := range requested {
		if !present[idx] {
			missingRequested = true
			break
		}
	}

	pending := make(map[das.ColumnIndex]bool, len(prevPending))
	for _, idx := range prevPending {
		pending[idx] = true
	}
	for _, idx := range sampled {
		if present[idx] {
			delete(pending, idx)
		} else {
			pending[idx] = true
		}
	}

	missing := make([]das.ColumnIndex, 0, len(pending))
	for idx := range pending {
		missing = append(missing, idx)
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	return ColumnMatchOutcome{
		Missing:  missing,
		Complete: len(missing) == 0,
		Penalize: missingRequested && source != SourceHeadSync,
	}
}

// ApplyMatchedColumns feeds a batch's recovered column sidecars into store,
// returning the resulting block input: StateAvailable once every sampled
// column has landed, StateAwaitingData otherwise (§4.9: "returns an
// AwaitingData block input when the batch has some but not all sampled
// columns").
func ApplyMatchedColumns(store *das.Store, blk Block, columns []ColumnSidecar) (*das.BlockInput, error) {
	input := store.SetBlock(blk.Root, blk.Slot, das.KindColumns, blk.BlobKZGCommitments)
	for _, c := range columns {
		sc := c.Column
		sc.Index = c.Index
		if _, err := store.SaveColumn(blk.Root, blk.Slot, &sc); err != nil {
			return nil, err
		}
	}
	return input, nil
}
