package syncing

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/chainforge/beacon-core/das"
	"github.com/chainforge/beacon-core/p2p/peers"
	"github.com/chainforge/beacon-core/p2p/types"
	"github.com/chainforge/beacon-core/primitives"
)

var log = logrus.WithField("prefix", "syncing")

// DataFlag records which sidecar family, if any, accompanies a batch's
// block request (§4.9).
type DataFlag int

const (
	DataBlocksOnly DataFlag = iota
	DataBlobs
	DataColumns
	DataOutOfRange
)

// RequestSet is the compatible block+data request pair for one batch,
// derived from the fork at its start slot (§4.9, §4.10: "both requests must
// carry identical start_slot and count").
type RequestSet struct {
	Blocks   types.BeaconBlocksByRangeRequest
	Blobs    *types.BlobSidecarsByRangeRequest
	Columns  *types.DataColumnSidecarsByRangeRequest
	DataFlag DataFlag
}

func withinRetentionWindow(startEpoch, currentEpoch primitives.Epoch, windowEpochs uint64) bool {
	if currentEpoch < startEpoch {
		return true
	}
	return uint64(currentEpoch-startEpoch) <= windowEpochs
}

func intersectColumns(want, have []das.ColumnIndex) []das.ColumnIndex {
	haveSet := make(map[das.ColumnIndex]bool, len(have))
	for _, c := range have {
		haveSet[c] = true
	}
	out := make([]das.ColumnIndex, 0, len(want))
	for _, c := range want {
		if haveSet[c] {
			out = append(out, c)
		}
	}
	return out
}

// RequestsForBatch picks the request family a batch should issue (§4.9):
// blocks only pre-Deneb, blocks+blobs within the blob retention window,
// blocks+columns (peer-custody ∩ batch.PendingColumns) within the column
// retention window post-Fulu, and blocks-only with DataOutOfRange once a
// batch falls outside every retention window.
func RequestsForBatch(b *Batch, startFork primitives.Fork, currentEpoch primitives.Epoch, peerCustody []das.ColumnIndex) RequestSet {
	base := types.BeaconBlocksByRangeRequest{
		StartSlot: b.StartSlot(),
		Count:     types.ClampCount(b.Count),
		Step:      1,
	}
	rs := RequestSet{Blocks: base}

	switch {
	case startFork.AtLeast(primitives.Fulu):
		if !withinRetentionWindow(b.StartEpoch, currentEpoch, primitives.MinEpochsForDataColumnSidecarsRequests) {
			rs.DataFlag = DataOutOfRange
			return rs
		}
		want := b.PendingColumns
		if len(want) == 0 {
			want = peerCustody
		}
		cols := intersectColumns(want, peerCustody)
		if len(cols) == 0 {
			rs.DataFlag = DataBlocksOnly
			return rs
		}
		rs.Columns = &types.DataColumnSidecarsByRangeRequest{StartSlot: base.StartSlot, Count: base.Count, Columns: cols}
		rs.DataFlag = DataColumns
	case startFork.AtLeast(primitives.Deneb):
		if !withinRetentionWindow(b.StartEpoch, currentEpoch, primitives.MinEpochsForBlobSidecarsRequests) {
			rs.DataFlag = DataOutOfRange
			return rs
		}
		rs.Blobs = &types.BlobSidecarsByRangeRequest{StartSlot: base.StartSlot, Count: base.Count}
		rs.DataFlag = DataBlobs
	default:
		rs.DataFlag = DataBlocksOnly
	}
	return rs
}

// Transport is C10's opaque wire collaborator: the actual ReqResp send/
// receive, which this package treats the same way peers.Transport treats
// PING/STATUS/GOODBYE — an injectable struct of functions rather than a
// concrete libp2p stream handler, which is out of scope (§1).
type Transport struct {
	FetchBlocks  func(ctx context.Context, pid peer.ID, req types.BeaconBlocksByRangeRequest) ([]Block, error)
	FetchBlobs   func(ctx context.Context, pid peer.ID, req types.BlobSidecarsByRangeRequest) ([]BlobSidecar, error)
	FetchColumns func(ctx context.Context, pid peer.ID, req types.DataColumnSidecarsByRangeRequest) ([]ColumnSidecar, error)
}

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	Transport              Transport
	Scores                 *peers.PeerScoreStore
	Store                  *das.Store
	MaxConcurrentBatches   int
	MaxFailedPeersPerBatch int
	CurrentEpoch           func() primitives.Epoch
	PeerCustody            func(pid peer.ID) []das.ColumnIndex
}

func (c *BatcherConfig) withDefaults() *BatcherConfig {
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 4
	}
	if c.MaxFailedPeersPerBatch <= 0 {
		c.MaxFailedPeersPerBatch = 5
	}
	return c
}

// Batcher is C10: it drives a set of Batch state machines to
// AwaitingProcessing, bounding concurrent peer RPC fan-out with
// golang.org/x/sync/errgroup+semaphore rather than one goroutine per batch
// (§5: "a thread pool... used for... results flow back via bounded
// channels").
type Batcher struct {
	cfg *BatcherConfig
}

// NewBatcher builds a Batcher over cfg.
func NewBatcher(cfg BatcherConfig) *Batcher {
	c := cfg
	return &Batcher{cfg: (&c).withDefaults()}
}

// PeerForBatch selects which peer a batch's next download attempt targets,
// given its accumulated FailedPeers. Callers (the sync manager) own peer
// selection policy; this is the seam they implement.
type PeerForBatch func(b *Batch) (peer.ID, bool)

// DownloadBatches drives every batch in batches from AwaitingDownload to
// AwaitingProcessing (or leaves it AwaitingDownload for the caller to retry
// with a different peer), running up to cfg.MaxConcurrentBatches downloads
// concurrently.
func (r *Batcher) DownloadBatches(ctx context.Context, batches []*Batch, startFork primitives.Fork, pick PeerForBatch) error {
	sem := semaphore.NewWeighted(int64(r.cfg.MaxConcurrentBatches))
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		b := b
		if b.Status != AwaitingDownload {
			continue
		}
		pid, ok := pick(b)
		if !ok {
			continue
		}
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			return r.downloadOne(gctx, b, pid, startFork)
		})
	}
	return g.Wait()
}

// downloadOne runs a single batch's download attempt against pid, applying
// match_blobs/match_columns and peer-score penalties per §4.9. A download
// or match failure leaves the batch AwaitingDownload (with pid recorded in
// FailedPeers) for the next call to retry against a different peer; it
// never returns an error for ordinary peer failure, only for a
// already-invalid state transition.
func (r *Batcher) downloadOne(ctx context.Context, b *Batch, pid peer.ID, startFork primitives.Fork) error {
	if err := b.StartDownloading(); err != nil {
		return err
	}
	reqs := RequestsForBatch(b, startFork, r.cfg.CurrentEpoch(), r.cfg.PeerCustody(pid))

	blocks, err := r.cfg.Transport.FetchBlocks(ctx, pid, reqs.Blocks)
	if err != nil {
		log.WithField("peer", pid).WithError(err).Debug("block range request failed")
		return b.DownloadingError(pid)
	}

	switch reqs.DataFlag {
	case DataBlobs:
		blobs, err := r.cfg.Transport.FetchBlobs(ctx, pid, *reqs.Blobs)
		if err != nil {
			return b.DownloadingError(pid)
		}
		if err := MatchBlobs(blocks, blobs, SourceFinalizedRange); err != nil {
			r.cfg.Scores.ApplyAction(pid, peers.LowToleranceError)
			return b.DownloadingError(pid)
		}
	case DataColumns:
		columns, err := r.cfg.Transport.FetchColumns(ctx, pid, *reqs.Columns)
		if err != nil {
			return b.DownloadingError(pid)
		}
		outcome := MatchColumns(columns, reqs.Columns.Columns, reqs.Columns.Columns, SourceFinalizedRange, b.PendingColumns)
		if outcome.Penalize {
			r.cfg.Scores.ApplyAction(pid, peers.LowToleranceError)
		}
		b.PendingColumns = outcome.Missing
		if !outcome.Complete {
			return b.DownloadingError(pid)
		}
		if r.cfg.Store != nil {
			if err := r.applyColumns(blocks, columns); err != nil {
				return b.DownloadingError(pid)
			}
		}
	case DataOutOfRange:
		// blocks-only, no sidecar family to match; nothing further to do.
	}

	return b.DownloadingSuccess(blocks)
}

// applyColumns feeds each block's matched column sidecars into the DAS
// cache, grouping the batch's flat column list by the block root it
// belongs to.
func (r *Batcher) applyColumns(blocks []Block, columns []ColumnSidecar) error {
	byRoot := make(map[primitives.Root][]ColumnSidecar, len(blocks))
	for _, c := range columns {
		byRoot[c.BlockRoot] = append(byRoot[c.BlockRoot], c)
	}
	for _, blk := range blocks {
		if len(blk.BlobKZGCommitments) == 0 {
			continue
		}
		if _, err := ApplyMatchedColumns(r.cfg.Store, blk, byRoot[blk.Root]); err != nil {
			return err
		}
	}
	return nil
}
