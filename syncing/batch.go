package syncing

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"

	"github.com/chainforge/beacon-core/das"
	"github.com/chainforge/beacon-core/primitives"
)

// BatchStatus is Batch's state machine position (§4.10).
type BatchStatus int

const (
	AwaitingDownload BatchStatus = iota
	Downloading
	AwaitingProcessing
	Processing
	AwaitingValidation
	Dropped
	aborted
)

func (s BatchStatus) String() string {
	switch s {
	case AwaitingDownload:
		return "awaiting_download"
	case Downloading:
		return "downloading"
	case AwaitingProcessing:
		return "awaiting_processing"
	case Processing:
		return "processing"
	case AwaitingValidation:
		return "awaiting_validation"
	case Dropped:
		return "dropped"
	case aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrWrongStatus is BatchError::WRONG_STATUS (§8 property 9): any
// transition attempted from a status that doesn't permit it.
var ErrWrongStatus = errors.New("syncing: batch: illegal transition for current status")

// Batch is C10's state-machine unit: an epoch-aligned range-sync download
// of blocks plus whichever sidecar family its start slot's fork requires
// (§4.9, §4.10).
type Batch struct {
	StartEpoch primitives.Epoch
	Count      uint64
	Status     BatchStatus

	// FailedPeers accumulates peers a download attempt failed against, so a
	// retry picks a different one.
	FailedPeers []peer.ID

	DownloadedBlocks []Block

	// PendingColumns carries the still-missing column indices between
	// match_columns retries, so a subsequent peer only downloads what the
	// last one didn't supply (§4.9).
	PendingColumns []das.ColumnIndex
}

// NewBatch constructs a Batch awaiting its first download.
func NewBatch(startEpoch primitives.Epoch, count uint64) *Batch {
	return &Batch{StartEpoch: startEpoch, Count: count, Status: AwaitingDownload}
}

// StartSlot is the batch's first requested slot.
func (b *Batch) StartSlot() primitives.Slot { return b.StartEpoch.StartSlot() }

// StartDownloading: AwaitingDownload -> Downloading.
func (b *Batch) StartDownloading() error {
	if b.Status != AwaitingDownload {
		return ErrWrongStatus
	}
	b.Status = Downloading
	return nil
}

// DownloadingError: Downloading -> AwaitingDownload, recording failedPeer so
// the next attempt excludes it.
func (b *Batch) DownloadingError(failedPeer peer.ID) error {
	if b.Status != Downloading {
		return ErrWrongStatus
	}
	b.FailedPeers = append(b.FailedPeers, failedPeer)
	b.Status = AwaitingDownload
	return nil
}

// DownloadingSuccess: Downloading -> AwaitingProcessing, recording the
// downloaded blocks.
func (b *Batch) DownloadingSuccess(blocks []Block) error {
	if b.Status != Downloading {
		return ErrWrongStatus
	}
	b.DownloadedBlocks = blocks
	b.Status = AwaitingProcessing
	return nil
}

// StartProcessing: AwaitingProcessing -> Processing.
func (b *Batch) StartProcessing() error {
	if b.Status != AwaitingProcessing {
		return ErrWrongStatus
	}
	b.Status = Processing
	return nil
}

// ProcessingError aborts the batch outright (§4.10: "a batch aborts after a
// single processing error" — unlike a download failure, there is no retry).
func (b *Batch) ProcessingError() error {
	if b.Status != Processing {
		return ErrWrongStatus
	}
	b.Status = aborted
	return nil
}

// ProcessingSuccess: Processing -> AwaitingValidation.
func (b *Batch) ProcessingSuccess() error {
	if b.Status != Processing {
		return ErrWrongStatus
	}
	b.Status = AwaitingValidation
	return nil
}

// ValidationSuccess: AwaitingValidation -> Dropped, the batch's terminal,
// successful state.
func (b *Batch) ValidationSuccess() error {
	if b.Status != AwaitingValidation {
		return ErrWrongStatus
	}
	b.Status = Dropped
	return nil
}

// Aborted reports whether a processing error ended the batch.
func (b *Batch) Aborted() bool { return b.Status == aborted }

// IsHealthy reports whether fewer than maxFailedPeers download attempts of
// this batch have failed; false signals the caller should give up on the
// batch.
func (b *Batch) IsHealthy(maxFailedPeers int) bool {
	return len(b.FailedPeers) < maxFailedPeers
}
