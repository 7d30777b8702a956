package attestations

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chainforge/beacon-core/async"
	"github.com/chainforge/beacon-core/primitives"
)

var log = logrus.WithField("prefix", "attestations")

const (
	defaultAggregateInterval = 1 * time.Second
	defaultPruneInterval     = 1 * time.Minute
)

// Config wires a Service's dependencies and tunables, mirroring the
// teacher's attestations.Config (Pool plus test-overridable intervals).
type Config struct {
	Pool *Pool

	// GenesisTime is the chain's genesis Unix timestamp, used to compute
	// the current slot for pruning (§4.3's prune(clock_slot)).
	GenesisTime uint64

	// Fork selects the retention window Prune applies: post-Deneb forks
	// retain back to the previous epoch's start, pre-Deneb forks retain a
	// fixed SLOTS_PER_EPOCH window (§4.3).
	Fork primitives.Fork

	aggregateInterval time.Duration
	pruneInterval     time.Duration
}

// Service runs the Pool's background maintenance loops: periodic
// unaggregated-to-aggregated promotion and expired-attestation pruning,
// grounded on the teacher's attestations.Service (aggregateAttestations,
// pruneAttsPool run off async.RunEvery).
type Service struct {
	cfg    *Config
	cancel context.CancelFunc
}

// NewService constructs a Service. It does not start the background loops;
// call Start for that.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg.Pool == nil {
		cfg.Pool = NewPool()
	}
	if cfg.aggregateInterval == 0 {
		cfg.aggregateInterval = defaultAggregateInterval
	}
	if cfg.pruneInterval == 0 {
		cfg.pruneInterval = defaultPruneInterval
	}
	return &Service{cfg: cfg}, nil
}

// Start launches the aggregation and pruning loops, returning a context
// cancel function the caller can invoke on shutdown.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go async.RunEvery(ctx, s.cfg.aggregateInterval, func() {
		if err := s.cfg.Pool.AggregateUnaggregatedAttestations(ctx); err != nil {
			log.WithError(err).Error("Could not aggregate unaggregated attestations")
		}
	})
	go async.RunEvery(ctx, s.cfg.pruneInterval, s.pruneExpired)
}

// Stop halts the background loops.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// pruneExpired derives the current slot from GenesisTime and delegates to
// Pool.Prune, the literal §4.3 prune(clock_slot) operation, rather than
// reaching into the pool's internals itself.
func (s *Service) pruneExpired() {
	currentSlot := primitives.SlotFromTimestamp(s.cfg.GenesisTime, uint64(time.Now().Unix()))
	s.cfg.Pool.Prune(currentSlot, s.cfg.Fork)
}
