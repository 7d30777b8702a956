// Package monitor implements C12: per-validator epoch summaries covering
// attestation timing and block inclusion (§4.11 EXPANSION, §2 component
// table). Grounded on the teacher's beacon-chain/monitor package shape
// (service.go/process_attestation.go/process_block.go, distilled here to
// _test.go files only) — a Service tracks a fixed validator-index set and
// folds each attestation/block event into that validator's latest
// performance record, logged the way the teacher's monitor logs
// "Attestation included". Dashboards and any other presentation layer over
// these summaries are out of scope (§1: "validator-performance monitoring
// dashboards"); this package only produces the summaries.
package monitor

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/chainforge/beacon-core/primitives"
)

var log = logrus.WithField("prefix", "monitor")

// ValidatorLatestPerformance is one tracked validator's most recent
// attestation-inclusion and block-proposal record, overwritten as newer
// epochs' data arrives.
type ValidatorLatestPerformance struct {
	AttestedSlot  primitives.Slot
	InclusionSlot primitives.Slot
	CorrectSource bool
	CorrectTarget bool
	CorrectHead   bool

	// BalanceChange is signed: positive for a reward, negative for a
	// penalty (late inclusion, incorrect target/head, etc.).
	BalanceChange int64
	Balance       primitives.Gwei

	BlocksProposed int
}

// Service is C12: it tracks a configured validator-index set and keeps each
// one's latest performance record, single-writer per §5 ("each... is owned
// by one task that serializes mutation").
type Service struct {
	mu      sync.RWMutex
	tracked map[primitives.ValidatorIndex]bool
	latest  map[primitives.ValidatorIndex]*ValidatorLatestPerformance
}

// NewService builds a Service tracking exactly the given validator indices.
func NewService(tracked []primitives.ValidatorIndex) *Service {
	set := make(map[primitives.ValidatorIndex]bool, len(tracked))
	for _, idx := range tracked {
		set[idx] = true
	}
	return &Service{
		tracked: set,
		latest:  make(map[primitives.ValidatorIndex]*ValidatorLatestPerformance),
	}
}

// TrackedIndex reports whether idx is one of the validators this Service
// monitors.
func (s *Service) TrackedIndex(idx primitives.ValidatorIndex) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracked[idx]
}

// AddTrackedIndex starts monitoring idx, for validators added to the node
// after Service construction (a new local key import, for instance).
func (s *Service) AddTrackedIndex(idx primitives.ValidatorIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[idx] = true
}

// Summary returns idx's latest performance record.
func (s *Service) Summary(idx primitives.ValidatorIndex) (ValidatorLatestPerformance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[idx]
	if !ok {
		return ValidatorLatestPerformance{}, false
	}
	return *p, true
}

// perfLocked returns idx's mutable performance record, creating one if this
// is its first tracked event. Caller must hold s.mu.
func (s *Service) perfLocked(idx primitives.ValidatorIndex) *ValidatorLatestPerformance {
	p, ok := s.latest[idx]
	if !ok {
		p = &ValidatorLatestPerformance{}
		s.latest[idx] = p
	}
	return p
}

// EndEpoch returns every tracked validator's performance record as of
// epoch's close and resets the per-epoch BlocksProposed counter, the way
// the teacher's monitor logs an epoch summary before starting the next
// one's bookkeeping.
func (s *Service) EndEpoch(epoch primitives.Epoch) map[primitives.ValidatorIndex]ValidatorLatestPerformance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitives.ValidatorIndex]ValidatorLatestPerformance, len(s.latest))
	for idx, p := range s.latest {
		out[idx] = *p
		p.BlocksProposed = 0
	}
	log.WithField("epoch", epoch).WithField("tracked", len(out)).Debug("epoch summary flushed")
	return out
}
