// Package peers implements C7 (PeerScoreStore), C8 (PeerManager), and C9
// (PeerPrioritizer). Grounded on the teacher's beacon-chain/p2p/peers
// package (status_test.go, peers_test.go): single-writer peer map, a
// composed scoring service, and periodic logrus-logged maintenance loops
// driven by async.RunEvery.
package peers

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/chainforge/beacon-core/async"
	"github.com/chainforge/beacon-core/p2p/peerdata"
	"github.com/chainforge/beacon-core/primitives"
)

var log = logrus.WithField("prefix", "peers")

// ErrPeerUnknown is returned by accessors for a peer ID the store has never
// seen.
var ErrPeerUnknown = errors.New("peers: unknown peer")

// Transport is PeerManager's opaque external collaborator (§1): the actual
// wire I/O a production binary performs over libp2p. PeerManager only
// decides what to send and to whom.
type Transport struct {
	SendPing         func(ctx context.Context, pid peer.ID) error
	SendStatus       func(ctx context.Context, pid peer.ID) error
	SendMetadataReq  func(ctx context.Context, pid peer.ID) error
	SendGoodbye      func(ctx context.Context, pid peer.ID, reason GoodbyeReason) error
	Disconnect       func(pid peer.ID) error
	PingInterval     func(direction network.Direction) time.Duration
	StatusIntervalMS int64
}

// RelevanceChecker decides whether a peer's reported chain state makes it
// worth keeping connected (§4.7: fork-digest alignment, finalized-checkpoint
// ancestry). Supplied by the caller since finalized-checkpoint ancestry
// ultimately depends on the read-only fork-choice store (§1, out of scope
// for this package to own).
type RelevanceChecker func(local, remote peerdata.ChainState) (relevant bool, err error)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store       *peerdata.Store
	Scores      *PeerScoreStore
	Transport   Transport
	Relevance   RelevanceChecker
	LocalChain  func() peerdata.ChainState
	TargetPeers int
	MaxPeers    int

	// Demand and GenesisTimeUnixSec feed PeerPrioritizer (§4.8), invoked at
	// the end of every heartbeat that is not in starvation mode.
	Demand             func() PrioritizerDemand
	MaxPeersToDiscover int
	GenesisTimeUnixSec uint64
	CurrentSlot        func() primitives.Slot

	CheckTimeoutsInterval time.Duration
	HeartbeatInterval     time.Duration
}

func (c *ManagerConfig) withDefaults() *ManagerConfig {
	if c.CheckTimeoutsInterval == 0 {
		c.CheckTimeoutsInterval = 10 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Transport.PingInterval == nil {
		c.Transport.PingInterval = func(network.Direction) time.Duration { return 15 * time.Second }
	}
	if c.Transport.StatusIntervalMS == 0 {
		c.Transport.StatusIntervalMS = 5 * 60 * 1000
	}
	return c
}

// Manager is C8: the per-peer PING/STATUS/GOODBYE state machine, plus the
// periodic heartbeat/timeout/starvation maintenance loops.
type Manager struct {
	cfg *ManagerConfig

	mu             sync.Mutex
	headSlot       primitives.Slot
	headAdvancedAt time.Time
	starved        bool

	onPeerConnected func(pid peer.ID)
	cancel          context.CancelFunc
}

// NewManager builds a Manager. cfg.Store/cfg.Scores must be non-nil.
func NewManager(cfg *ManagerConfig) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{cfg: cfg, headAdvancedAt: time.Now()}
}

// OnPeerConnected installs the callback invoked once a peer clears
// relevance checks.
func (m *Manager) OnPeerConnected(fn func(pid peer.ID)) { m.onPeerConnected = fn }

// ConnectionOpen handles a new libp2p connection: it creates the peer's
// record and, for outbound connections, immediately requests PING and
// STATUS (§4.7).
func (m *Manager) ConnectionOpen(ctx context.Context, pid peer.ID, direction network.Direction) error {
	d := m.cfg.Store.PeerDataGetOrCreate(pid)
	d.Direction = direction
	d.ConnState = peerdata.PeerConnecting
	d.LastReceivedMsg = time.Now()

	if direction == network.DirOutbound {
		if m.cfg.Transport.SendPing != nil {
			if err := m.cfg.Transport.SendPing(ctx, pid); err != nil {
				return errors.Wrap(err, "peers: ping on connect")
			}
		}
		if m.cfg.Transport.SendStatus != nil {
			if err := m.cfg.Transport.SendStatus(ctx, pid); err != nil {
				return errors.Wrap(err, "peers: status on connect")
			}
		}
	}
	return nil
}

// OnStatus handles an inbound STATUS: it validates relevance, and on
// success tags the peer relevant and emits peerConnected; on failure it
// sends GOODBYE(IrrelevantNetwork) and disconnects (§4.7).
func (m *Manager) OnStatus(ctx context.Context, pid peer.ID, remote peerdata.ChainState) error {
	d, ok := m.cfg.Store.PeerData(pid)
	if !ok {
		return ErrPeerUnknown
	}
	d.ChainState = &remote
	d.LastStatus = time.Now()
	d.LastReceivedMsg = d.LastStatus

	relevant := true
	if m.cfg.Relevance != nil {
		var local peerdata.ChainState
		if m.cfg.LocalChain != nil {
			local = m.cfg.LocalChain()
		}
		var err error
		relevant, err = m.cfg.Relevance(local, remote)
		if err != nil {
			return err
		}
	}

	if !relevant {
		if m.cfg.Transport.SendGoodbye != nil {
			_ = m.cfg.Transport.SendGoodbye(ctx, pid, IrrelevantNetwork)
		}
		d.Relevant = false
		d.ConnState = peerdata.PeerDisconnecting
		if m.cfg.Transport.Disconnect != nil {
			return m.cfg.Transport.Disconnect(pid)
		}
		return nil
	}

	d.Relevant = true
	d.ConnState = peerdata.PeerConnected
	if m.onPeerConnected != nil {
		m.onPeerConnected(pid)
	}
	return nil
}

// OnGoodbye records a peer-initiated disconnection reason.
func (m *Manager) OnGoodbye(pid peer.ID, reason GoodbyeReason) {
	m.cfg.Scores.ApplyReconnectionCooldown(pid, reason)
	if d, ok := m.cfg.Store.PeerData(pid); ok {
		d.ConnState = peerdata.PeerDisconnected
	}
}

// OnPing handles an inbound PING: if seq disagrees with the cached
// metadata sequence number, METADATA is requested (§4.7).
func (m *Manager) OnPing(ctx context.Context, pid peer.ID, seq uint64) error {
	d, ok := m.cfg.Store.PeerData(pid)
	if !ok {
		return ErrPeerUnknown
	}
	d.LastReceivedMsg = time.Now()
	if d.MetaData == nil || d.MetaData.SeqNumber != seq {
		if m.cfg.Transport.SendMetadataReq != nil {
			return m.cfg.Transport.SendMetadataReq(ctx, pid)
		}
	}
	return nil
}

// SetHeadSlot records the chain processor's current head slot, used to
// drive starvation detection.
func (m *Manager) SetHeadSlot(slot primitives.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot > m.headSlot {
		m.headSlot = slot
		m.headAdvancedAt = time.Now()
		m.starved = false
	}
}

// Starved reports whether the fleet is in starvation mode (§4.7: head
// hasn't advanced for StarvationThresholdSlots worth of wall-clock time).
func (m *Manager) Starved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starved
}

// checkTimeouts re-requests PING/STATUS for peers that have gone quiet.
func (m *Manager) checkTimeouts(ctx context.Context) {
	now := time.Now()
	for pid, d := range m.cfg.Store.Peers() {
		interval := m.cfg.Transport.PingInterval(d.Direction)
		if now.Sub(d.LastReceivedMsg) > interval && m.cfg.Transport.SendPing != nil {
			if err := m.cfg.Transport.SendPing(ctx, pid); err != nil {
				log.WithError(err).WithField("peer", pid).Debug("ping on timeout failed")
			}
		}
		if now.Sub(d.LastStatus) > time.Duration(m.cfg.Transport.StatusIntervalMS)*time.Millisecond && m.cfg.Transport.SendStatus != nil {
			if err := m.cfg.Transport.SendStatus(ctx, pid); err != nil {
				log.WithError(err).WithField("peer", pid).Debug("status on timeout failed")
			}
		}
	}
}

// heartbeat runs score decay/bans and starvation detection; in starvation
// mode it prunes a fraction of peers, otherwise it invokes PeerPrioritizer
// for the resulting disconnect/connect decisions (§4.7).
func (m *Manager) heartbeat(ctx context.Context) {
	m.cfg.Scores.Update()

	m.mu.Lock()
	slotDuration := time.Duration(primitives.SecondsPerSlot) * time.Second
	starved := time.Since(m.headAdvancedAt) > time.Duration(primitives.StarvationThresholdSlots)*slotDuration
	m.starved = starved
	m.mu.Unlock()

	for pid := range m.cfg.Store.Peers() {
		if m.cfg.Scores.GetState(pid) == Banned {
			if m.cfg.Transport.SendGoodbye != nil {
				_ = m.cfg.Transport.SendGoodbye(ctx, pid, ScoreTooLow)
			}
			if m.cfg.Transport.Disconnect != nil {
				_ = m.cfg.Transport.Disconnect(pid)
			}
			m.cfg.Store.DeletePeerData(pid)
		}
	}

	if starved {
		m.pruneFraction(ctx, 0.05)
		return
	}

	m.runPrioritizer(ctx)
}

// runPrioritizer builds the connected-peer roster and invokes PeerPrioritizer
// (§4.8), executing whatever disconnects it recommends via Transport.
func (m *Manager) runPrioritizer(ctx context.Context) {
	roster := make([]PeerSnapshot, 0)
	for pid, d := range m.cfg.Store.Peers() {
		if d.ConnState != peerdata.PeerConnected {
			continue
		}
		snap := PeerSnapshot{
			ID:        pid,
			Direction: d.Direction,
			Status:    m.cfg.Scores.GetState(pid),
			Score:     m.cfg.Scores.Score(pid),
		}
		if d.MetaData != nil {
			snap.Attnets = bitsToIndices(d.MetaData.Attnets)
			snap.Syncnets = bitsToIndices(d.MetaData.Syncnets)
		}
		for _, c := range d.CustodyCols {
			snap.SamplingGroups = append(snap.SamplingGroups, uint64(c))
		}
		roster = append(roster, snap)
	}

	var demand PrioritizerDemand
	if m.cfg.Demand != nil {
		demand = m.cfg.Demand()
	}
	var deadline primitives.Slot
	if m.cfg.CurrentSlot != nil {
		deadline = m.cfg.CurrentSlot()
	}

	res := Prioritize(roster, demand, PrioritizerOptions{
		MaxPeers:           m.cfg.MaxPeers,
		TargetPeers:        m.cfg.TargetPeers,
		MaxPeersToDiscover: m.cfg.MaxPeersToDiscover,
		DeadlineSlot:       deadline,
		GenesisTimeUnixSec: m.cfg.GenesisTimeUnixSec,
	})

	for _, pid := range res.PeersToDisconnect {
		if m.cfg.Transport.SendGoodbye != nil {
			_ = m.cfg.Transport.SendGoodbye(ctx, pid, TooManyPeers)
		}
		if m.cfg.Transport.Disconnect != nil {
			_ = m.cfg.Transport.Disconnect(pid)
		}
		m.cfg.Store.DeletePeerData(pid)
	}
}

// bitsToIndices expands a bitfield byte slice into the list of set bit
// indices, the representation PeerPrioritizer's scarcity scoring wants.
func bitsToIndices(bits []byte) []uint64 {
	var out []uint64
	for i, b := range bits {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				out = append(out, uint64(i*8+bit))
			}
		}
	}
	return out
}

// pruneFraction disconnects a pseudo-random fraction of connected peers, used
// by starvation mode to make room for fresh discovery (§4.7: "aggressively
// prune 5% of existing peers each heartbeat").
func (m *Manager) pruneFraction(ctx context.Context, fraction float64) {
	all := m.cfg.Store.Peers()
	n := int(float64(len(all)) * fraction)
	if n == 0 && len(all) > 0 {
		n = 1
	}
	i := 0
	for pid := range all {
		if i >= n {
			break
		}
		if m.cfg.Transport.SendGoodbye != nil {
			_ = m.cfg.Transport.SendGoodbye(ctx, pid, TooManyPeers)
		}
		if m.cfg.Transport.Disconnect != nil {
			_ = m.cfg.Transport.Disconnect(pid)
		}
		m.cfg.Store.DeletePeerData(pid)
		i++
	}
}

// Start launches the check_timeouts and heartbeat maintenance loops.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go async.RunEvery(ctx, m.cfg.CheckTimeoutsInterval, func() { m.checkTimeouts(ctx) })
	go async.RunEvery(ctx, m.cfg.HeartbeatInterval, func() { m.heartbeat(ctx) })
}

// Close sends GOODBYE to every connected peer and tears the manager down.
func (m *Manager) Close(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	for pid := range m.cfg.Store.Peers() {
		if m.cfg.Transport.SendGoodbye != nil {
			_ = m.cfg.Transport.SendGoodbye(ctx, pid, ClientShutdown)
		}
		if m.cfg.Transport.Disconnect != nil {
			_ = m.cfg.Transport.Disconnect(pid)
		}
	}
}
