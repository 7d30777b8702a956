package peers

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/chainforge/beacon-core/p2p/peerdata"
	"github.com/chainforge/beacon-core/p2p/peers/scorers"
)

// PeerAction is a tolerance-graded misbehavior report (§7): repeated
// low-tolerance offenses accumulate faster toward a ban than high-tolerance
// ones, and Fatal bans immediately.
type PeerAction int

const (
	HighToleranceError PeerAction = iota
	MidToleranceError
	LowToleranceError
	Fatal
)

// actionPenalty is how many bad-response increments one action counts as.
func (a PeerAction) actionPenalty() int {
	switch a {
	case HighToleranceError:
		return 1
	case MidToleranceError:
		return 3
	case LowToleranceError:
		return 6
	case Fatal:
		return 1 << 20
	default:
		return 1
	}
}

// PeerState is the coarse health classification get_state reports (§4.6).
type PeerState int

const (
	Healthy PeerState = iota
	Disconnected
	Banned
)

// GoodbyeReason is the wire reason code sent with a GOODBYE message (§6).
type GoodbyeReason uint64

const (
	ClientShutdown GoodbyeReason = iota
	IrrelevantNetwork
	TooManyPeers
	BannedReason
	ScoreTooLow
	InboundDisconnect
)

// cooldownMinutes maps a disconnection reason to its reconnection cooldown.
func (r GoodbyeReason) cooldownMinutes() int {
	switch r {
	case BannedReason:
		return 60
	case ScoreTooLow:
		return 30
	case TooManyPeers:
		return 10
	case IrrelevantNetwork:
		return 15
	default:
		return 5
	}
}

// PeerScoreStore is C7: it composes scorers.Service with ban/cooldown
// bookkeeping, exposing the apply_action/update/get_state/
// apply_reconnection_cooldown operations named in §4.6.
type PeerScoreStore struct {
	store   *peerdata.Store
	scores  *scorers.Service
	gossip  *gossipAdapter
	nowFunc func() time.Time
}

// NewPeerScoreStore builds a PeerScoreStore over store using config (nil
// for scorer defaults).
func NewPeerScoreStore(store *peerdata.Store, config *scorers.Config) *PeerScoreStore {
	ga := &gossipAdapter{}
	svc := scorers.NewService(store, config)
	svc.SetGossipScoreProvider(ga)
	return &PeerScoreStore{store: store, scores: svc, gossip: ga, nowFunc: time.Now}
}

// Scorers returns the composed scoring service, for direct strategy access.
func (p *PeerScoreStore) Scorers() *scorers.Service { return p.scores }

// Score returns pid's current overall score.
func (p *PeerScoreStore) Score(pid peer.ID) float64 { return p.scores.Score(pid) }

// ApplyAction records a tolerance-graded misbehavior report against pid.
// Fatal reports ban the peer outright.
func (p *PeerScoreStore) ApplyAction(pid peer.ID, action PeerAction) {
	for i := 0; i < action.actionPenalty(); i++ {
		p.scores.BadResponsesScorer().Increment(pid)
		if action == Fatal {
			break // Fatal records one bad response; the Ban below bans the peer
		}
	}
	if action == Fatal {
		p.Ban(pid)
	}
}

// Ban marks pid banned for its standard cooldown.
func (p *PeerScoreStore) Ban(pid peer.ID) {
	d := p.store.PeerDataGetOrCreate(pid)
	d.BanExpiry = p.nowFunc().Add(time.Duration(BannedReason.cooldownMinutes()) * time.Minute)
}

// ApplyReconnectionCooldown records a disconnection reason against pid and
// returns the cooldown, in minutes, before a reconnection attempt should be
// considered.
func (p *PeerScoreStore) ApplyReconnectionCooldown(pid peer.ID, reason GoodbyeReason) int {
	minutes := reason.cooldownMinutes()
	d := p.store.PeerDataGetOrCreate(pid)
	d.BanExpiry = p.nowFunc().Add(time.Duration(minutes) * time.Minute)
	return minutes
}

// GetState classifies pid's current health.
func (p *PeerScoreStore) GetState(pid peer.ID) PeerState {
	d, ok := p.store.PeerData(pid)
	if !ok {
		return Disconnected
	}
	if !d.BanExpiry.IsZero() && p.nowFunc().Before(d.BanExpiry) {
		return Banned
	}
	if p.scores.IsBadPeer(pid) {
		return Banned
	}
	return Healthy
}

// Update applies periodic decay across every composed scorer (§4.6
// `update()`), and clears expired bans.
func (p *PeerScoreStore) Update() {
	p.scores.Decay()
	now := p.nowFunc()
	for pid, d := range p.store.Peers() {
		if !d.BanExpiry.IsZero() && now.After(d.BanExpiry) {
			p.store.PeerDataGetOrCreate(pid).BanExpiry = time.Time{}
		}
	}
}

// gossipAdapter satisfies scorers.GossipScoreProvider; Set installs the
// externally-computed per-peer gossip score (from a das.GossipScorer
// keyed by the transport's own peer identifiers) each heartbeat.
type gossipAdapter struct {
	scores map[peer.ID]float64
}

func (g *gossipAdapter) Score(pid peer.ID) float64 {
	if g.scores == nil {
		return 0
	}
	return g.scores[pid]
}

// SetGossipScores installs this heartbeat's gossip scores, ignoring the
// worst ceil(targetPeers*0.1) of them so a noisy gossip environment can't
// ban otherwise-useful peers by itself (§4.6).
func (p *PeerScoreStore) SetGossipScores(scores map[peer.ID]float64, targetPeers int) {
	ignore := (targetPeers + 9) / 10 // ceil(targetPeers * 0.1)
	blended := make(map[peer.ID]float64, len(scores))
	for k, v := range scores {
		blended[k] = v
	}
	if ignore > 0 && len(blended) > 0 {
		worst := worstN(blended, ignore)
		for _, pid := range worst {
			blended[pid] = 0
		}
	}
	p.gossip.scores = blended
}

// worstN returns the ids of the n lowest-scored entries in scores.
func worstN(scores map[peer.ID]float64, n int) []peer.ID {
	type kv struct {
		id    peer.ID
		score float64
	}
	all := make([]kv, 0, len(scores))
	for id, s := range scores {
		all = append(all, kv{id, s})
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].score < all[i].score {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]peer.ID, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].id
	}
	return out
}
