package peers

import (
	"sort"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/chainforge/beacon-core/primitives"
)

// PeerSnapshot is one connected peer's roster entry, as PeerPrioritizer
// receives it each heartbeat (§4.8).
type PeerSnapshot struct {
	ID             peer.ID
	Direction      network.Direction
	Status         PeerState
	Attnets        []uint64
	Syncnets       []uint64
	SamplingGroups []uint64
	Score          float64
}

// PrioritizerDemand is what the local node still needs coverage for.
type PrioritizerDemand struct {
	Attnets       []uint64
	Syncnets      []uint64
	CustodyGroups []uint64
}

// PrioritizerOptions bounds and tunes one PeerPrioritizer pass.
type PrioritizerOptions struct {
	MaxPeers           int
	TargetPeers        int
	MaxPeersToDiscover int
	DeadlineSlot       primitives.Slot
	GenesisTimeUnixSec uint64
}

// DiscoveryQuery asks the discv5 worker (when enabled; §4.8) for peers
// advertising a given subnet or custody group, by a deadline.
type DiscoveryQuery struct {
	Subnet     uint64
	DeadlineMS int64
}

// PrioritizerResult is PeerPrioritizer's output (§4.8).
type PrioritizerResult struct {
	PeersToDisconnect   []peer.ID
	PeersToConnect      int
	AttnetQueries       []DiscoveryQuery
	SyncnetQueries      []DiscoveryQuery
	CustodyGroupQueries []DiscoveryQuery
}

// toUnixMS converts a deadline slot to a unix-millisecond deadline, per
// spec's to_unix_ms helper.
func toUnixMS(genesisTimeUnixSec uint64, slot primitives.Slot) int64 {
	seconds := genesisTimeUnixSec + uint64(slot)*primitives.SecondsPerSlot
	return int64(seconds) * 1000
}

// Prioritize is C9: it decides which connected peers to drop and which
// subnets/custody groups to seek more peers for, honoring max_peers/
// target_peers and preferring to retain peers covering scarce subnets or
// custody groups (§4.8). Disconnect/connect decisions are advisory; the
// caller (PeerManager.heartbeat) executes them via Transport.
func Prioritize(roster []PeerSnapshot, demand PrioritizerDemand, opts PrioritizerOptions) PrioritizerResult {
	result := PrioritizerResult{}

	healthy := make([]PeerSnapshot, 0, len(roster))
	for _, p := range roster {
		if p.Status == Healthy {
			healthy = append(healthy, p)
		} else {
			// Already unhealthy; PeerManager.heartbeat disconnects banned
			// peers directly, so the prioritizer only needs to worry about
			// trimming excess *healthy* connections here.
			continue
		}
	}

	excess := len(healthy) - opts.MaxPeers
	if excess > 0 {
		scarcity := scarcityIndex(healthy, demand)
		sort.SliceStable(healthy, func(i, j int) bool {
			si, sj := scarcity[healthy[i].ID], scarcity[healthy[j].ID]
			if si != sj {
				return si < sj // drop candidates with the lowest scarcity coverage first
			}
			return healthy[i].Score < healthy[j].Score
		})
		for i := 0; i < excess && i < len(healthy); i++ {
			result.PeersToDisconnect = append(result.PeersToDisconnect, healthy[i].ID)
		}
	}

	remaining := len(healthy) - len(result.PeersToDisconnect)
	if remaining < opts.TargetPeers {
		need := opts.TargetPeers - remaining
		if opts.MaxPeersToDiscover > 0 && need > opts.MaxPeersToDiscover {
			need = opts.MaxPeersToDiscover
		}
		room := opts.MaxPeers - remaining
		if need > room {
			need = room
		}
		if need > 0 {
			result.PeersToConnect = need
		}
	}

	deadline := toUnixMS(opts.GenesisTimeUnixSec, opts.DeadlineSlot)
	covered := coveredSets(healthy)
	for _, subnet := range demand.Attnets {
		if !covered.attnets[subnet] {
			result.AttnetQueries = append(result.AttnetQueries, DiscoveryQuery{Subnet: subnet, DeadlineMS: deadline})
		}
	}
	for _, subnet := range demand.Syncnets {
		if !covered.syncnets[subnet] {
			result.SyncnetQueries = append(result.SyncnetQueries, DiscoveryQuery{Subnet: subnet, DeadlineMS: deadline})
		}
	}
	for _, group := range demand.CustodyGroups {
		if !covered.custody[group] {
			result.CustodyGroupQueries = append(result.CustodyGroupQueries, DiscoveryQuery{Subnet: group, DeadlineMS: deadline})
		}
	}

	return result
}

type coverage struct {
	attnets  map[uint64]bool
	syncnets map[uint64]bool
	custody  map[uint64]bool
}

func coveredSets(peers []PeerSnapshot) coverage {
	c := coverage{attnets: map[uint64]bool{}, syncnets: map[uint64]bool{}, custody: map[uint64]bool{}}
	for _, p := range peers {
		for _, a := range p.Attnets {
			c.attnets[a] = true
		}
		for _, s := range p.Syncnets {
			c.syncnets[s] = true
		}
		for _, g := range p.SamplingGroups {
			c.custody[g] = true
		}
	}
	return c
}

// scarcityIndex scores each peer by how many of its covered
// attnets/syncnets/custody-groups are covered by few other peers: a peer
// that is the ONLY source of a demanded subnet gets a high score (keep),
// while a peer covering only already-redundant subnets gets a low score
// (prefer to disconnect).
func scarcityIndex(peers []PeerSnapshot, demand PrioritizerDemand) map[peer.ID]float64 {
	demandSet := func(xs []uint64) map[uint64]bool {
		m := make(map[uint64]bool, len(xs))
		for _, x := range xs {
			m[x] = true
		}
		return m
	}
	wantedAttnets := demandSet(demand.Attnets)
	wantedSyncnets := demandSet(demand.Syncnets)
	wantedCustody := demandSet(demand.CustodyGroups)

	holders := map[uint64]int{}
	countHolders := func(subnets []uint64, wanted map[uint64]bool, offset uint64) {
		for _, s := range subnets {
			if wanted[s] {
				holders[s+offset]++
			}
		}
	}
	const syncOffset = 1 << 20
	const custodyOffset = 1 << 40
	for _, p := range peers {
		countHolders(p.Attnets, wantedAttnets, 0)
		countHolders(p.Syncnets, wantedSyncnets, syncOffset)
		countHolders(p.SamplingGroups, wantedCustody, custodyOffset)
	}

	scores := make(map[peer.ID]float64, len(peers))
	for _, p := range peers {
		var score float64
		tally := func(subnets []uint64, wanted map[uint64]bool, offset uint64) {
			for _, s := range subnets {
				if !wanted[s] {
					continue
				}
				n := holders[s+offset]
				if n > 0 {
					score += 1.0 / float64(n)
				}
			}
		}
		tally(p.Attnets, wantedAttnets, 0)
		tally(p.Syncnets, wantedSyncnets, syncOffset)
		tally(p.SamplingGroups, wantedCustody, custodyOffset)
		scores[p.ID] = score
	}
	return scores
}
