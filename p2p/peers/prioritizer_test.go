package peers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrioritize_NoExcessNoDisconnects(t *testing.T) {
	roster := []PeerSnapshot{
		{ID: "a", Status: Healthy, Attnets: []uint64{1}},
		{ID: "b", Status: Healthy, Attnets: []uint64{2}},
	}
	res := Prioritize(roster, PrioritizerDemand{}, PrioritizerOptions{MaxPeers: 10, TargetPeers: 5})
	require.Empty(t, res.PeersToDisconnect)
	require.Equal(t, 3, res.PeersToConnect) // remaining(2) < target(5) -> need 3
}

func TestPrioritize_ExcessDropsLowestScarcityFirst(t *testing.T) {
	roster := []PeerSnapshot{
		{ID: "sole-holder", Status: Healthy, Attnets: []uint64{1}, Score: 0},
		{ID: "redundant-1", Status: Healthy, Attnets: []uint64{2}, Score: 0},
		{ID: "redundant-2", Status: Healthy, Attnets: []uint64{2}, Score: 0},
	}
	demand := PrioritizerDemand{Attnets: []uint64{1, 2}}
	res := Prioritize(roster, demand, PrioritizerOptions{MaxPeers: 2, TargetPeers: 2})
	require.Len(t, res.PeersToDisconnect, 1)
	// The sole holder of attnet 1 must be kept; one of the two redundant
	// holders of attnet 2 is dropped instead.
	require.NotEqual(t, "sole-holder", res.PeersToDisconnect[0])
}

func TestPrioritize_UnhealthyPeersAreIgnoredForTrimming(t *testing.T) {
	roster := []PeerSnapshot{
		{ID: "banned", Status: Banned},
		{ID: "healthy", Status: Healthy},
	}
	res := Prioritize(roster, PrioritizerDemand{}, PrioritizerOptions{MaxPeers: 1, TargetPeers: 1})
	require.Empty(t, res.PeersToDisconnect) // only 1 healthy peer, at the cap already
}

func TestPrioritize_ConnectCappedByMaxPeersToDiscoverAndRoom(t *testing.T) {
	roster := []PeerSnapshot{{ID: "a", Status: Healthy}}
	res := Prioritize(roster, PrioritizerDemand{}, PrioritizerOptions{MaxPeers: 3, TargetPeers: 10, MaxPeersToDiscover: 1})
	require.Equal(t, 1, res.PeersToConnect) // need=9, capped by MaxPeersToDiscover=1

	res2 := Prioritize(roster, PrioritizerDemand{}, PrioritizerOptions{MaxPeers: 2, TargetPeers: 10, MaxPeersToDiscover: 50})
	require.Equal(t, 1, res2.PeersToConnect) // need=9, but room = MaxPeers(2)-remaining(1) = 1
}

func TestPrioritize_QueriesUncoveredSubnetsOnly(t *testing.T) {
	roster := []PeerSnapshot{
		{ID: "a", Status: Healthy, Attnets: []uint64{1}, SamplingGroups: []uint64{7}},
	}
	demand := PrioritizerDemand{Attnets: []uint64{1, 2}, CustodyGroups: []uint64{7, 9}}
	res := Prioritize(roster, demand, PrioritizerOptions{MaxPeers: 10, TargetPeers: 1, GenesisTimeUnixSec: 1000, DeadlineSlot: 5})

	require.Len(t, res.AttnetQueries, 1)
	require.Equal(t, uint64(2), res.AttnetQueries[0].Subnet)
	require.Equal(t, int64((1000+5*12)*1000), res.AttnetQueries[0].DeadlineMS)

	require.Len(t, res.CustodyGroupQueries, 1)
	require.Equal(t, uint64(9), res.CustodyGroupQueries[0].Subnet)
}

func TestToUnixMS(t *testing.T) {
	require.Equal(t, int64(1000*1000+5*12*1000), toUnixMS(1000, 5))
}
