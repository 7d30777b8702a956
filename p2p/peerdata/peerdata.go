// Package peerdata is the shared per-peer record store underlying C7
// (PeerScoreStore) and C8 (PeerManager): one PeerData per connected libp2p
// peer, mutated only through Store's locked accessors. Grounded on the
// teacher's beacon-chain/p2p/peers/peerdata package (store_test.go).
package peerdata

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/chainforge/beacon-core/das"
	"github.com/chainforge/beacon-core/primitives"
)

// ConnectionState is a peer's libp2p connection lifecycle state.
type ConnectionState int

const (
	PeerDisconnected ConnectionState = iota
	PeerDisconnecting
	PeerConnected
	PeerConnecting
)

// ChainState is the STATUS handshake payload a peer last reported (§6).
type ChainState struct {
	ForkDigest      [4]byte
	FinalizedRoot   primitives.Root
	FinalizedEpoch  primitives.Epoch
	HeadRoot        primitives.Root
	HeadSlot        primitives.Slot
	EarliestSlot    primitives.Slot
}

// MetaData is a peer's last-known METADATA payload (§6).
type MetaData struct {
	SeqNumber         uint64
	Attnets           []byte
	Syncnets          []byte
	CustodyGroupCount uint64
}

// PeerData is everything a PeerManager/PeerScoreStore tracks for one peer.
type PeerData struct {
	Address     string
	Direction   network.Direction
	ConnState   ConnectionState
	Relevant    bool
	ChainState  *ChainState
	MetaData    *MetaData
	CustodyCols []das.ColumnIndex

	LastReceivedMsg time.Time
	LastStatus      time.Time
	NextPingSeq     uint64

	BadResponses    int
	ProcessedBlocks uint64
	BanExpiry       time.Time
}

// StoreConfig bounds a Store's size.
type StoreConfig struct {
	MaxPeers int
}

// Store is the locked peer-record map, single-writer per the teacher's
// concurrency model (§5: peer-store is mutated only by PeerManager).
type Store struct {
	ctx context.Context
	cfg *StoreConfig

	mu    sync.RWMutex
	peers map[peer.ID]*PeerData
}

// NewStore returns an empty Store.
func NewStore(ctx context.Context, cfg *StoreConfig) *Store {
	if cfg == nil {
		cfg = &StoreConfig{}
	}
	return &Store{ctx: ctx, cfg: cfg, peers: make(map[peer.ID]*PeerData)}
}

// Config returns the store's configuration.
func (s *Store) Config() *StoreConfig {
	return s.cfg
}

// PeerData returns pid's record, if any.
func (s *Store) PeerData(pid peer.ID) (*PeerData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.peers[pid]
	return d, ok
}

// SetPeerData replaces pid's record wholesale.
func (s *Store) SetPeerData(pid peer.ID, data *PeerData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[pid] = data
}

// PeerDataGetOrCreate returns pid's record, creating an empty one if absent.
func (s *Store) PeerDataGetOrCreate(pid peer.ID) *PeerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.peers[pid]
	if !ok {
		d = &PeerData{}
		s.peers[pid] = d
	}
	return d
}

// DeletePeerData removes pid's record.
func (s *Store) DeletePeerData(pid peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, pid)
}

// Peers returns a snapshot copy of the whole peer map.
func (s *Store) Peers() map[peer.ID]*PeerData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[peer.ID]*PeerData, len(s.peers))
	for k, v := range s.peers {
		out[k] = v
	}
	return out
}

// Len returns the number of tracked peers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}
