package das

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/chainforge/beacon-core/primitives"
)

// NodeID identifies a node for custody-group sampling purposes (the low-level
// discv5/ENR node identifier in the teacher, represented here as a raw
// 32-byte value since this package has no ENR dependency of its own).
type NodeID [32]byte

// CustodyGroup identifies one of NumberOfCustodyGroups groups; each column
// belongs to exactly one group.
type CustodyGroup uint64

// columnsPerGroup is the number of columns each custody group covers.
const columnsPerGroup = primitives.NumberOfColumns / primitives.NumberOfCustodyGroups

// CustodyGroupCount returns how many custody groups a node with the given
// effective balance must sample, scaling ValidatorCustodyRequirement up by
// one group per BalancePerAdditionalCustodyGroup above the base requirement
// (mirrors the teacher's CSC-from-balance sizing in custody_test.go, which
// derives a node's advertised count from its ENR/metadata rather than a
// fixed constant).
func CustodyGroupCount(effectiveBalance primitives.Gwei) uint64 {
	count := primitives.ValidatorCustodyRequirement
	if effectiveBalance > primitives.BalancePerAdditionalCustodyGroup {
		extra := uint64(effectiveBalance/primitives.BalancePerAdditionalCustodyGroup) - 1
		count += extra
	}
	if count > primitives.NumberOfCustodyGroups {
		count = primitives.NumberOfCustodyGroups
	}
	return count
}

// CustodyGroups derives the deterministic set of custody groups a node
// samples, given its node ID and the number of groups it must cover. Groups
// are chosen by hashing (nodeID, candidate index), reading the digest's
// first 8 bytes as a little-endian uint64 mod NumberOfCustodyGroups, and
// skipping duplicates,
// so the result is stable for a given (nodeID, count) pair and spreads
// roughly uniformly across groups.
func CustodyGroups(id NodeID, count uint64) []CustodyGroup {
	if count == 0 {
		return nil
	}
	if count > primitives.NumberOfCustodyGroups {
		count = primitives.NumberOfCustodyGroups
	}
	seen := make(map[CustodyGroup]bool, count)
	groups := make([]CustodyGroup, 0, count)
	for i := uint64(0); len(groups) < int(count); i++ {
		g := CustodyGroup(groupHash(id, i) % primitives.NumberOfCustodyGroups)
		if seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// groupHash mixes a node ID and a candidate counter into a uniformly
// distributed 64-bit value.
func groupHash(id NodeID, i uint64) uint64 {
	h := sha256.New()
	h.Write(id[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], i)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// CustodyColumns expands a custody group set into the full list of column
// indices those groups cover.
func CustodyColumns(groups []CustodyGroup) []ColumnIndex {
	cols := make([]ColumnIndex, 0, len(groups)*columnsPerGroup)
	for _, g := range groups {
		base := uint64(g) * columnsPerGroup
		for i := uint64(0); i < columnsPerGroup; i++ {
			cols = append(cols, ColumnIndex(base+i))
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
	return cols
}

// TargetCustodyGroupCount derives target_custody_group_count from a node's
// attached validators' total effective balance (§4.5): at least
// ValidatorCustodyRequirement groups, scaling up by one additional group per
// BalancePerAdditionalCustodyGroup of total effective balance, capped at
// NumberOfCustodyGroups. A caller recomputes this on balance changes and
// feeds the result to CustodyMap.UpdateTarget.
func TargetCustodyGroupCount(totalEffectiveBalance primitives.Gwei) uint64 {
	target := uint64(primitives.ValidatorCustodyRequirement)
	if scaled := uint64(totalEffectiveBalance / primitives.BalancePerAdditionalCustodyGroup); scaled > target {
		target = scaled
	}
	if target > primitives.NumberOfCustodyGroups {
		target = primitives.NumberOfCustodyGroups
	}
	return target
}

// Subnet returns the gossip subnet a column index is broadcast on:
// column mod DATA_COLUMN_SIDECAR_SUBNET_COUNT (§4.5).
func Subnet(column ColumnIndex) uint64 {
	return uint64(column) % primitives.DataColumnSidecarSubnetCount
}

// CustodyMap is C5: it answers, for this node, which columns it must
// custody and which it must sample, derived from the node's identity and a
// target custody-group count that only ever increases (§4.5).
type CustodyMap struct {
	mu sync.RWMutex

	id     NodeID
	target uint64

	groups  []CustodyGroup
	columns []ColumnIndex

	// sampledGroups/sampledColumns cover max(target, SamplesPerSlot) groups,
	// a superset of groups/columns whenever SamplesPerSlot exceeds target
	// (§4.5, Testable Property 7).
	sampledGroups  []CustodyGroup
	sampledColumns []ColumnIndex
}

// NewCustodyMap builds a CustodyMap for id at the given initial target
// custody-group count.
func NewCustodyMap(id NodeID, groupCount uint64) *CustodyMap {
	m := &CustodyMap{id: id}
	m.recomputeLocked(groupCount)
	return m
}

// recomputeLocked derives groups/columns/sampled{Groups,Columns} for target
// t. Caller must hold m.mu.
func (m *CustodyMap) recomputeLocked(t uint64) {
	if t > primitives.NumberOfCustodyGroups {
		t = primitives.NumberOfCustodyGroups
	}
	m.target = t
	m.groups = CustodyGroups(m.id, t)
	m.columns = CustodyColumns(m.groups)

	sampleCount := t
	if primitives.SamplesPerSlot > sampleCount {
		sampleCount = primitives.SamplesPerSlot
	}
	if sampleCount > primitives.NumberOfCustodyGroups {
		sampleCount = primitives.NumberOfCustodyGroups
	}
	m.sampledGroups = CustodyGroups(m.id, sampleCount)
	m.sampledColumns = CustodyColumns(m.sampledGroups)
}

// UpdateTarget monotonically increases the node's target custody-group
// count and recomputes every derived set. Once the target has reached
// NumberOfCustodyGroups, or n does not exceed the current target, this is a
// no-op (§4.5).
func (m *CustodyMap) UpdateTarget(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.target >= primitives.NumberOfCustodyGroups || n <= m.target {
		return
	}
	m.recomputeLocked(n)
}

// Target returns the current target custody-group count.
func (m *CustodyMap) Target() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

// Groups returns the custody group set, ascending.
func (m *CustodyMap) Groups() []CustodyGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CustodyGroup(nil), m.groups...)
}

// Columns returns the full set of column indices covered by Groups, ascending.
func (m *CustodyMap) Columns() []ColumnIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ColumnIndex(nil), m.columns...)
}

// SampledColumns returns the columns covered by max(target, SamplesPerSlot)
// groups, a distinct and always-at-least-as-large set as Columns (§4.5).
func (m *CustodyMap) SampledColumns() []ColumnIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ColumnIndex(nil), m.sampledColumns...)
}

// Custodies reports whether idx falls within this node's custody columns.
func (m *CustodyMap) Custodies(idx ColumnIndex) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ShouldCustodyColumn(idx, m.columns)
}
