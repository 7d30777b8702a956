// Package primitives defines the slot/epoch/root/checkpoint vocabulary and
// chain-configuration constants shared by every core component: the
// attestation pool, the data-availability cache, the peer manager, and
// range sync. These mirror the teacher's consensus-types/primitives and
// config/params packages, trimmed to what the core subsystems consume —
// SSZ encoding, full beacon-state types, and the state-transition function
// stay out of scope per §1.
package primitives

import (
	"encoding/hex"
	"fmt"
)

// Slot is a slot number.
type Slot uint64

// Epoch is an epoch number.
type Epoch uint64

// CommitteeIndex identifies a beacon committee within a slot.
type CommitteeIndex uint64

// ValidatorIndex identifies a validator in the beacon state's registry.
type ValidatorIndex uint64

// Gwei is an amount of the network's base currency unit.
type Gwei uint64

// ToEpoch converts a slot to its containing epoch.
func (s Slot) ToEpoch() Epoch {
	return Epoch(uint64(s) / SlotsPerEpoch)
}

// StartSlot returns the first slot of the epoch.
func (e Epoch) StartSlot() Slot {
	return Slot(uint64(e) * SlotsPerEpoch)
}

// Root is a 32-byte tree-hash root. It is a fixed-size array rather than a
// hex string so map keys hash cheaply; Hex/RootFromHex provide the
// debugging-friendly string form the teacher's logs use (DESIGN NOTES §9).
type Root [32]byte

// Hex returns the 0x-prefixed hex encoding of the root.
func (r Root) Hex() string {
	return "0x" + hex.EncodeToString(r[:])
}

// String implements fmt.Stringer.
func (r Root) String() string {
	return r.Hex()
}

// IsZero reports whether r is the zero root.
func (r Root) IsZero() bool {
	return r == Root{}
}

// RootFromHex parses a 0x-prefixed (or bare) hex string into a Root.
func RootFromHex(s string) (Root, error) {
	var r Root
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return r, fmt.Errorf("primitives: invalid hex root %q: %w", s, err)
	}
	if len(b) != 32 {
		return r, fmt.Errorf("primitives: root must be 32 bytes, got %d", len(b))
	}
	copy(r[:], b)
	return r, nil
}

// Checkpoint is a finality checkpoint: an epoch and the root of its first
// slot's block.
type Checkpoint struct {
	Epoch Epoch
	Root  Root
}

// IsZero reports whether the checkpoint is the zero value.
func (c Checkpoint) IsZero() bool {
	return c.Epoch == 0 && c.Root.IsZero()
}

// AttestationData is the data a validator signs when attesting. Per
// EIP-7549 (Electra), CommitteeIndex is always zero on the wire and the
// committee membership instead lives in the attestation's CommitteeBits;
// pre-Electra, CommitteeIndex is authoritative (§3).
type AttestationData struct {
	Slot            Slot
	CommitteeIndex  CommitteeIndex
	BeaconBlockRoot Root
	Source          Checkpoint
	Target          Checkpoint
}

// Equal reports whether two AttestationData values are identical. Two
// attestations with equal data are aggregation candidates (§4.2).
func (d AttestationData) Equal(o AttestationData) bool {
	return d.Slot == o.Slot &&
		d.CommitteeIndex == o.CommitteeIndex &&
		d.BeaconBlockRoot == o.BeaconBlockRoot &&
		d.Source == o.Source &&
		d.Target == o.Target
}

// InclusionDistance returns state_slot - data.Slot, the denominator used to
// score candidate attestations for block packing (§4.3).
func (d AttestationData) InclusionDistance(stateSlot Slot) uint64 {
	if stateSlot <= d.Slot {
		return 1
	}
	return uint64(stateSlot - d.Slot)
}

// SlotFromTimestamp derives the current slot from a chain's genesis time
// and a wall-clock timestamp, both Unix seconds. It returns 0 if now
// precedes genesisTime.
func SlotFromTimestamp(genesisTime, now uint64) Slot {
	if now <= genesisTime {
		return 0
	}
	return Slot((now - genesisTime) / SecondsPerSlot)
}
