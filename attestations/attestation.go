// Package attestations implements C2 (AttestationGroup) and C3
// (AttestationPool): in-memory staging, subset-collapsing aggregation, and
// block-packing selection for gossiped attestations, modeled on the
// teacher's beacon-chain/operations/attestations and
// beacon-chain/operations/attestations/kv packages.
package attestations

import (
	"encoding/binary"
	"crypto/sha256"

	"github.com/pkg/errors"
	"github.com/prysmaticlabs/go-bitfield"

	"github.com/chainforge/beacon-core/crypto/bls"
	"github.com/chainforge/beacon-core/primitives"
)

// ErrNilAttestation is returned wherever the teacher's kv package returns
// "attestation can't be nil".
var ErrNilAttestation = errors.New("attestation can't be nil")

// ErrNilAttestationData is returned when an attestation's Data is missing.
var ErrNilAttestationData = errors.New("attestation's data can't be nil")

// ErrNotAggregated is returned by the aggregated-only APIs when given an
// attestation whose bits carry zero or one set bit.
var ErrNotAggregated = errors.New("attestation is not aggregated")

// Attestation is this module's wire-independent attestation representation.
// AggregationBits indexes into the attesting committee; for a post-Electra
// (EIP-7549) attestation, CommitteeBits additionally selects which
// committees of the slot AggregationBits's positions are drawn from, in
// ascending committee-index order (§3, §4.2).
type Attestation struct {
	Data            primitives.AttestationData
	AggregationBits bitfield.Bitlist
	CommitteeBits   bitfield.Bitvector64
	Signature       []byte
}

// IsElectra reports whether the attestation carries committee bits, i.e. is
// in the EIP-7549 cross-committee format.
func (a *Attestation) IsElectra() bool {
	return a != nil && len(a.CommitteeBits) > 0
}

// IsAggregated reports whether more than one attester contributed.
func (a *Attestation) IsAggregated() bool {
	if a == nil {
		return false
	}
	return a.AggregationBits.Count() > 1
}

// Clone returns a deep copy of the attestation.
func (a *Attestation) Clone() *Attestation {
	if a == nil {
		return nil
	}
	cp := &Attestation{Data: a.Data}
	cp.AggregationBits = append(bitfield.Bitlist(nil), a.AggregationBits...)
	if a.CommitteeBits != nil {
		cp.CommitteeBits = append(bitfield.Bitvector64(nil), a.CommitteeBits...)
	}
	cp.Signature = append([]byte(nil), a.Signature...)
	return cp
}

// ID uniquely identifies the AttestationData (not the aggregation bits) an
// attestation carries, i.e. the key that its AttestationGroup is stored
// under (§4.2).
type ID [32]byte

// String renders the ID as hex, for log fields and map-key debugging.
func (id ID) String() string { return primitives.Root(id).Hex() }

// dataID hashes an AttestationData deterministically. There is no wire codec
// in scope (§1 Non-goals), so this is a plain digest over a fixed field
// layout rather than an SSZ hash-tree-root.
func dataID(d primitives.AttestationData) ID {
	var buf [8 + 8 + 32 + 8 + 32 + 8 + 32]byte
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(d.Slot))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(d.CommitteeIndex))
	off += 8
	copy(buf[off:off+32], d.BeaconBlockRoot[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], uint64(d.Source.Epoch))
	off += 8
	copy(buf[off:off+32], d.Source.Root[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], uint64(d.Target.Epoch))
	off += 8
	copy(buf[off:off+32], d.Target.Root[:])
	return sha256.Sum256(buf[:])
}

// attestationID identifies an individual unaggregated attestation (data +
// aggregation bits), used as the unaggregated pool's map key since multiple
// unaggregated attestations can share the same data.
func attestationID(a *Attestation) (string, error) {
	if a == nil {
		return "", ErrNilAttestation
	}
	id := dataID(a.Data)
	return id.String() + ":" + string(a.AggregationBits), nil
}

func validate(a *Attestation) error {
	if a == nil {
		return ErrNilAttestation
	}
	return nil
}

// aggregateSignatures aggregates the signatures of atts using the opaque BLS
// backend (§1).
func aggregateSignatures(atts []*Attestation) ([]byte, error) {
	sigs := make([]bls.Signature, len(atts))
	for i, a := range atts {
		sigs[i] = bls.NewRawSignature(a.Signature)
	}
	agg, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return nil, err
	}
	return agg.Marshal(), nil
}
