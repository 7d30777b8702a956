// Package bls defines the BLS signature contract the core depends on for
// attestation aggregation (§4.2) and block-production signing checks. The
// primitives themselves are an external collaborator (§1): a production
// binary wires supranational/blst behind this interface, exactly as the
// teacher's crypto/bls package wires the same library. This package
// supplies only the contract and a deterministic in-memory implementation
// sufficient to exercise aggregation logic in tests without cgo.
package bls

import "github.com/pkg/errors"

// ErrEmptySlice is returned when Aggregate is called with no signatures.
var ErrEmptySlice = errors.New("bls: no signatures to aggregate")

// Signature is an opaque compressed BLS signature.
type Signature interface {
	Marshal() []byte
	Copy() Signature
}

// SecretKey signs messages; only used by test fixtures/fakes here, never by
// core logic, which only ever aggregates and forwards already-produced
// signatures.
type SecretKey interface {
	Sign(msg []byte) Signature
	PublicKey() PublicKey
}

// PublicKey verifies signatures.
type PublicKey interface {
	Marshal() []byte
}

// Aggregator aggregates BLS signatures without verifying them — the core
// trusts that each input signature already passed gossip-layer validation
// (§1: BLS primitives are an opaque, externally-verified collaborator).
type Aggregator interface {
	Aggregate(sigs []Signature) (Signature, error)
}

// activeAggregator is the production seam: AggregateSignatures below delegates
// to whichever Aggregator the binary installs (blst-backed in production,
// the fake below in tests).
var activeAggregator Aggregator = fakeAggregator{}

// SetAggregator overrides the active signature aggregator. Call once at
// process start; core packages never construct an Aggregator directly.
func SetAggregator(a Aggregator) { activeAggregator = a }

// AggregateSignatures aggregates n BLS signatures into one, the way
// AttestationGroup.insert folds a newly-merged attestation's signature into
// the retained member it was OR-merged with (§4.2).
func AggregateSignatures(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return nil, ErrEmptySlice
	}
	return activeAggregator.Aggregate(sigs)
}

// fakeAggregator concatenates marshaled signatures, which is enough to
// exercise aggregation call sites and their error paths without a cgo
// dependency; it is not cryptographically meaningful.
type fakeAggregator struct{}

func (fakeAggregator) Aggregate(sigs []Signature) (Signature, error) {
	if len(sigs) == 0 {
		return nil, ErrEmptySlice
	}
	buf := make([]byte, 0, 96*len(sigs))
	for _, s := range sigs {
		buf = append(buf, s.Marshal()...)
	}
	return rawSignature(buf), nil
}

// rawSignature is the fakeAggregator's Signature implementation.
type rawSignature []byte

func (r rawSignature) Marshal() []byte  { return append([]byte(nil), r...) }
func (r rawSignature) Copy() Signature  { return rawSignature(append([]byte(nil), r...)) }

// NewRawSignature wraps arbitrary bytes as a Signature, used by tests that
// need a cheap stand-in signature without generating a real keypair.
func NewRawSignature(b []byte) Signature { return rawSignature(append([]byte(nil), b...)) }
