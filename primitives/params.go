package primitives

// Fork identifies a consensus hard fork. Ordering matters: comparisons
// (fork >= Deneb) are used by attestation packing and the range-sync
// batcher to pick the right packing path and sidecar family.
type Fork int

const (
	Phase0 Fork = iota
	Altair
	Bellatrix
	Capella
	Deneb
	Electra
	Fulu
)

// String implements fmt.Stringer.
func (f Fork) String() string {
	switch f {
	case Phase0:
		return "phase0"
	case Altair:
		return "altair"
	case Bellatrix:
		return "bellatrix"
	case Capella:
		return "capella"
	case Deneb:
		return "deneb"
	case Electra:
		return "electra"
	case Fulu:
		return "fulu"
	default:
		return "unknown"
	}
}

// AtLeast reports whether f is the same as or later than o.
func (f Fork) AtLeast(o Fork) bool { return f >= o }

// Chain-configuration constants. Values match mainnet presets where the
// spec names a concrete constant; everything else is a conservative
// default suitable for tests. All of them are compile-time constants.
const (
	SlotsPerEpoch = 32

	// SecondsPerSlot is the wall-clock slot duration used to derive the
	// current slot from a chain's genesis time.
	SecondsPerSlot = 12

	// MinAttestationInclusionDelay is the minimum number of slots between an
	// attestation's slot and its earliest legal inclusion slot (§4.3).
	MinAttestationInclusionDelay = 1

	// MaxAttestations is the pre-Electra per-block attestation cap.
	MaxAttestations = 128

	// MaxAttestationsElectra is the Electra (on-chain aggregation) per-block
	// attestation cap — much lower because each attestation now spans many
	// committees (§3, §4.3).
	MaxAttestationsElectra = 8

	// MaxCommitteesPerSlot bounds the committee-bits bitfield width.
	MaxCommitteesPerSlot = 64

	// PreElectraRetainedAttestations is AttestationGroup's retention cap
	// before Electra (§3).
	PreElectraRetainedAttestations = 3

	// ElectraRetainedAttestations is AttestationGroup's retention cap from
	// Electra onward (§3).
	ElectraRetainedAttestations = 8

	// NumberOfColumns is the total PeerDAS data-column count (§4.5).
	NumberOfColumns = 128

	// NumberOfCustodyGroups is the total custody-group count nodes sample
	// from (§4.5).
	NumberOfCustodyGroups = 128

	// DataColumnSidecarSubnetCount is the number of column gossip subnets.
	DataColumnSidecarSubnetCount = 64

	// SamplesPerSlot is the minimum number of columns an honest node must
	// sample per slot regardless of validator custody requirement (§4.5).
	SamplesPerSlot = 16

	// ValidatorCustodyRequirement is the minimum custody-group count a node
	// running any validators must maintain (§4.5).
	ValidatorCustodyRequirement = 4

	// BalancePerAdditionalCustodyGroup is the effective-balance increment
	// (in Gwei) that earns one additional custody group (§4.5).
	BalancePerAdditionalCustodyGroup = Gwei(32_000_000_000)

	// ReconstructionThreshold is the minimum column count (of
	// NumberOfColumns) needed to erasure-recover the rest (§4.4.2).
	ReconstructionThreshold = NumberOfColumns / 2

	// MaxBlockInputCacheSize bounds the DAS cache's resident entry count
	// (§4.4 pruning).
	MaxBlockInputCacheSize = 5

	// MinEpochsForBlobSidecarsRequests bounds how far back blob-by-range
	// requests are still served (§4.9).
	MinEpochsForBlobSidecarsRequests = 4096

	// MinEpochsForDataColumnSidecarsRequests bounds how far back column
	// requests are still served (§4.9, §6).
	MinEpochsForDataColumnSidecarsRequests = 4096

	// MaxRequestBlocksDeneb clamps BeaconBlocksByRange/ByRoot count (§6).
	MaxRequestBlocksDeneb = 128

	// StarvationThresholdEpochs is how many epochs without head progress
	// before the peer manager enters starvation mode (§4.7).
	StarvationThresholdEpochs = 2

	// FuluForkEpoch is a placeholder fork-schedule boundary; a real
	// deployment loads this from config, which is out of scope (§1).
	FuluForkEpoch Epoch = 0
)

// StarvationThresholdSlots is STARVATION_THRESHOLD_SLOTS = 2·SLOTS_PER_EPOCH (§4.7).
const StarvationThresholdSlots = Slot(StarvationThresholdEpochs * SlotsPerEpoch)
