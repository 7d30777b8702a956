package attestations

import "github.com/chainforge/beacon-core/primitives"

// testData returns a minimal, internally-consistent AttestationData for the
// given slot, used across this package's table-driven tests.
func testData(slot uint64) primitives.AttestationData {
	return primitives.AttestationData{
		Slot:            primitives.Slot(slot),
		CommitteeIndex:  0,
		BeaconBlockRoot: primitives.Root{byte(slot)},
		Source:          primitives.Checkpoint{Epoch: 0, Root: primitives.Root{1}},
		Target:          primitives.Checkpoint{Epoch: 1, Root: primitives.Root{2}},
	}
}
