package attestations

import (
	"context"
	"testing"
	"time"

	"github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/primitives"
)

func TestService_PruneExpired_DropsOldSlots(t *testing.T) {
	pool := NewPool()
	old := mustAtt(1, bitfield.Bitlist{0b1101})
	recent := mustAtt(1, bitfield.Bitlist{0b1101})
	recent.Data.Slot = primitives.Slot((primitives.PreElectraRetainedAttestations + 10) * primitives.SlotsPerEpoch)
	require.NoError(t, pool.SaveAggregatedAttestation(old))
	require.NoError(t, pool.SaveAggregatedAttestation(recent))

	genesisTime := uint64(time.Now().Unix()) - uint64((primitives.PreElectraRetainedAttestations+10)*primitives.SlotsPerEpoch*primitives.SecondsPerSlot)
	svc, err := NewService(context.Background(), &Config{Pool: pool, GenesisTime: genesisTime})
	require.NoError(t, err)

	svc.pruneExpired()

	remaining := pool.AggregatedAttestations()
	require.Equal(t, 1, len(remaining))
	require.Equal(t, recent.Data.Slot, remaining[0].Data.Slot)
}

func TestService_StartStop(t *testing.T) {
	pool := NewPool()
	svc, err := NewService(context.Background(), &Config{Pool: pool})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	require.NoError(t, svc.Stop())
}
