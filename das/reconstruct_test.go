package das

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/crypto/kzg"
	"github.com/chainforge/beacon-core/primitives"
)

func TestColumnReconstructor_NotAttemptedLessThanHalf(t *testing.T) {
	r := NewColumnReconstructor()
	var commitment kzg.Commitment
	require.NoError(t, r.RecordColumn(0, 0, kzg.Cell{}, commitment))

	result, cells, proofs, err := r.Reconstruct(0, false)
	require.NoError(t, err)
	require.Equal(t, NotAttemptedLessThanHalf, result)
	require.Nil(t, cells)
	require.Nil(t, proofs)
}

func TestColumnReconstructor_SuccessResolvedAtThreshold(t *testing.T) {
	r := NewColumnReconstructor()
	var commitment kzg.Commitment
	for i := uint64(0); i < uint64(primitives.ReconstructionThreshold); i++ {
		require.NoError(t, r.RecordColumn(0, ColumnIndex(i), kzg.Cell{byte(i)}, commitment))
	}
	require.Contains(t, r.ReadyBlobs(), uint64(0))

	result, cells, proofs, err := r.Reconstruct(0, false)
	require.NoError(t, err)
	require.Equal(t, SuccessResolved, result)
	require.Len(t, cells, primitives.NumberOfColumns)
	require.Len(t, proofs, primitives.NumberOfColumns)

	// a second attempt after marking reconstructed is a no-op.
	result, _, _, err = r.Reconstruct(0, false)
	require.NoError(t, err)
	require.Equal(t, NotAttemptedFull, result)
}

func TestColumnReconstructor_SuccessLateWhenAlreadyAvailable(t *testing.T) {
	r := NewColumnReconstructor()
	var commitment kzg.Commitment
	for i := uint64(0); i < uint64(primitives.ReconstructionThreshold); i++ {
		require.NoError(t, r.RecordColumn(1, ColumnIndex(i), kzg.Cell{byte(i)}, commitment))
	}
	result, _, _, err := r.Reconstruct(1, true)
	require.NoError(t, err)
	require.Equal(t, SuccessLate, result)
}

func TestColumnReconstructor_FullColumnsSkipsRecovery(t *testing.T) {
	r := NewColumnReconstructor()
	var commitment kzg.Commitment
	for i := uint64(0); i < primitives.NumberOfColumns; i++ {
		require.NoError(t, r.RecordColumn(2, ColumnIndex(i), kzg.Cell{byte(i)}, commitment))
	}
	result, _, _, err := r.Reconstruct(2, false)
	require.NoError(t, err)
	require.Equal(t, NotAttemptedFull, result)
}

func TestColumnReconstructor_UnknownBlobIsNotAttemptedFull(t *testing.T) {
	r := NewColumnReconstructor()
	result, _, _, err := r.Reconstruct(99, false)
	require.NoError(t, err)
	require.Equal(t, NotAttemptedFull, result)
}

func TestColumnReconstructor_InvalidColumnIndex(t *testing.T) {
	r := NewColumnReconstructor()
	var commitment kzg.Commitment
	err := r.RecordColumn(0, ColumnIndex(primitives.NumberOfColumns), kzg.Cell{}, commitment)
	require.ErrorIs(t, err, ErrInvalidColumnIndex)
}

func TestColumnReconstructor_Reset(t *testing.T) {
	r := NewColumnReconstructor()
	var commitment kzg.Commitment
	require.NoError(t, r.RecordColumn(0, 0, kzg.Cell{}, commitment))
	require.Equal(t, 1, r.ReceivedColumnCount(0))
	r.Reset()
	require.Equal(t, 0, r.ReceivedColumnCount(0))
}
