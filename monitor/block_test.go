package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainforge/beacon-core/primitives"
)

func TestProcessBlockInclusion_IgnoresUntrackedProposer(t *testing.T) {
	s := NewService([]primitives.ValidatorIndex{1})
	s.ProcessBlockInclusion(2, 10)
	_, ok := s.Summary(2)
	require.False(t, ok)
}

func TestProcessBlockInclusion_AccumulatesAcrossCalls(t *testing.T) {
	s := NewService([]primitives.ValidatorIndex{1})
	s.ProcessBlockInclusion(1, 10)
	s.ProcessBlockInclusion(1, 42)
	s.ProcessBlockInclusion(1, 74)

	p, ok := s.Summary(1)
	require.True(t, ok)
	require.Equal(t, 3, p.BlocksProposed)
}
