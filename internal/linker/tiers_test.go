package linker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/durkcogs/linkbot/internal/storage"
)

var testTiers = []storage.PatronTier{
	{ID: 1, Role: 1001, Name: "Gold", Priority: 0},
	{ID: 2, Role: 1002, Name: "Silver", Priority: 1},
}

func TestTierForFirstMatchWins(t *testing.T) {
	got := tierFor(testTiers, newRoleSet([]string{"1001", "1002"}))
	require.NotNil(t, got)
	assert.Equal(t, int32(1), got.ID)
}

func TestTierForLowerPriorityRoleOnly(t *testing.T) {
	got := tierFor(testTiers, newRoleSet([]string{"1002", "500"}))
	require.NotNil(t, got)
	assert.Equal(t, int32(2), got.ID)
}

func TestTierForNoMatch(t *testing.T) {
	assert.Nil(t, tierFor(testTiers, newRoleSet([]string{"500"})))
	assert.Nil(t, tierFor(testTiers, newRoleSet(nil)))
}

func TestTierForDeterministic(t *testing.T) {
	roles := newRoleSet([]string{"1002", "1001"})
	first := tierFor(testTiers, roles)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, tierFor(testTiers, roles))
	}
}

func TestNewRoleSetSkipsMalformedIDs(t *testing.T) {
	set := newRoleSet([]string{"1001", "notanid", ""})
	assert.True(t, set.contains(1001))
	assert.Len(t, set, 1)
}
