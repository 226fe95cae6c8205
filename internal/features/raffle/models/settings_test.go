package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, int64(5000), s.Prize(100, 1))
	assert.Equal(t, int64(1000), s.Prize(100, 3))
	assert.Zero(t, s.Prize(100, 4))
	assert.Zero(t, s.Prize(400, 1))
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"no denominations", func(s *Settings) { s.Denominations = nil }},
		{"zero pool", func(s *Settings) { s.PoolSize = 0 }},
		{"duplicate denomination", func(s *Settings) { s.Denominations = []int{100, 100} }},
		{"missing prizes", func(s *Settings) { s.Rewards[200] = []int64{1} }},
		{"min entries below winners", func(s *Settings) { s.MinDrawEntries = 2 }},
		{"unknown referral denomination", func(s *Settings) { s.ReferralBonusDenomination = 500 }},
		{"zero loyalty threshold", func(s *Settings) { s.LoyaltyThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSettingsCloneIsDeep(t *testing.T) {
	s := DefaultSettings()
	c := s.Clone()
	c.Denominations[0] = 1
	c.Rewards[100][0] = 1

	assert.Equal(t, 100, s.Denominations[0])
	assert.Equal(t, int64(5000), s.Rewards[100][0])
}

func TestPoolStatsSoldOut(t *testing.T) {
	assert.False(t, PoolStats{PoolSize: 3, Sold: 3}.SoldOut())
	assert.False(t, PoolStats{RoundID: 1, PoolSize: 3, Sold: 2, Available: 1}.SoldOut())
	assert.True(t, PoolStats{RoundID: 1, PoolSize: 3, Sold: 3}.SoldOut())
}

func TestReferralCodeFor(t *testing.T) {
	assert.Equal(t, "ref_z", ReferralCodeFor(35))
	assert.NotEqual(t, ReferralCodeFor(1), ReferralCodeFor(2))
}
