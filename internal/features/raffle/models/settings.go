package models

import (
	"fmt"
	"slices"
)

// Settings is the immutable engine configuration. It is copied on construction
// so callers cannot mutate a running engine.
type Settings struct {
	Denominations             []int
	PoolSize                  int
	Rewards                   map[int][]int64
	LoyaltyThreshold          int
	ReferralThreshold         int
	ReferralBonusDenomination int
	MinDrawEntries            int
	WinnersPerDraw            int
}

// DefaultSettings returns the production raffle configuration.
func DefaultSettings() Settings {
	return Settings{
		Denominations: []int{100, 200, 300},
		PoolSize:      100,
		Rewards: map[int][]int64{
			100: {5000, 2000, 1000},
			200: {10000, 4000, 2000},
			300: {15000, 6000, 3000},
		},
		LoyaltyThreshold:          10,
		ReferralThreshold:         10,
		ReferralBonusDenomination: 200,
		MinDrawEntries:            3,
		WinnersPerDraw:            3,
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.Denominations = slices.Clone(s.Denominations)
	out.Rewards = make(map[int][]int64, len(s.Rewards))
	for den, prizes := range s.Rewards {
		out.Rewards[den] = slices.Clone(prizes)
	}
	return out
}

// Validate checks internal consistency.
func (s Settings) Validate() error {
	if len(s.Denominations) == 0 {
		return fmt.Errorf("no denominations configured")
	}
	if s.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", s.PoolSize)
	}
	if s.WinnersPerDraw <= 0 {
		return fmt.Errorf("winners per draw must be positive, got %d", s.WinnersPerDraw)
	}
	if s.MinDrawEntries < s.WinnersPerDraw {
		return fmt.Errorf("min draw entries %d is below winners per draw %d", s.MinDrawEntries, s.WinnersPerDraw)
	}
	if s.LoyaltyThreshold <= 0 || s.ReferralThreshold <= 0 {
		return fmt.Errorf("bonus thresholds must be positive")
	}
	seen := make(map[int]bool, len(s.Denominations))
	for _, den := range s.Denominations {
		if den <= 0 {
			return fmt.Errorf("denomination must be positive, got %d", den)
		}
		if seen[den] {
			return fmt.Errorf("duplicate denomination %d", den)
		}
		seen[den] = true
		if len(s.Rewards[den]) < s.WinnersPerDraw {
			return fmt.Errorf("denomination %d has %d prizes, need %d", den, len(s.Rewards[den]), s.WinnersPerDraw)
		}
	}
	if !seen[s.ReferralBonusDenomination] {
		return fmt.Errorf("referral bonus denomination %d is not configured", s.ReferralBonusDenomination)
	}
	return nil
}

// IsDenomination reports whether den is a configured price tier.
func (s Settings) IsDenomination(den int) bool {
	return slices.Contains(s.Denominations, den)
}

// IsValidNumber reports whether n is a ticket number of a pool.
func (s Settings) IsValidNumber(n int) bool {
	return n >= 1 && n <= s.PoolSize
}

// Prize returns the reward for a 1-based rank, or 0 if the table has no entry.
func (s Settings) Prize(den, rank int) int64 {
	prizes := s.Rewards[den]
	if rank < 1 || rank > len(prizes) {
		return 0
	}
	return prizes[rank-1]
}
