package models

import (
	"strconv"
	"time"
)

const referralCodePrefix = "ref_"

// Account is the per-user raffle state.
type Account struct {
	ID                   int64         `json:"id"`
	Username             string        `json:"username,omitempty"`
	FirstName            string        `json:"first_name,omitempty"`
	ReferralCode         string        `json:"referral_code"`
	ReferredBy           int64         `json:"referred_by,omitempty"`
	ReferralCount        int64         `json:"referral_count"`
	ReferralBonusClaimed bool          `json:"referral_bonus_claimed"`
	PurchaseCounts       map[int]int64 `json:"purchase_counts"`
	Balance              int64         `json:"balance"`
	CreatedAt            time.Time     `json:"created_at"`
}

// ReferralCodeFor derives the stable referral code of a user.
func ReferralCodeFor(userID int64) string {
	return referralCodePrefix + strconv.FormatInt(userID, 36)
}

// PurchaseCount returns the purchase counter for a denomination.
func (a *Account) PurchaseCount(den int) int64 {
	if a.PurchaseCounts == nil {
		return 0
	}
	return a.PurchaseCounts[den]
}
