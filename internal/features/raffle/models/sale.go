package models

import "time"

// Sale records the transfer of one ticket to a buyer.
type Sale struct {
	ID           string     `json:"id"`
	Denomination int        `json:"denomination"`
	Number       int        `json:"number"`
	RoundID      int64      `json:"round_id"`
	BuyerID      int64      `json:"buyer_id"`
	Timestamp    time.Time  `json:"timestamp"`
	IsFree       bool       `json:"is_free"`
	FreeReason   FreeReason `json:"free_reason,omitempty"`
}

// SaleRequest asks the allocation layer to sell a specific ticket of the active round.
type SaleRequest struct {
	Denomination int
	Number       int
	BuyerID      int64
	IsFree       bool
	FreeReason   FreeReason
}

// CommitOptions extends a commit with extra writes performed in the same batch.
type CommitOptions struct {
	// ClaimReferral sets the buyer's referral bonus flag; the commit fails if it is already set.
	ClaimReferral bool
}

// CommitResult is what a successful commit observed.
type CommitResult struct {
	Sale *Sale
	// PurchaseCount is the buyer's purchase counter for the denomination after this commit.
	PurchaseCount int64
}
