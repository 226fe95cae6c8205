package models

import "time"

type TicketState string

const (
	TicketAvailable TicketState = "available"
	TicketSold      TicketState = "sold"
)

type FreeReason string

const (
	FreeReasonNone     FreeReason = ""
	FreeReasonLoyalty  FreeReason = "loyalty_bonus"
	FreeReasonReferral FreeReason = "referral_bonus"
)

// Ticket is one numbered slot of a denomination pool in a given round.
type Ticket struct {
	Denomination int         `json:"denomination"`
	Number       int         `json:"number"`
	RoundID      int64       `json:"round_id"`
	State        TicketState `json:"state"`
	Owner        int64       `json:"owner,omitempty"`
	IsFree       bool        `json:"is_free"`
	FreeReason   FreeReason  `json:"free_reason,omitempty"`
	SaleID       string      `json:"sale_id,omitempty"`
	SoldAt       *time.Time  `json:"sold_at,omitempty"`
}

// PoolStats summarizes the active round of a denomination.
type PoolStats struct {
	Denomination int   `json:"denomination"`
	RoundID      int64 `json:"round_id"`
	PoolSize     int   `json:"pool_size"`
	Available    int   `json:"available"`
	Sold         int   `json:"sold"`
}

// Total is the number of tickets that exist in the round.
func (s PoolStats) Total() int {
	return s.Available + s.Sold
}

// SoldOut reports whether every ticket of a complete round is sold.
func (s PoolStats) SoldOut() bool {
	return s.RoundID != 0 && s.Sold >= s.PoolSize
}
