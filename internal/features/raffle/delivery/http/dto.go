package http

import (
	"raffle-backend/internal/features/raffle/models"
)

type DenominationResponse struct {
	Denomination int     `json:"denomination"`
	RoundID      int64   `json:"round_id"`
	PoolSize     int     `json:"pool_size"`
	Available    int     `json:"available"`
	Sold         int     `json:"sold"`
	Prizes       []int64 `json:"prizes"`
}

type DenominationsResponse struct {
	Denominations             []DenominationResponse `json:"denominations"`
	LoyaltyThreshold          int                    `json:"loyalty_threshold"`
	ReferralThreshold         int                    `json:"referral_threshold"`
	ReferralBonusDenomination int                    `json:"referral_bonus_denomination"`
}

type AvailableTicketsResponse struct {
	Denomination int   `json:"denomination"`
	Numbers      []int `json:"numbers"`
}

type RegisterRequest struct {
	ReferralCode string `json:"referral_code"`
}

type AccountResponse struct {
	*models.Account
	Created bool `json:"created"`
}

type SubmitPaymentRequest struct {
	Denomination int    `json:"denomination" binding:"required"`
	TicketNumber int    `json:"ticket_number" binding:"required"`
	ProofRef     string `json:"proof_ref" binding:"required"`
}

type RejectPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type VerifyTicketRequest struct {
	BuyerID      int64 `json:"buyer_id" binding:"required"`
	TicketNumber int   `json:"ticket_number" binding:"required"`
	Denomination int   `json:"denomination" binding:"required"`
}

type DrawsResponse struct {
	Draws []*models.Draw `json:"draws"`
}

type PendingPaymentsResponse struct {
	Payments []*models.PendingPayment `json:"payments"`
}

type PoolStatsResponse struct {
	Pools []*models.PoolStats `json:"pools"`
}
