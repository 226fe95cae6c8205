package models

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending_verification"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

const RejectReasonTicketUnavailable = "ticket_no_longer_available"

// PendingPayment is a buyer's claim of an off-band payment for one ticket.
type PendingPayment struct {
	ID           string        `json:"id"`
	BuyerID      int64         `json:"buyer_id"`
	Denomination int           `json:"denomination"`
	Number       int           `json:"number"`
	ProofRef     string        `json:"proof_ref"`
	Status       PaymentStatus `json:"status"`
	Timestamp    time.Time     `json:"timestamp"`
	ReviewedBy   int64         `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty"`
	SaleID       string        `json:"sale_id,omitempty"`
}

// PaymentUpdate is applied by a conditional status transition.
type PaymentUpdate struct {
	Status       PaymentStatus
	ReviewedBy   int64
	ReviewedAt   *time.Time
	RejectReason string
	SaleID       string
}

// Apply writes the update onto p.
func (u PaymentUpdate) Apply(p *PendingPayment) {
	p.Status = u.Status
	p.ReviewedBy = u.ReviewedBy
	p.ReviewedAt = u.ReviewedAt
	p.RejectReason = u.RejectReason
	if u.SaleID != "" {
		p.SaleID = u.SaleID
	}
}

// PaymentInstructions are shown to buyers before they submit proof.
type PaymentInstructions struct {
	Bank          string `json:"bank"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Note          string `json:"note,omitempty"`
}
