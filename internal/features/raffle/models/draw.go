package models

import "time"

// Winner is one ranked result of a draw. Rank starts at 1.
type Winner struct {
	Rank         int    `json:"rank"`
	TicketNumber int    `json:"ticket_number"`
	BuyerID      int64  `json:"buyer_id"`
	SaleID       string `json:"sale_id"`
	Prize        int64  `json:"prize"`
}

// Draw is the outcome of a completed round.
type Draw struct {
	ID           string    `json:"id"`
	Denomination int       `json:"denomination"`
	RoundID      int64     `json:"round_id"`
	Timestamp    time.Time `json:"timestamp"`
	Entries      int       `json:"entries"`
	Winners      []Winner  `json:"winners"`
	Forced       bool      `json:"forced,omitempty"`
}

// TotalPrize sums the prizes of all winners.
func (d *Draw) TotalPrize() int64 {
	var total int64
	for _, w := range d.Winners {
		total += w.Prize
	}
	return total
}
