package notifications

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"raffle-backend/internal/features/raffle/models"
)

type EventType string

const (
	EventTicketActivated  EventType = "ticket_activated"
	EventLoyaltyAwarded   EventType = "loyalty_awarded"
	EventLoyaltyShortfall EventType = "loyalty_shortfall"
	EventReferralAwarded  EventType = "referral_awarded"
	EventPrizeWon         EventType = "prize_won"
	EventDrawCompleted    EventType = "draw_completed"
	EventDrawPostponed    EventType = "draw_postponed"
	EventRoundStarted     EventType = "round_started"
	EventPaymentSubmitted EventType = "payment_submitted"
	EventPaymentRejected  EventType = "payment_rejected"
)

// Event is a flat, stream-friendly description of something users or admins should hear about.
type Event struct {
	Type         EventType
	UserID       int64
	Denomination int
	TicketNumber int
	RoundID      int64
	Amount       int64
	Rank         int
	Reason       string
	PaymentID    string
	ProofRef     string
	Winners      []models.Winner
	Timestamp    time.Time
}

// Values encodes the event as Redis stream fields.
func (e Event) Values() map[string]interface{} {
	values := map[string]interface{}{
		"type":          string(e.Type),
		"user_id":       strconv.FormatInt(e.UserID, 10),
		"denomination":  strconv.Itoa(e.Denomination),
		"ticket_number": strconv.Itoa(e.TicketNumber),
		"round_id":      strconv.FormatInt(e.RoundID, 10),
		"amount":        strconv.FormatInt(e.Amount, 10),
		"rank":          strconv.Itoa(e.Rank),
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if e.Reason != "" {
		values["reason"] = e.Reason
	}
	if e.PaymentID != "" {
		values["payment_id"] = e.PaymentID
	}
	if e.ProofRef != "" {
		values["proof_ref"] = e.ProofRef
	}
	if len(e.Winners) > 0 {
		data, _ := json.Marshal(e.Winners)
		values["winners"] = string(data)
	}
	return values
}

// ParseEvent decodes stream fields produced by Values.
func ParseEvent(values map[string]interface{}) (Event, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	typ := str("type")
	if typ == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	e := Event{
		Type:      EventType(typ),
		Reason:    str("reason"),
		PaymentID: str("payment_id"),
		ProofRef:  str("proof_ref"),
	}

	var err error
	if e.UserID, err = parseInt64(str("user_id")); err != nil {
		return Event{}, fmt.Errorf("user_id: %w", err)
	}
	if e.RoundID, err = parseInt64(str("round_id")); err != nil {
		return Event{}, fmt.Errorf("round_id: %w", err)
	}
	if e.Amount, err = parseInt64(str("amount")); err != nil {
		return Event{}, fmt.Errorf("amount: %w", err)
	}
	den, err := parseInt64(str("denomination"))
	if err != nil {
		return Event{}, fmt.Errorf("denomination: %w", err)
	}
	number, err := parseInt64(str("ticket_number"))
	if err != nil {
		return Event{}, fmt.Errorf("ticket_number: %w", err)
	}
	rank, err := parseInt64(str("rank"))
	if err != nil {
		return Event{}, fmt.Errorf("rank: %w", err)
	}
	e.Denomination, e.TicketNumber, e.Rank = int(den), int(number), int(rank)

	if ts := str("timestamp"); ts != "" {
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return Event{}, fmt.Errorf("timestamp: %w", err)
		}
	}
	if w := str("winners"); w != "" {
		if err := json.Unmarshal([]byte(w), &e.Winners); err != nil {
			return Event{}, fmt.Errorf("winners: %w", err)
		}
	}
	return e, nil
}

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
