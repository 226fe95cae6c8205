package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-backend/internal/features/raffle/models"
)

type fakeSender struct {
	sent []Message
	fail map[int64]bool
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	if f.fail[chatID] {
		return errors.New("blocked")
	}
	f.sent = append(f.sent, Message{ChatID: chatID, Text: text})
	return nil
}

func TestEventValuesRoundTrip(t *testing.T) {
	evt := Event{
		Type:         EventDrawCompleted,
		Denomination: 200,
		RoundID:      7,
		Winners: []models.Winner{
			{Rank: 1, TicketNumber: 12, BuyerID: 5, Prize: 10000},
			{Rank: 2, TicketNumber: 40, BuyerID: 6, Prize: 4000},
		},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	// Redis returns every field as a string.
	raw := make(map[string]interface{})
	for k, v := range evt.Values() {
		raw[k] = v.(string)
	}
	got, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, evt, got)
}

func TestParseEventRejectsMissingType(t *testing.T) {
	_, err := ParseEvent(map[string]interface{}{"user_id": "1"})
	assert.Error(t, err)
}

func TestRenderRouting(t *testing.T) {
	svc := NewService(nil, []int64{100, 101}, -1001)

	tests := []struct {
		name  string
		evt   Event
		chats []int64
	}{
		{"user event", Event{Type: EventTicketActivated, UserID: 9, TicketNumber: 3, Denomination: 100}, []int64{9}},
		{"admin event", Event{Type: EventPaymentSubmitted, UserID: 9, PaymentID: "p1"}, []int64{100, 101}},
		{"channel event", Event{Type: EventRoundStarted, Denomination: 300}, []int64{-1001}},
		{"unknown", Event{Type: "other"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chats []int64
			for _, m := range svc.Render(tt.evt) {
				chats = append(chats, m.ChatID)
			}
			assert.Equal(t, tt.chats, chats)
		})
	}
}

func TestDeliverAttemptsEveryRecipient(t *testing.T) {
	sender := &fakeSender{fail: map[int64]bool{100: true}}
	svc := NewService(sender, []int64{100, 101}, 0)

	err := svc.Deliver(context.Background(), Event{Type: EventDrawPostponed, Denomination: 100, RoundID: 2, Reason: "insufficient entries"})
	require.Error(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(101), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "insufficient entries")
}

func TestPrizeMessage(t *testing.T) {
	svc := NewService(nil, nil, 0)
	msgs := svc.Render(Event{Type: EventPrizeWon, UserID: 4, Rank: 2, TicketNumber: 17, Denomination: 300, Amount: 6000})
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "2nd place")
	assert.Contains(t, msgs[0].Text, "6000 Birr")
}
