package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"raffle-backend/internal/features/raffle/models"
)

// Sender delivers a plain text message to a Telegram chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Message is one rendered outbound message.
type Message struct {
	ChatID int64
	Text   string
}

// Service formats raffle events and sends them to users, admins and the announcement channel.
type Service struct {
	sender    Sender
	adminIDs  []int64
	channelID int64
}

func NewService(sender Sender, adminIDs []int64, channelID int64) *Service {
	return &Service{sender: sender, adminIDs: adminIDs, channelID: channelID}
}

// Deliver renders evt and sends every resulting message. All sends are attempted.
func (s *Service) Deliver(ctx context.Context, evt Event) error {
	if s == nil || s.sender == nil {
		return nil
	}
	var errs []error
	for _, msg := range s.Render(evt) {
		if err := s.sender.SendMessage(ctx, msg.ChatID, msg.Text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", msg.ChatID, err))
		}
	}
	return errors.Join(errs...)
}

// Render maps an event to its recipients and texts.
func (s *Service) Render(evt Event) []Message {
	switch evt.Type {
	case EventTicketActivated:
		return s.toUser(evt, fmt.Sprintf("✅ Your ticket #%d in the %d Birr pool is confirmed.%s",
			evt.TicketNumber, evt.Denomination, freeSuffix(evt.Reason)))
	case EventLoyaltyAwarded:
		return s.toUser(evt, fmt.Sprintf("🎁 Loyalty bonus! You received free ticket #%d in the %d Birr pool.",
			evt.TicketNumber, evt.Denomination))
	case EventLoyaltyShortfall:
		return s.toUser(evt, fmt.Sprintf("🎁 You earned a loyalty bonus ticket, but the %d Birr pool has no tickets left.",
			evt.Denomination))
	case EventReferralAwarded:
		return s.toUser(evt, fmt.Sprintf("🤝 Referral bonus! You received free ticket #%d in the %d Birr pool.",
			evt.TicketNumber, evt.Denomination))
	case EventPrizeWon:
		return s.toUser(evt, fmt.Sprintf("🏆 Congratulations! Ticket #%d took %s place in the %d Birr draw. %d Birr was added to your balance.",
			evt.TicketNumber, ordinal(evt.Rank), evt.Denomination, evt.Amount))
	case EventPaymentRejected:
		return s.toUser(evt, fmt.Sprintf("❌ Your payment for ticket #%d in the %d Birr pool was rejected (%s).",
			evt.TicketNumber, evt.Denomination, html.EscapeString(rejectText(evt.Reason))))
	case EventDrawCompleted:
		return s.toChannel(buildDrawMessage(evt))
	case EventRoundStarted:
		return s.toChannel(fmt.Sprintf("🎟 A new round of the %d Birr raffle has started. Pick your lucky number!", evt.Denomination))
	case EventDrawPostponed:
		return s.toAdmins(fmt.Sprintf("⚠️ Draw for the %d Birr pool (round %d) was postponed: %s",
			evt.Denomination, evt.RoundID, evt.Reason))
	case EventPaymentSubmitted:
		return s.toAdmins(fmt.Sprintf("💳 New payment %s\nUser: %d\nTicket: #%d (%d Birr)\nProof: %s\nVerify: /verify %d %d %d",
			evt.PaymentID, evt.UserID, evt.TicketNumber, evt.Denomination, html.EscapeString(evt.ProofRef),
			evt.UserID, evt.TicketNumber, evt.Denomination))
	default:
		return nil
	}
}

func (s *Service) toUser(evt Event, text string) []Message {
	if evt.UserID == 0 {
		return nil
	}
	return []Message{{ChatID: evt.UserID, Text: text}}
}

func (s *Service) toAdmins(text string) []Message {
	out := make([]Message, 0, len(s.adminIDs))
	for _, id := range s.adminIDs {
		out = append(out, Message{ChatID: id, Text: text})
	}
	return out
}

func (s *Service) toChannel(text string) []Message {
	if s.channelID == 0 {
		return nil
	}
	return []Message{{ChatID: s.channelID, Text: text}}
}

func buildDrawMessage(evt Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 %d Birr raffle results (round %d)\n", evt.Denomination, evt.RoundID)
	for _, w := range evt.Winners {
		fmt.Fprintf(&b, "%s place: ticket #%d, %d Birr\n", ordinal(w.Rank), w.TicketNumber, w.Prize)
	}
	return strings.TrimRight(b.String(), "\n")
}

func freeSuffix(reason string) string {
	switch models.FreeReason(reason) {
	case models.FreeReasonLoyalty:
		return " (loyalty bonus)"
	case models.FreeReasonReferral:
		return " (referral bonus)"
	}
	return ""
}

func rejectText(reason string) string {
	if reason == models.RejectReasonTicketUnavailable {
		return "the ticket was sold to someone else, please pick another number"
	}
	if reason == "" {
		return "no reason given"
	}
	return reason
}

func ordinal(rank int) string {
	switch rank {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	}
	return fmt.Sprintf("%dth", rank)
}
