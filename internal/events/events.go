package events

import "context"

// Event types
const (
	EventDealStatusChanged   = "deal_status_changed"
	EventEscrowStatusChanged = "escrow_status_changed"
	EventDealFunded          = "deal_funded"
	EventPayoutSent          = "payout_sent"
	EventBotNotification     = "bot_notification"
)

// Stream names
const (
	StreamDeals         = "events:deal"
	StreamEscrows       = "events:escrow"
	StreamNotifications = "events:notifications"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
