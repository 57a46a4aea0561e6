package events

import "context"

// RoundChannel carries every game event; the websocket hub and the bot listen on it.
const RoundChannel = "events:round"

// Event types
const (
	EventRoundCreated        = "round_created"
	EventRoundSettled        = "round_settled"
	EventPredictionSubmitted = "prediction_submitted"
	EventReferralRegistered  = "referral_registered"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// Int64 reads a numeric payload field. JSON decoding turns numbers into float64.
func (e Event) Int64(key string) (int64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event. Used when redis is not wired, e.g. in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
