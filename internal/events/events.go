package events

import "context"

// Event types
const (
	EventContractStatusChanged = "contract_status_changed"
	EventWorkSubmitted         = "work_submitted"
	EventBalanceCredited       = "balance_credited"
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
