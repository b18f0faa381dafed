package loader

import (
	"context"
	"time"

	"teed-waitlist/internal/scoring"
)

const ConfigChangedEvent = "scoring.config.changed"

// Publisher is satisfied by aws.SNSClient.
type Publisher interface {
	PublishJSON(ctx context.Context, eventType, subject string, payload interface{}) (string, error)
}

type configChangedPayload struct {
	Version   string    `json:"version"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Threshold float64   `json:"threshold"`
	ChangedAt time.Time `json:"changedAt"`
}

// EventNotifier publishes a ConfigChangedEvent for each committed update.
type EventNotifier struct {
	publisher Publisher
}

func NewEventNotifier(p Publisher) *EventNotifier {
	return &EventNotifier{publisher: p}
}

func (n *EventNotifier) ConfigChanged(ctx context.Context, cfg *scoring.Config, updatedBy, reason string) error {
	_, err := n.publisher.PublishJSON(ctx, ConfigChangedEvent, "Waitlist scoring config changed", configChangedPayload{
		Version:   cfg.Metadata.Version,
		UpdatedBy: updatedBy,
		Reason:    reason,
		Threshold: cfg.AutoApproval.Threshold,
		ChangedAt: cfg.Metadata.LastUpdated,
	})
	return err
}
