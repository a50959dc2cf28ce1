package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/obs"
)

// LogNotifier writes one bill_event line per event.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("session_id", event.SessionID).
		RawJSON("payload", event.Payload).
		Msg("bill_event")
	return nil
}

// MetricsNotifier counts events per topic.
type MetricsNotifier struct{}

// Notify implements Notifier.
func (MetricsNotifier) Notify(_ context.Context, event Event) error {
	obs.RecordBillEvent(event.Topic)
	return nil
}
