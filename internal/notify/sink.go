// Package notify decouples the engine from notification delivery. The
// engine emits a domain event on every state transition; delivery
// (email/push/websocket) belongs to an external collaborator and must never
// block or fail the emitting operation.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/seyi-adel/trustvault/internal/domain"
)

type Event struct {
	Type      domain.EscrowEventType
	EscrowID  uuid.UUID
	DisputeID uuid.UUID
	Actor     string
}

// Sink implementations must be fire-and-forget: no error return, no
// blocking on downstream delivery.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LogSink is the default sink: it records the event and nothing more.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event Event) {
	attrs := []any{
		"event_type", event.Type,
		"escrow_id", event.EscrowID,
		"actor", event.Actor,
	}
	if event.DisputeID != uuid.Nil {
		attrs = append(attrs, "dispute_id", event.DisputeID)
	}
	s.logger.Info("domain event", attrs...)
}
