// Package bus carries claim and analysis events over Go channels or NATS.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds an envelope, carrying the caller's trace id when the
// context holds a recording span.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata["trace_id"] = sc.TraceID().String()
	}
	return msg
}
