package domain

import "context"

// EventBus moves pipeline events between the API, the analysis service
// and the worker. The community tier uses in-process channels, the pro
// tier NATS.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe delivers every message on topic to handler until the
	// returned subscription is cancelled or the bus is closed.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message. Returned errors are
// logged by the bus; there is no redelivery.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope delivered to handlers.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"` // unix nanoseconds
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the event bus.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string `koanf:"type" json:"type"`

	ChannelBufferSize int `koanf:"channel_buffer_size" json:"channelBufferSize"`

	NATSUrl           string `koanf:"nats_url" json:"natsUrl"`
	NATSToken         string `koanf:"nats_token" json:"-"`
	NATSMaxReconnects int    `koanf:"nats_max_reconnects" json:"natsMaxReconnects"`
	NATSReconnectWait int    `koanf:"nats_reconnect_wait" json:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances deliveries across replicas. Empty means
	// every subscriber receives every message.
	NATSQueueGroup string `koanf:"nats_queue_group" json:"natsQueueGroup"`
}

// Topic names for the claim analysis pipeline.
const (
	TopicClaimSubmitted    = "claimrisk.claim.submitted"
	TopicAnalysisCompleted = "claimrisk.analysis.completed"
	TopicAnalysisAlert     = "claimrisk.analysis.alert"
)

// ClaimSubmittedEvent is the payload of TopicClaimSubmitted.
type ClaimSubmittedEvent struct {
	ClaimID         string `json:"claim_id"`
	ForceReanalysis bool   `json:"force_reanalysis,omitempty"`
}
