package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// Header names used to carry the envelope alongside the raw payload.
const (
	headerMessageID = "Claimrisk-Msg-Id"
	headerTimestamp = "Claimrisk-Timestamp"
	headerMetaPfx   = "Claimrisk-Meta-"
)

// NATSBus is the pro-tier event bus. Payloads travel unmodified as the
// NATS message body so non-Go consumers can read analysis events directly.
type NATSBus struct {
	conn       *nats.Conn
	queueGroup string

	mu   sync.Mutex
	subs map[*natsSubscription]struct{}
}

type natsSubscription struct {
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to cfg.NATSUrl, retrying the initial connection up
// to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	attempts := cfg.NATSMaxReconnects
	if attempts <= 0 {
		attempts = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("claimrisk"),
		nats.MaxReconnects(attempts),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 << 20),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var conn *nats.Conn
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if conn, err = nats.Connect(url, opts...); err == nil {
			break
		}
		slog.Warn("nats connect failed", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	slog.Info("nats connected", "url", conn.ConnectedUrl(), "queue_group", cfg.NATSQueueGroup)
	return &NATSBus{
		conn:       conn,
		queueGroup: cfg.NATSQueueGroup,
		subs:       make(map[*natsSubscription]struct{}),
	}, nil
}

// Publish sends payload to the subject named by topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.conn.PublishMsg(encodeNATS(newMessage(ctx, topic, payload))); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe joins the configured queue group, when there is one, so that
// each claim submission is analyzed by a single replica.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	deliver := func(m *nats.Msg) {
		msg := decodeNATS(m)
		if err := handler(ctx, msg); err != nil {
			slog.Error("event handler failed", "topic", msg.Topic, "message_id", msg.ID, "error", err)
		}
	}

	var natsSub *nats.Subscription
	var err error
	if b.queueGroup != "" {
		natsSub, err = b.conn.QueueSubscribe(topic, b.queueGroup, deliver)
	} else {
		natsSub, err = b.conn.Subscribe(topic, deliver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &natsSubscription{bus: b, topic: topic, sub: natsSub}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions so in-flight deliveries complete, then closes
// the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	if b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string { return s.topic }

// encodeNATS maps an envelope onto a NATS message with headers.
func encodeNATS(msg *domain.Message) *nats.Msg {
	m := nats.NewMsg(msg.Topic)
	m.Data = msg.Payload
	m.Header.Set(headerMessageID, msg.ID)
	m.Header.Set(headerTimestamp, strconv.FormatInt(msg.Timestamp, 10))
	for k, v := range msg.Metadata {
		m.Header.Set(headerMetaPfx+k, v)
	}
	return m
}

// decodeNATS rebuilds the envelope. Messages published without headers,
// for example by the nats CLI, get an empty id and the receive time.
func decodeNATS(m *nats.Msg) *domain.Message {
	msg := &domain.Message{
		Topic:     m.Subject,
		Payload:   m.Data,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if m.Header == nil {
		return msg
	}

	msg.ID = m.Header.Get(headerMessageID)
	if ts, err := strconv.ParseInt(m.Header.Get(headerTimestamp), 10, 64); err == nil {
		msg.Timestamp = ts
	}
	for k, vs := range m.Header {
		if key, ok := strings.CutPrefix(k, headerMetaPfx); ok && len(vs) > 0 {
			msg.Metadata[key] = vs[0]
		}
	}
	return msg
}
