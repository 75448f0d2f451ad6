package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const relayQueueSize = 1024

// MessageWriter is the part of kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRelay forwards bus events to a Kafka topic for downstream consumers.
// Messages are keyed by owner id so one owner's events stay ordered.
type KafkaRelay struct {
	writer MessageWriter
	queue  chan Event
	logger zerolog.Logger
}

// NewKafkaRelay builds a relay writing to topic on the given brokers.
func NewKafkaRelay(brokers []string, topic string, logger *zerolog.Logger) *KafkaRelay {
	return NewKafkaRelayWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}, logger)
}

func NewKafkaRelayWithWriter(w MessageWriter, logger *zerolog.Logger) *KafkaRelay {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "kafka_relay").Logger()
	}
	return &KafkaRelay{writer: w, queue: make(chan Event, relayQueueSize), logger: l}
}

// Attach subscribes the relay to every event type on bus.
func (r *KafkaRelay) Attach(bus *EventBus) {
	for _, t := range AllTypes {
		bus.Subscribe(t, r.enqueue)
	}
}

func (r *KafkaRelay) enqueue(e Event) error {
	select {
	case r.queue <- e:
		return nil
	default:
		return fmt.Errorf("kafka relay queue full, dropped %s for owner %s", e.Type, e.OwnerID)
	}
}

// Run writes queued events until ctx is done, then flushes what is left and closes the writer.
func (r *KafkaRelay) Run(ctx context.Context) {
	defer func() {
		if err := r.writer.Close(); err != nil {
			r.logger.Error().Err(err).Msg("close kafka writer")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case e := <-r.queue:
			r.write(ctx, e)
		}
	}
}

func (r *KafkaRelay) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *KafkaRelay) write(ctx context.Context, e Event) {
	msg, err := Message(e)
	if err != nil {
		r.logger.Error().Err(err).Str("type", e.Type).Msg("encode event")
		return
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.logger.Error().Err(err).Str("type", e.Type).Str("owner_id", e.OwnerID).Msg("publish event to kafka")
		return
	}
	r.logger.Debug().Str("type", e.Type).Str("owner_id", e.OwnerID).Msg("event published")
}

// Message encodes an event as a Kafka message.
func Message(e Event) (kafka.Message, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.OwnerID),
		Value: payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
