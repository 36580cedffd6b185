package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"celestia/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ErrForwarderFull is returned when the forward buffer cannot take an event.
var ErrForwarderFull = errors.New("kafka forwarder buffer is full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder publishes bus events to a Kafka topic off the request path.
type KafkaForwarder struct {
	writer       messageWriter
	buffer       chan *Event
	writeTimeout time.Duration
	logger       *zerolog.Logger
}

func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaForwarder(writer messageWriter, bufferSize int, logger *zerolog.Logger) *KafkaForwarder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &KafkaForwarder{
		writer:       writer,
		buffer:       make(chan *Event, bufferSize),
		writeTimeout: 5 * time.Second,
		logger:       logger,
	}
}

// Handle is an EventHandler; subscribe it with EventBus.SubscribeAll.
func (f *KafkaForwarder) Handle(event *Event) error {
	select {
	case f.buffer <- event:
		return nil
	default:
		return ErrForwarderFull
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (f *KafkaForwarder) Run(ctx context.Context) {
	f.logger.Info().Msg("Kafka forwarder started")
	defer f.logger.Info().Msg("Kafka forwarder stopped")

	for {
		select {
		case <-ctx.Done():
			f.drain()
			return
		case event := <-f.buffer:
			f.write(context.Background(), event)
		}
	}
}

func (f *KafkaForwarder) drain() {
	for {
		select {
		case event := <-f.buffer:
			f.write(context.Background(), event)
		default:
			return
		}
	}
}

func (f *KafkaForwarder) write(ctx context.Context, event *Event) {
	msg, err := toMessage(event)
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, f.writeTimeout)
	defer cancel()
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("Failed to forward event to Kafka")
	}
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

// toMessage keys events by aggregate id so one booking's events stay ordered.
func toMessage(event *Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}

	var ids struct {
		BookingID string `json:"bookingId"`
		UserID    string `json:"userId"`
	}
	_ = json.Unmarshal(event.Payload, &ids)
	key := ids.BookingID
	if key == "" {
		key = ids.UserID
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}
