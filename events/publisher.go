package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

const (
	MessageCreated = "message.created"
	MessageRead    = "message.read"
)

// Event is the envelope published for downstream consumers (notification, analytics)
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

// Publisher emits chat domain events
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, data interface{}) error
	Close() error
}

// NopPublisher drops every event; used when no brokers are configured
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }
func (NopPublisher) Close() error { return nil }

// KafkaPublisher writes events to a single Kafka topic keyed by message id
type KafkaPublisher struct {
	writer *kafkago.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key, eventType string, data interface{}) error {
	b, err := Encode(eventType, data)
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(eventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Encode builds the JSON body of an event
func Encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, OccurredAt: time.Now().UTC(), Data: data})
}
