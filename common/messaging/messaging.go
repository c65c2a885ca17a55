// Package messaging defines the broker abstractions used by the lottery feeds
// and the subjects they travel on.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	// Subject is the topic/channel the message was published to.
	Subject string

	// Data is the raw message payload.
	Data []byte

	// Metadata contains optional key-value pairs for message headers.
	Metadata map[string]string

	// Timestamp is when the message was published.
	Timestamp time.Time
}

// Client is a broker connection that can be health-checked and drained.
type Client interface {
	// Request sends a message and waits for a response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)

	// Drain gracefully closes the connection, allowing in-flight messages to complete.
	Drain() error

	IsConnected() bool

	Close() error
}

// DurablePublisher publishes to a persistent stream. msgID is used by the
// broker to drop re-publishes of the same logical message.
type DurablePublisher interface {
	PublishWithID(ctx context.Context, subject string, data []byte, msgID string) error
}

// Delivery is one message fetched from a durable consumer. Exactly one of
// Ack, Nak or Term should be called once processing is finished.
type Delivery interface {
	Message() *Message

	// Ack marks the message processed.
	Ack() error

	// Nak asks the broker to redeliver the message.
	Nak() error

	// Term tells the broker never to redeliver the message.
	Term() error
}

// BatchSource hands out batches of deliveries from a durable consumer.
// Fetch returns an empty slice, not an error, when nothing arrived within wait.
type BatchSource interface {
	Fetch(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)
}
