package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lottoworks/drawstack/common/messaging"
)

// JetStreamClient extends Client with JetStream persistence capabilities.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64

	// Duplicates is the window in which a repeated Nats-Msg-Id is dropped.
	Duplicates time.Duration

	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a durable pull consumer.
type ConsumerConfig struct {
	// Name is the durable consumer name.
	Name string

	// FilterSubject filters which messages this consumer receives.
	FilterSubject string

	// AckWait is time to wait for acknowledgment before redelivery.
	AckWait time.Duration

	// MaxDeliver is maximum delivery attempts before giving up. -1 is unlimited.
	MaxDeliver int

	// MaxAckPending is maximum unacknowledged messages.
	MaxAckPending int
}

// DefaultConsumerConfig returns sensible defaults for a consumer.
func DefaultConsumerConfig(name, filterSubject string) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: filterSubject,
		AckWait:       30 * time.Second,
		MaxDeliver:    -1,
		MaxAckPending: 100,
	}
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{
		Client: client,
		js:     js,
	}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   cfg.MaxBytes,
		MaxMsgs:    cfg.MaxMsgs,
		Duplicates: cfg.Duplicates,
		Retention:  cfg.Retention,
		Storage:    cfg.Storage,
	}

	stream, err := c.js.CreateOrUpdateStream(ctx, streamCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}

	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}

	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, consumerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}

	return consumer, nil
}

// PublishWithID publishes with a Nats-Msg-Id so the stream drops a repeat of
// the same id inside its duplicate window.
func (c *JetStreamClient) PublishWithID(ctx context.Context, subject string, data []byte, msgID string) error {
	ack, err := c.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	if ack.Duplicate {
		c.logger.Debug("duplicate publish dropped by stream",
			slog.String("subject", subject),
			slog.String("msg_id", msgID))
	}
	return nil
}

// PullSource returns a BatchSource over an existing durable consumer.
func (c *JetStreamClient) PullSource(ctx context.Context, streamName, consumerName string) (*PullSource, error) {
	consumer, err := c.js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", consumerName, err)
	}
	return &PullSource{consumer: consumer}, nil
}

// PullSource implements messaging.BatchSource with JetStream pull fetches.
type PullSource struct {
	consumer jetstream.Consumer
}

var _ messaging.BatchSource = (*PullSource)(nil)

// Fetch waits up to wait for at most max messages.
func (p *PullSource) Fetch(ctx context.Context, max int, wait time.Duration) ([]messaging.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch, err := p.consumer.Fetch(max, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	deliveries := make([]messaging.Delivery, 0, max)
	for msg := range batch.Messages() {
		deliveries = append(deliveries, &jsDelivery{msg: msg})
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return deliveries, fmt.Errorf("fetch: %w", err)
	}
	return deliveries, nil
}

type jsDelivery struct {
	msg jetstream.Msg
}

func (d *jsDelivery) Message() *messaging.Message {
	m := &messaging.Message{
		Subject:  d.msg.Subject(),
		Data:     d.msg.Data(),
		Metadata: headersToMap(d.msg.Headers()),
	}
	if meta, err := d.msg.Metadata(); err == nil {
		m.Timestamp = meta.Timestamp
	} else {
		m.Timestamp = time.Now()
	}
	return m
}

func (d *jsDelivery) Ack() error  { return d.msg.Ack() }
func (d *jsDelivery) Nak() error  { return d.msg.Nak() }
func (d *jsDelivery) Term() error { return d.msg.Term() }

// Streams used by the draw stack.
var (
	// LotteryFeedsStream captures the inbound lottery feeds.
	LotteryFeedsStream = StreamConfig{
		Name: "LOTTERY_FEEDS",
		Subjects: []string{
			messaging.SubjectScheduleCreated,
			messaging.SubjectWinnersConfigured,
			messaging.SubjectTicketsSold,
			messaging.SubjectResultsImported,
		},
		MaxAge:     7 * 24 * time.Hour,
		MaxBytes:   1024 * 1024 * 1024, // 1GB
		MaxMsgs:    10000000,
		Duplicates: 2 * time.Minute,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
	}

	// LotteryResultsStream captures exported draw results.
	LotteryResultsStream = StreamConfig{
		Name:       "LOTTERY_RESULTS",
		Subjects:   []string{messaging.SubjectResultsDrawn},
		MaxAge:     30 * 24 * time.Hour,
		MaxBytes:   512 * 1024 * 1024, // 512MB
		MaxMsgs:    1000000,
		Duplicates: 2 * time.Minute,
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
	}

	// LotteryDLQStream keeps messages that failed permanently.
	LotteryDLQStream = StreamConfig{
		Name:      "LOTTERY_DLQ",
		Subjects:  []string{messaging.SubjectDLQPrefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  100 * 1024 * 1024, // 100MB
		MaxMsgs:   100000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
)
