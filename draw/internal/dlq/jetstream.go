// Package dlq writes messages that can never be applied to the dead-letter stream.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/common/messaging"
	"github.com/lottoworks/drawstack/draw/internal/metrics"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Entry is the document stored for each dead-lettered message.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Raw       string          `json:"raw,omitempty"`
	Error     string          `json:"error"`
	Reason    string          `json:"reason"`
}

// JetStreamQueue publishes dead letters to lottery.dlq.<reason>. Safe for
// use across multiple draw service instances.
type JetStreamQueue struct {
	publisher messaging.DurablePublisher
	logger    *slog.Logger
	written   uint64
	now       func() time.Time
}

// NewJetStreamQueue creates a queue over a durable publisher. The
// LOTTERY_DLQ stream must already exist.
func NewJetStreamQueue(publisher messaging.DurablePublisher, logger *slog.Logger) *JetStreamQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &JetStreamQueue{
		publisher: publisher,
		logger:    logger.With(slog.String(logging.FieldComponent, "dlq")),
		now:       time.Now,
	}
}

// Write records msg with the error that rejected it.
func (q *JetStreamQueue) Write(ctx context.Context, msg *messaging.Message, cause error) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate dlq id: %w", err)
	}

	reason := model.FailureReason(cause)
	entry := Entry{
		ID:        id.String(),
		Timestamp: q.now().UTC(),
		Subject:   msg.Subject,
		Error:     cause.Error(),
		Reason:    reason,
	}
	if json.Valid(msg.Data) {
		entry.Payload = json.RawMessage(msg.Data)
	} else {
		entry.Raw = string(msg.Data)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	subject := messaging.DLQSubject(reason)
	if err := q.publisher.PublishWithID(ctx, subject, data, entry.ID); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	atomic.AddUint64(&q.written, 1)
	metrics.DLQMessages.WithLabelValues(reason).Inc()
	q.logger.Info("message dead-lettered",
		logging.Subject(msg.Subject),
		slog.String("dlq_subject", subject),
		slog.String("dlq_id", entry.ID))
	return nil
}

// Written returns how many entries this process has written.
func (q *JetStreamQueue) Written() uint64 {
	return atomic.LoadUint64(&q.written)
}
