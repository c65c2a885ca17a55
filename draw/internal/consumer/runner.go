// Package consumer runs the fetch → apply → ack loop over a durable feed.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/common/messaging"
	"github.com/lottoworks/drawstack/draw/internal/metrics"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// ErrHalted is returned by Run when StopOnFailure stopped the loop.
var ErrHalted = errors.New("consumer halted after failure")

// Handler applies one message. Errors classified by model.IsPermanent are
// dead-lettered, all others are redelivered.
type Handler func(ctx context.Context, msg *messaging.Message) error

// DeadLetterWriter stores messages that can never be applied.
type DeadLetterWriter interface {
	Write(ctx context.Context, msg *messaging.Message, cause error) error
}

// Config controls one Runner.
type Config struct {
	// Name is the durable consumer name, used in logs and metrics.
	Name          string
	BatchSize     int
	FetchWait     time.Duration
	StopOnFailure bool
	// RetryDelay is the pause after a failed fetch. Defaults to one second.
	RetryDelay time.Duration
}

// Runner pulls batches from a BatchSource and applies each message in order.
// Stop requests are honoured between batches only.
type Runner struct {
	cfg     Config
	source  messaging.BatchSource
	handler Handler
	dlq     DeadLetterWriter
	logger  *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRunner creates a Runner. dlq may be nil, in which case permanent
// failures are terminated without being stored.
func NewRunner(cfg Config, source messaging.BatchSource, handler Handler, dlq DeadLetterWriter, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		source:  source,
		handler: handler,
		dlq:     dlq,
		logger: logger.With(
			slog.String(logging.FieldComponent, "consumer"),
			logging.Consumer(cfg.Name)),
		stop: make(chan struct{}),
	}
}

// Stop asks the loop to exit after the current batch.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Runner) stopping(ctx context.Context) bool {
	select {
	case <-r.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Run blocks until ctx is cancelled, Stop is called, or a transient failure
// halts the loop under StopOnFailure.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("consumer started",
		slog.Int("batch_size", r.cfg.BatchSize),
		slog.Bool("stop_on_failure", r.cfg.StopOnFailure))
	defer r.logger.Info("consumer stopped")

	for !r.stopping(ctx) {
		deliveries, err := r.source.Fetch(ctx, r.cfg.BatchSize, r.cfg.FetchWait)
		if err != nil && len(deliveries) == 0 {
			if r.stopping(ctx) {
				break
			}
			r.logger.Warn("fetch failed", logging.Error(err))
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-r.stop:
			case <-ctx.Done():
			}
			continue
		}

		if halted := r.processBatch(ctx, deliveries); halted {
			return ErrHalted
		}
	}
	return nil
}

// processBatch applies deliveries in order. It reports true when the loop
// must halt; the unprocessed rest of the batch is released for redelivery.
func (r *Runner) processBatch(ctx context.Context, deliveries []messaging.Delivery) bool {
	for i, d := range deliveries {
		if failed := r.process(ctx, d); failed && r.cfg.StopOnFailure {
			for _, rest := range deliveries[i+1:] {
				if err := rest.Nak(); err != nil {
					r.logger.Warn("failed to release message", logging.Error(err))
				}
			}
			r.logger.Error("halting consumer after failure",
				slog.Int("released", len(deliveries)-i-1))
			return true
		}
	}
	return false
}

// process handles one delivery and reports whether it failed transiently.
func (r *Runner) process(ctx context.Context, d messaging.Delivery) bool {
	msg := d.Message()
	start := time.Now()
	// In-flight messages finish even when shutdown has begun.
	err := r.handler(context.WithoutCancel(ctx), msg)
	metrics.MessageDuration.WithLabelValues(r.cfg.Name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if ackErr := d.Ack(); ackErr != nil {
			r.logger.Warn("ack failed", logging.Subject(msg.Subject), logging.Error(ackErr))
		}
		metrics.MessagesProcessed.WithLabelValues(r.cfg.Name, "acked").Inc()
		return false

	case model.IsPermanent(err):
		r.logger.Error("message rejected",
			logging.Subject(msg.Subject),
			slog.String("reason", model.FailureReason(err)),
			logging.Error(err))
		if r.dlq != nil {
			if dlqErr := r.dlq.Write(context.WithoutCancel(ctx), msg, err); dlqErr != nil {
				r.logger.Error("dead-letter write failed, message will be redelivered", logging.Error(dlqErr))
				_ = d.Nak()
				metrics.MessagesProcessed.WithLabelValues(r.cfg.Name, "nacked").Inc()
				return true
			}
		}
		if termErr := d.Term(); termErr != nil {
			r.logger.Warn("term failed", logging.Subject(msg.Subject), logging.Error(termErr))
		}
		metrics.MessagesProcessed.WithLabelValues(r.cfg.Name, "dead_lettered").Inc()
		return false

	default:
		r.logger.Warn("message failed, will be redelivered",
			logging.Subject(msg.Subject),
			logging.Error(err))
		if nakErr := d.Nak(); nakErr != nil {
			r.logger.Warn("nak failed", logging.Subject(msg.Subject), logging.Error(nakErr))
		}
		metrics.MessagesProcessed.WithLabelValues(r.cfg.Name, "nacked").Inc()
		return true
	}
}
