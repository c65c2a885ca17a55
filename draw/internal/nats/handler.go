package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/common/messaging"
	natsclient "github.com/lottoworks/drawstack/common/messaging/nats"
	"github.com/lottoworks/drawstack/draw/internal/consumer"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Applier applies decoded feed records to the stores.
type Applier interface {
	ApplySchedule(ctx context.Context, rec model.ScheduleRecord) error
	ApplyWinnerConfig(ctx context.Context, cfg model.WinnerConfig) error
	ApplyTicketSale(ctx context.Context, sale model.TicketSale) error
	ApplyWinnerResults(ctx context.Context, result model.DrawResult) error
}

// FeedConfig controls the feed consumers.
type FeedConfig struct {
	BatchSize     int
	FetchWait     time.Duration
	AckWait       time.Duration
	StopOnFailure bool
}

type feed struct {
	consumer string
	subject  string
	handle   consumer.Handler
}

// Handler runs one durable pull consumer per inbound feed.
type Handler struct {
	applier Applier
	dlq     consumer.DeadLetterWriter
	cfg     FeedConfig
	logger  *slog.Logger

	runners []*consumer.Runner
	wg      sync.WaitGroup
}

// NewHandler creates a new feed handler.
func NewHandler(applier Applier, dlq consumer.DeadLetterWriter, cfg FeedConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		applier: applier,
		dlq:     dlq,
		cfg:     cfg,
		logger:  logger.With(slog.String(logging.FieldComponent, "feeds")),
	}
}

func (h *Handler) feeds() []feed {
	return []feed{
		{messaging.ConsumerSchedule, messaging.SubjectScheduleCreated, h.handleSchedule},
		{messaging.ConsumerWinnerConfig, messaging.SubjectWinnersConfigured, h.handleWinnerConfig},
		{messaging.ConsumerTicketSales, messaging.SubjectTicketsSold, h.handleTicketSale},
		{messaging.ConsumerWinnerResults, messaging.SubjectResultsImported, h.handleWinnerResults},
	}
}

// SetupStreams creates the streams used by the draw service.
func SetupStreams(ctx context.Context, js *natsclient.JetStreamClient) error {
	for _, cfg := range []natsclient.StreamConfig{
		natsclient.LotteryFeedsStream,
		natsclient.LotteryResultsStream,
		natsclient.LotteryDLQStream,
	} {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// Start creates the durable consumers and starts a runner for each.
func (h *Handler) Start(ctx context.Context, js *natsclient.JetStreamClient) error {
	stream := natsclient.LotteryFeedsStream.Name
	for _, f := range h.feeds() {
		cc := natsclient.DefaultConsumerConfig(f.consumer, f.subject)
		if h.cfg.AckWait > 0 {
			cc.AckWait = h.cfg.AckWait
		}
		if h.cfg.BatchSize > cc.MaxAckPending {
			cc.MaxAckPending = h.cfg.BatchSize
		}
		if _, err := js.CreateOrUpdateConsumer(ctx, stream, cc); err != nil {
			return err
		}

		source, err := js.PullSource(ctx, stream, f.consumer)
		if err != nil {
			return err
		}
		h.startRunner(ctx, f, source)
	}

	h.logger.Info("feed consumers started", slog.Int("consumers", len(h.runners)))
	return nil
}

func (h *Handler) startRunner(ctx context.Context, f feed, source messaging.BatchSource) {
	runner := consumer.NewRunner(consumer.Config{
		Name:          f.consumer,
		BatchSize:     h.cfg.BatchSize,
		FetchWait:     h.cfg.FetchWait,
		StopOnFailure: h.cfg.StopOnFailure,
	}, source, f.handle, h.dlq, h.logger)
	h.runners = append(h.runners, runner)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		err := runner.Run(ctx)
		switch {
		case errors.Is(err, consumer.ErrHalted):
			h.logger.Error("feed consumer halted", logging.Consumer(f.consumer))
		case err != nil && !errors.Is(err, context.Canceled):
			h.logger.Error("feed consumer stopped", logging.Consumer(f.consumer), logging.Error(err))
		}
	}()
}

// Stop asks every runner to finish its current batch and waits for them.
func (h *Handler) Stop() {
	for _, r := range h.runners {
		r.Stop()
	}
	h.wg.Wait()
	h.runners = nil
	h.logger.Info("feed consumers stopped")
}

func (h *Handler) handleSchedule(ctx context.Context, msg *messaging.Message) error {
	var rec model.ScheduleRecord
	if err := decode(msg, &rec); err != nil {
		return err
	}
	return h.applier.ApplySchedule(ctx, rec)
}

func (h *Handler) handleWinnerConfig(ctx context.Context, msg *messaging.Message) error {
	var cfg model.WinnerConfig
	if err := decode(msg, &cfg); err != nil {
		return err
	}
	return h.applier.ApplyWinnerConfig(ctx, cfg)
}

func (h *Handler) handleTicketSale(ctx context.Context, msg *messaging.Message) error {
	var sale model.TicketSale
	if err := decode(msg, &sale); err != nil {
		return err
	}
	return h.applier.ApplyTicketSale(ctx, sale)
}

func (h *Handler) handleWinnerResults(ctx context.Context, msg *messaging.Message) error {
	var result model.DrawResult
	if err := decode(msg, &result); err != nil {
		return err
	}
	if err := h.applier.ApplyWinnerResults(ctx, result); err != nil {
		return fmt.Errorf("lottery %d: %w", result.LotteryID, err)
	}
	return nil
}
