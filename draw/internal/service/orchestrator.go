// Package service drives lotteries through SCHEDULED → DUE → DRAWN → EXPORTED.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/draw/internal/audit"
	"github.com/lottoworks/drawstack/draw/internal/metrics"
	"github.com/lottoworks/drawstack/draw/internal/repository"
	"github.com/lottoworks/drawstack/draw/pkg/engine"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// ErrNoTickets is returned when a due lottery has an empty ticket pool. The
// lottery stays due and is retried by the next batch.
var ErrNoTickets = errors.New("lottery has no tickets")

// ErrNotDue is returned by DrawLottery when the stored lottery is not
// draw-eligible, typically because another caller drew it first.
var ErrNotDue = errors.New("lottery is not due")

// Drawer selects winners from a ticket pool.
type Drawer interface {
	Draw(pool []string, q engine.Quota) engine.Result
}

// ResultPublisher exports a lottery's winners.
type ResultPublisher interface {
	PublishDrawResult(ctx context.Context, result *model.DrawResult) error
}

// DrawOutcome describes one completed draw.
type DrawOutcome struct {
	LotteryID int64          `json:"lottery_id"`
	Winners   []model.Winner `json:"winners"`
	PoolSize  int            `json:"pool_size"`
	Seed      string         `json:"seed,omitempty"`
	Reused    bool           `json:"reused_existing_winners"`
}

// Failure is one lottery that could not be processed.
type Failure struct {
	LotteryID int64  `json:"lottery_id"`
	Error     string `json:"error"`
	Permanent bool   `json:"permanent"`
}

// BatchResult summarizes a RunDueDraws or RunExports call.
type BatchResult struct {
	Processed int       `json:"processed"`
	Succeeded []int64   `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{Succeeded: []int64{}, Failed: []Failure{}}
}

func (b *BatchResult) record(lotteryID int64, err error) {
	b.Processed++
	if err == nil {
		b.Succeeded = append(b.Succeeded, lotteryID)
		return
	}
	b.Failed = append(b.Failed, Failure{
		LotteryID: lotteryID,
		Error:     err.Error(),
		Permanent: model.IsPermanent(err),
	})
}

// Orchestrator runs draws and exports. Calls are serialized within a process.
type Orchestrator struct {
	tickets   repository.TicketStore
	schedule  repository.ScheduleStore
	drawer    Drawer
	publisher ResultPublisher
	audit     audit.Recorder
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithAuditRecorder sets where completed draws are recorded.
func WithAuditRecorder(r audit.Recorder) Option {
	return func(o *Orchestrator) { o.audit = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(tickets repository.TicketStore, schedule repository.ScheduleStore, drawer Drawer, publisher ResultPublisher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tickets:   tickets,
		schedule:  schedule,
		drawer:    drawer,
		publisher: publisher,
		audit:     audit.Noop{},
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(slog.String(logging.FieldComponent, "orchestrator"))
	return o
}

// RunDueDraws draws every due lottery. A failing lottery is recorded in the
// result and does not stop the batch. The error is non-nil only when the due
// list itself could not be read.
func (o *Orchestrator) RunDueDraws(ctx context.Context) (*BatchResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	due, err := o.schedule.DueLotteries(ctx, o.now())
	if err != nil {
		return nil, fmt.Errorf("list due lotteries: %w", err)
	}
	metrics.DueLotteries.Set(float64(len(due)))

	result := newBatchResult()
	for _, lottery := range due {
		if ctx.Err() != nil {
			break
		}
		_, err := o.drawLocked(ctx, lottery)
		if err != nil {
			o.logger.Error("draw failed",
				logging.LotteryID(lottery.ID),
				logging.LotteryType(string(lottery.Type)),
				slog.Bool("permanent", model.IsPermanent(err)),
				logging.Error(err))
		}
		result.record(lottery.ID, err)
	}

	if result.Processed > 0 {
		o.logger.Info("draw batch finished",
			slog.Int("processed", result.Processed),
			slog.Int("succeeded", len(result.Succeeded)),
			slog.Int("failed", len(result.Failed)))
	}
	return result, nil
}

// DrawLottery moves one lottery from DUE to DRAWN. The lottery is re-read
// under the lock, so a stale copy cannot draw it twice.
func (o *Orchestrator) DrawLottery(ctx context.Context, lottery *model.Lottery) (*DrawOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	current, err := o.schedule.GetLottery(ctx, lottery.ID)
	if err != nil {
		return nil, fmt.Errorf("lottery %d: %w", lottery.ID, err)
	}
	if now := o.now(); !current.DrawEligible(now) {
		return nil, fmt.Errorf("lottery %d is %s: %w", current.ID, current.Stage(now), ErrNotDue)
	}
	return o.drawLocked(ctx, current)
}

func (o *Orchestrator) drawLocked(ctx context.Context, lottery *model.Lottery) (outcome *DrawOutcome, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = model.FailureReason(err)
			if errors.Is(err, ErrNoTickets) {
				status = "no_tickets"
			}
		}
		metrics.DrawsTotal.WithLabelValues(string(lottery.Type), status).Inc()
		metrics.DrawDuration.WithLabelValues(string(lottery.Type)).Observe(time.Since(start).Seconds())
	}()

	if !lottery.Type.Valid() {
		return nil, fmt.Errorf("lottery %d: %w: %q", lottery.ID, model.ErrUnknownLotteryType, lottery.Type)
	}
	if lottery.WinnerCount == nil {
		return nil, fmt.Errorf("lottery %d: %w: winner count not configured", lottery.ID, model.ErrConfiguration)
	}

	tickets, err := o.tickets.GetAllTickets(ctx, lottery.ID)
	if err != nil {
		return nil, fmt.Errorf("lottery %d: load tickets: %w", lottery.ID, err)
	}
	if len(tickets) == 0 {
		return nil, fmt.Errorf("lottery %d: %w", lottery.ID, ErrNoTickets)
	}

	outcome = &DrawOutcome{LotteryID: lottery.ID, PoolSize: len(tickets)}
	quota := engine.Fixed(*lottery.WinnerCount)

	// Winners already stored means a previous run crashed before MarkDrawn.
	existing, err := o.tickets.GetWinners(ctx, lottery.ID)
	if err != nil {
		return nil, fmt.Errorf("lottery %d: load winners: %w", lottery.ID, err)
	}

	if len(existing) > 0 {
		if !denseFromOne(existing) {
			return nil, fmt.Errorf("lottery %d: %w: %d recorded winners do not form positions 1..%d",
				lottery.ID, model.ErrConfiguration, len(existing), len(existing))
		}
		outcome.Winners = existing
		outcome.Reused = true
		o.logger.Warn("reusing winners recorded by an earlier attempt",
			logging.LotteryID(lottery.ID),
			slog.Int("winners", len(existing)))
	} else {
		pool := make([]string, len(tickets))
		for i, t := range tickets {
			pool[i] = t.TicketNumber
		}
		res := o.drawer.Draw(pool, quota)
		outcome.Winners = res.Winners
		outcome.Seed = res.Seed

		matched, err := o.tickets.RecordWinners(ctx, lottery.Type, lottery.ID, res.Winners)
		if err != nil {
			return nil, fmt.Errorf("lottery %d: record winners: %w", lottery.ID, err)
		}
		// Every winner came from the pool just loaded, so a miss means the
		// store no longer agrees with it. The lottery must not be marked drawn.
		if unmatched := len(res.Winners) - matched; unmatched > 0 {
			metrics.UnmatchedWinners.Add(float64(unmatched))
			return nil, fmt.Errorf("lottery %d: %w: %d of %d drawn winners not stored",
				lottery.ID, model.ErrConfiguration, unmatched, len(res.Winners))
		}
	}

	drawnAt := o.now()
	if err := o.schedule.MarkDrawn(ctx, lottery.ID, drawnAt); err != nil {
		return nil, fmt.Errorf("lottery %d: mark drawn: %w", lottery.ID, err)
	}
	metrics.WinnersDrawn.WithLabelValues(string(lottery.Type)).Add(float64(len(outcome.Winners)))

	o.logger.Info("lottery drawn",
		logging.LotteryID(lottery.ID),
		logging.LotteryType(string(lottery.Type)),
		slog.Int("pool_size", outcome.PoolSize),
		slog.Int("winners", len(outcome.Winners)),
		slog.String("seed", outcome.Seed))

	if err := o.audit.RecordDraw(ctx, audit.DrawRecord{
		LotteryID:   lottery.ID,
		LotteryType: lottery.Type,
		LotteryName: lottery.Name,
		DrawAt:      lottery.DrawAt,
		DrawnAt:     drawnAt,
		PoolSize:    outcome.PoolSize,
		Quota:       quota.String(),
		Seed:        outcome.Seed,
		Reused:      outcome.Reused,
		Winners:     outcome.Winners,
	}); err != nil {
		metrics.AuditErrors.Inc()
		o.logger.Warn("failed to record draw audit", logging.LotteryID(lottery.ID), logging.Error(err))
	}

	return outcome, nil
}

// RunExports publishes the results of every drawn, unexported lottery.
func (o *Orchestrator) RunExports(ctx context.Context) (*BatchResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	pending, err := o.schedule.UnexportedDrawnLotteries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unexported lotteries: %w", err)
	}

	result := newBatchResult()
	for _, lottery := range pending {
		if ctx.Err() != nil {
			break
		}
		err := o.exportLocked(ctx, lottery)
		if err != nil {
			o.logger.Error("export failed", logging.LotteryID(lottery.ID), logging.Error(err))
		}
		result.record(lottery.ID, err)
	}

	if result.Processed > 0 {
		o.logger.Info("export batch finished",
			slog.Int("processed", result.Processed),
			slog.Int("succeeded", len(result.Succeeded)),
			slog.Int("failed", len(result.Failed)))
	}
	return result, nil
}

// ExportLottery moves one lottery from DRAWN to EXPORTED.
func (o *Orchestrator) ExportLottery(ctx context.Context, lottery *model.Lottery) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exportLocked(ctx, lottery)
}

func (o *Orchestrator) exportLocked(ctx context.Context, lottery *model.Lottery) (err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.ExportsTotal.WithLabelValues(status).Inc()
	}()

	if lottery.DrawnAt == nil {
		return fmt.Errorf("lottery %d: %w: not drawn", lottery.ID, model.ErrConfiguration)
	}

	winners, err := o.tickets.GetWinners(ctx, lottery.ID)
	if err != nil {
		return fmt.Errorf("lottery %d: load winners: %w", lottery.ID, err)
	}

	result := &model.DrawResult{
		LotteryID:   lottery.ID,
		LotteryName: lottery.Name,
		DrawDate:    lottery.DrawAt,
		Tickets:     winners,
	}
	if err := o.publisher.PublishDrawResult(ctx, result); err != nil {
		return fmt.Errorf("lottery %d: publish results: %w", lottery.ID, err)
	}

	if err := o.schedule.MarkResultsExported(ctx, lottery.ID, o.now()); err != nil {
		return fmt.Errorf("lottery %d: mark exported: %w", lottery.ID, err)
	}

	o.logger.Info("draw results exported",
		logging.LotteryID(lottery.ID),
		slog.Int("winners", len(winners)))
	return nil
}

// denseFromOne reports whether winners, ordered by position, hold positions 1..len.
func denseFromOne(winners []model.Winner) bool {
	for i, w := range winners {
		if w.WinnerPosition != i+1 {
			return false
		}
	}
	return true
}
