// Package importer applies inbound lottery feeds to the stores. Every Apply
// method is safe to repeat for the same message.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/draw/internal/repository"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Importer applies schedule, winner-config, ticket-sale and winner-result messages.
type Importer struct {
	tickets  repository.TicketStore
	schedule repository.ScheduleStore
	logger   *slog.Logger
}

// New creates an Importer.
func New(tickets repository.TicketStore, schedule repository.ScheduleStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		tickets:  tickets,
		schedule: schedule,
		logger:   logger.With(slog.String(logging.FieldComponent, "importer")),
	}
}

// ApplySchedule stores a new lottery and provisions its ticket partition.
func (i *Importer) ApplySchedule(ctx context.Context, rec model.ScheduleRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	lotteryType, err := model.ParseLotteryType(string(rec.Type))
	if err != nil {
		return err
	}
	rec.Type = lotteryType

	// The partition goes first: a type clash with tickets already sold must
	// leave no lottery row behind.
	if err := i.tickets.EnsurePartition(ctx, lotteryType, rec.ID); err != nil {
		return fmt.Errorf("ensure partition for lottery %d: %w", rec.ID, err)
	}
	created, err := i.schedule.UpsertSchedule(ctx, rec)
	if err != nil {
		return fmt.Errorf("upsert schedule %d: %w", rec.ID, err)
	}

	i.logger.Info("lottery scheduled",
		logging.LotteryID(rec.ID),
		logging.LotteryType(string(lotteryType)),
		slog.Bool("created", created),
		slog.Time("draw_at", rec.DrawAt))
	return nil
}

// ApplyWinnerConfig sets the winner count. A lottery that does not exist is
// a configuration error.
func (i *Importer) ApplyWinnerConfig(ctx context.Context, cfg model.WinnerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := i.schedule.SetWinnerConfig(ctx, cfg); err != nil {
		return fmt.Errorf("set winner config for lottery %d: %w", cfg.LotteryID, err)
	}

	i.logger.Info("winner count configured",
		logging.LotteryID(cfg.LotteryID),
		slog.Int("winner_count", cfg.WinnerCount))
	return nil
}

// ApplyTicketSale stores a sold ticket. Duplicate sales are ignored. A sale
// may arrive before its lottery's schedule; once the lottery is known, a sale
// of another type is a configuration error.
func (i *Importer) ApplyTicketSale(ctx context.Context, sale model.TicketSale) error {
	if err := sale.Validate(); err != nil {
		return err
	}
	lotteryType, err := model.ParseLotteryType(string(sale.Type))
	if err != nil {
		return err
	}

	lottery, err := i.schedule.GetLottery(ctx, sale.LotteryID)
	switch {
	case err == nil:
		if lottery.Type != lotteryType {
			return fmt.Errorf("%w: ticket %s sold as %s for %s lottery %d",
				model.ErrConfiguration, sale.TicketNumber, lotteryType, lottery.Type, sale.LotteryID)
		}
	case !errors.Is(err, repository.ErrLotteryNotFound):
		return fmt.Errorf("get lottery %d: %w", sale.LotteryID, err)
	}

	if err := i.tickets.InsertTicket(ctx, lotteryType, sale.TicketNumber, sale.LotteryID); err != nil {
		return fmt.Errorf("insert ticket for lottery %d: %w", sale.LotteryID, err)
	}

	i.logger.Debug("ticket stored",
		logging.LotteryID(sale.LotteryID),
		logging.TicketNumber(sale.TicketNumber))
	return nil
}

// ApplyWinnerResults records externally computed winners. Ticket numbers that
// match no stored ticket are skipped and logged.
func (i *Importer) ApplyWinnerResults(ctx context.Context, result model.DrawResult) error {
	if err := result.Validate(); err != nil {
		return err
	}

	lottery, err := i.schedule.GetLottery(ctx, result.LotteryID)
	if err != nil {
		if errors.Is(err, repository.ErrLotteryNotFound) {
			return fmt.Errorf("%w: winner results for unknown lottery %d", model.ErrConfiguration, result.LotteryID)
		}
		return fmt.Errorf("get lottery %d: %w", result.LotteryID, err)
	}

	matched, err := i.tickets.RecordWinners(ctx, lottery.Type, lottery.ID, result.Tickets)
	if err != nil {
		return fmt.Errorf("record winners for lottery %d: %w", lottery.ID, err)
	}

	if unmatched := len(result.Tickets) - matched; unmatched > 0 {
		i.logger.Warn("winner results referenced unknown tickets",
			logging.LotteryID(lottery.ID),
			slog.Int("unmatched", unmatched),
			slog.Int("total", len(result.Tickets)))
	}
	i.logger.Info("winner results applied",
		logging.LotteryID(lottery.ID),
		slog.Int("matched", matched))
	return nil
}
