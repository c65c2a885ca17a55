// Package repository persists lottery schedules and the partitioned ticket tables.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

var (
	ErrLotteryNotFound = errors.New("lottery not found")
)

// TicketStore owns the per-type, per-lottery ticket partitions.
type TicketStore interface {
	// EnsurePartition provisions the lottery's child partition if missing.
	EnsurePartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error

	// InsertTicket stores a ticket, ignoring duplicates.
	InsertTicket(ctx context.Context, lotteryType model.LotteryType, ticketNumber string, lotteryID int64) error

	// RecordWinners marks each listed ticket as a winner at its position in
	// one transaction and returns how many tickets matched. Unknown ticket
	// numbers are skipped.
	RecordWinners(ctx context.Context, lotteryType model.LotteryType, lotteryID int64, winners []model.Winner) (int, error)

	// GetWinners returns the lottery's winners by ascending position.
	GetWinners(ctx context.Context, lotteryID int64) ([]model.Winner, error)

	// GetAllTickets returns every ticket of the lottery ordered by ticket number.
	GetAllTickets(ctx context.Context, lotteryID int64) ([]model.Ticket, error)

	// DropPartition removes a lottery's partition and all of its tickets.
	DropPartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error
}

// ScheduleStore owns the lottery schedule rows.
type ScheduleStore interface {
	// UpsertSchedule inserts the lottery unless it already exists.
	UpsertSchedule(ctx context.Context, rec model.ScheduleRecord) (bool, error)

	GetLottery(ctx context.Context, id int64) (*model.Lottery, error)

	// SetWinnerConfig stores the winner count and optional totals.
	SetWinnerConfig(ctx context.Context, cfg model.WinnerConfig) error

	// DueLotteries returns active, configured, undrawn lotteries with draw_at <= asOf.
	DueLotteries(ctx context.Context, asOf time.Time) ([]*model.Lottery, error)

	// MarkDrawn sets drawn_at unless already set.
	MarkDrawn(ctx context.Context, id int64, at time.Time) error

	// MarkResultsExported sets results_exported_at unless already set.
	MarkResultsExported(ctx context.Context, id int64, at time.Time) error

	// UnexportedDrawnLotteries returns drawn lotteries whose results are not exported.
	UnexportedDrawnLotteries(ctx context.Context) ([]*model.Lottery, error)
}

// Repository is the full storage surface of the draw service.
type Repository interface {
	TicketStore
	ScheduleStore

	Ping(ctx context.Context) error
	Close() error
}
