package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// MemoryRepository is an in-process Repository used for local runs and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	lotteries  map[int64]*model.Lottery
	partitions map[int64]model.LotteryType
	tickets    map[int64]map[string]*model.Ticket
	now        func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		lotteries:  make(map[int64]*model.Lottery),
		partitions: make(map[int64]model.LotteryType),
		tickets:    make(map[int64]map[string]*model.Ticket),
		now:        time.Now,
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }
func (r *MemoryRepository) Close() error                   { return nil }

func (r *MemoryRepository) ensurePartitionLocked(lotteryType model.LotteryType, lotteryID int64) error {
	if !lotteryType.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownLotteryType, lotteryType)
	}
	if existing, ok := r.partitions[lotteryID]; ok {
		if existing != lotteryType {
			return fmt.Errorf("%w: lottery %d already partitioned as %s, not %s",
				model.ErrConfiguration, lotteryID, existing, lotteryType)
		}
		return nil
	}
	r.partitions[lotteryID] = lotteryType
	r.tickets[lotteryID] = make(map[string]*model.Ticket)
	return nil
}

func (r *MemoryRepository) EnsurePartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensurePartitionLocked(lotteryType, lotteryID)
}

func (r *MemoryRepository) InsertTicket(ctx context.Context, lotteryType model.LotteryType, ticketNumber string, lotteryID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensurePartitionLocked(lotteryType, lotteryID); err != nil {
		return err
	}
	if _, ok := r.tickets[lotteryID][ticketNumber]; ok {
		return nil
	}
	r.tickets[lotteryID][ticketNumber] = &model.Ticket{
		TicketNumber: ticketNumber,
		LotteryID:    lotteryID,
	}
	return nil
}

func (r *MemoryRepository) RecordWinners(ctx context.Context, lotteryType model.LotteryType, lotteryID int64, winners []model.Winner) (int, error) {
	if !lotteryType.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownLotteryType, lotteryType)
	}
	for _, w := range winners {
		if w.WinnerPosition < 1 {
			return 0, fmt.Errorf("%w: ticket %s has position %d", model.ErrValidation, w.TicketNumber, w.WinnerPosition)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.partitions[lotteryID]
	if !ok {
		return 0, nil
	}
	if registered != lotteryType {
		return 0, fmt.Errorf("%w: lottery %d is partitioned as %s, not %s",
			model.ErrConfiguration, lotteryID, registered, lotteryType)
	}
	matched := 0
	for _, w := range winners {
		t, ok := r.tickets[lotteryID][w.TicketNumber]
		if !ok {
			continue
		}
		pos := w.WinnerPosition
		t.IsWinner = true
		t.WinnerPosition = &pos
		matched++
	}
	return matched, nil
}

func (r *MemoryRepository) GetWinners(ctx context.Context, lotteryID int64) ([]model.Winner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	winners := []model.Winner{}
	for _, t := range r.tickets[lotteryID] {
		if t.IsWinner && t.WinnerPosition != nil && *t.WinnerPosition > 0 {
			winners = append(winners, model.Winner{TicketNumber: t.TicketNumber, WinnerPosition: *t.WinnerPosition})
		}
	}
	sort.Slice(winners, func(i, j int) bool {
		return winners[i].WinnerPosition < winners[j].WinnerPosition
	})
	return winners, nil
}

func (r *MemoryRepository) GetAllTickets(ctx context.Context, lotteryID int64) ([]model.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tickets := make([]model.Ticket, 0, len(r.tickets[lotteryID]))
	for _, t := range r.tickets[lotteryID] {
		c := *t
		if t.WinnerPosition != nil {
			pos := *t.WinnerPosition
			c.WinnerPosition = &pos
		}
		tickets = append(tickets, c)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].TicketNumber < tickets[j].TicketNumber
	})
	return tickets, nil
}

func (r *MemoryRepository) DropPartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error {
	if !lotteryType.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownLotteryType, lotteryType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.partitions[lotteryID] != lotteryType {
		return nil
	}
	delete(r.partitions, lotteryID)
	delete(r.tickets, lotteryID)
	return nil
}

func cloneLottery(l *model.Lottery) *model.Lottery {
	c := *l
	c.WinnerCount = cloneInt(l.WinnerCount)
	c.TotalParticipants = cloneInt(l.TotalParticipants)
	c.TotalTicketsSold = cloneInt(l.TotalTicketsSold)
	c.DrawnAt = cloneTime(l.DrawnAt)
	c.ResultsExportedAt = cloneTime(l.ResultsExportedAt)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (r *MemoryRepository) UpsertSchedule(ctx context.Context, rec model.ScheduleRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lotteries[rec.ID]; ok {
		return false, nil
	}
	now := r.now()
	r.lotteries[rec.ID] = &model.Lottery{
		ID:          rec.ID,
		Type:        rec.Type,
		Name:        rec.Name,
		SaleStartAt: rec.SaleStartAt,
		SaleEndAt:   rec.SaleEndAt,
		DrawAt:      rec.DrawAt,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return true, nil
}

func (r *MemoryRepository) GetLottery(ctx context.Context, id int64) (*model.Lottery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lotteries[id]
	if !ok {
		return nil, ErrLotteryNotFound
	}
	return cloneLottery(l), nil
}

func (r *MemoryRepository) SetWinnerConfig(ctx context.Context, cfg model.WinnerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lotteries[cfg.LotteryID]
	if !ok {
		return fmt.Errorf("%w: %w: id %d", model.ErrConfiguration, ErrLotteryNotFound, cfg.LotteryID)
	}
	l.WinnerCount = cloneInt(&cfg.WinnerCount)
	if cfg.TotalParticipants != nil {
		l.TotalParticipants = cloneInt(cfg.TotalParticipants)
	}
	if cfg.TotalTicketsSold != nil {
		l.TotalTicketsSold = cloneInt(cfg.TotalTicketsSold)
	}
	l.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) selectLotteries(match func(*model.Lottery) bool, less func(a, b *model.Lottery) bool) []*model.Lottery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Lottery{}
	for _, l := range r.lotteries {
		if match(l) {
			out = append(out, cloneLottery(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *MemoryRepository) DueLotteries(ctx context.Context, asOf time.Time) ([]*model.Lottery, error) {
	return r.selectLotteries(
		func(l *model.Lottery) bool { return l.DrawEligible(asOf) },
		func(a, b *model.Lottery) bool { return a.DrawAt.Before(b.DrawAt) },
	), nil
}

func (r *MemoryRepository) MarkDrawn(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lotteries[id]
	if !ok {
		return ErrLotteryNotFound
	}
	if l.DrawnAt == nil {
		l.DrawnAt = cloneTime(&at)
	}
	l.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) MarkResultsExported(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lotteries[id]
	if !ok {
		return ErrLotteryNotFound
	}
	if l.ResultsExportedAt == nil {
		l.ResultsExportedAt = cloneTime(&at)
	}
	l.UpdatedAt = r.now()
	return nil
}

func (r *MemoryRepository) UnexportedDrawnLotteries(ctx context.Context) ([]*model.Lottery, error) {
	return r.selectLotteries(
		func(l *model.Lottery) bool { return l.DrawnAt != nil && l.ResultsExportedAt == nil },
		func(a, b *model.Lottery) bool { return a.DrawnAt.Before(*b.DrawnAt) },
	), nil
}
