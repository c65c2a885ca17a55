package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func schedule(id int64, lotteryType model.LotteryType, drawAt time.Time) model.ScheduleRecord {
	return model.ScheduleRecord{
		ID:          id,
		Type:        lotteryType,
		Name:        "Lottery",
		SaleStartAt: drawAt.Add(-48 * time.Hour),
		SaleEndAt:   drawAt.Add(-time.Hour),
		DrawAt:      drawAt,
	}
}

func TestMemoryRepository_InsertAndGetAllTickets(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, n := range []string{"T3", "T1", "T2", "T1"} {
		require.NoError(t, repo.InsertTicket(ctx, model.LotteryTypeJackpot, n, 7))
	}

	tickets, err := repo.GetAllTickets(ctx, 7)
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	for i, want := range []string{"T1", "T2", "T3"} {
		assert.Equal(t, want, tickets[i].TicketNumber)
		assert.Equal(t, int64(7), tickets[i].LotteryID)
		assert.False(t, tickets[i].IsWinner)
		assert.Nil(t, tickets[i].WinnerPosition)
	}
}

func TestMemoryRepository_UnknownType(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.InsertTicket(ctx, "bingo", "T1", 1)
	assert.ErrorIs(t, err, model.ErrUnknownLotteryType)
	assert.True(t, model.IsPermanent(err))

	_, err = repo.RecordWinners(ctx, "bingo", 1, []model.Winner{{TicketNumber: "T1", WinnerPosition: 1}})
	assert.ErrorIs(t, err, model.ErrUnknownLotteryType)
}

func TestMemoryRepository_EnsurePartition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.EnsurePartition(ctx, model.LotteryTypeDailyFixed, 1))
	require.NoError(t, repo.EnsurePartition(ctx, model.LotteryTypeDailyFixed, 1))

	err := repo.EnsurePartition(ctx, model.LotteryTypeJackpot, 1)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestMemoryRepository_RecordWinnersIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, n := range []string{"T1", "T2", "T3", "T4"} {
		require.NoError(t, repo.InsertTicket(ctx, model.LotteryTypeSupertour, n, 3))
	}
	winners := []model.Winner{{TicketNumber: "T3", WinnerPosition: 1}, {TicketNumber: "T1", WinnerPosition: 2}}

	matched, err := repo.RecordWinners(ctx, model.LotteryTypeSupertour, 3, winners)
	require.NoError(t, err)
	assert.Equal(t, 2, matched)
	once, err := repo.GetAllTickets(ctx, 3)
	require.NoError(t, err)

	matched, err = repo.RecordWinners(ctx, model.LotteryTypeSupertour, 3, winners)
	require.NoError(t, err)
	assert.Equal(t, 2, matched)
	twice, err := repo.GetAllTickets(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, once, twice)

	got, err := repo.GetWinners(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, winners, got)
}

func TestMemoryRepository_RecordWinnersUnknownTicket(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, n := range []string{"T1", "T2"} {
		require.NoError(t, repo.InsertTicket(ctx, model.LotteryTypeJackpot, n, 9))
	}
	before, err := repo.GetAllTickets(ctx, 9)
	require.NoError(t, err)

	matched, err := repo.RecordWinners(ctx, model.LotteryTypeJackpot, 9, []model.Winner{{TicketNumber: "NOPE", WinnerPosition: 1}})
	require.NoError(t, err)
	assert.Zero(t, matched)

	after, err := repo.GetAllTickets(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMemoryRepository_RecordWinnersWrongType(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.InsertTicket(ctx, model.LotteryTypeJackpot, "T1", 9))

	matched, err := repo.RecordWinners(ctx, model.LotteryTypeDailyFixed, 9, []model.Winner{{TicketNumber: "T1", WinnerPosition: 1}})
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Zero(t, matched)

	winners, err := repo.GetWinners(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestMemoryRepository_GetWinnersUnknownLottery(t *testing.T) {
	winners, err := NewMemoryRepository().GetWinners(context.Background(), 404)
	require.NoError(t, err)
	assert.NotNil(t, winners)
	assert.Empty(t, winners)
}

func TestMemoryRepository_DropPartition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.InsertTicket(ctx, model.LotteryTypeDailyDynamic, "T1", 5))

	require.NoError(t, repo.DropPartition(ctx, model.LotteryTypeDailyDynamic, 5))
	require.NoError(t, repo.DropPartition(ctx, model.LotteryTypeDailyDynamic, 5))

	tickets, err := repo.GetAllTickets(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	// Partition can be provisioned again after a drop.
	require.NoError(t, repo.InsertTicket(ctx, model.LotteryTypeJackpot, "T9", 5))
}

func TestMemoryRepository_UpsertSchedule(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.UpsertSchedule(ctx, schedule(1, model.LotteryTypeJackpot, baseTime))
	require.NoError(t, err)
	assert.True(t, created)

	changed := schedule(1, model.LotteryTypeJackpot, baseTime.Add(time.Hour))
	changed.Name = "Renamed"
	created, err = repo.UpsertSchedule(ctx, changed)
	require.NoError(t, err)
	assert.False(t, created)

	l, err := repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Lottery", l.Name)
	assert.True(t, l.DrawAt.Equal(baseTime))
	assert.True(t, l.IsActive)
	assert.Nil(t, l.WinnerCount)
}

func TestMemoryRepository_SetWinnerConfig(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.UpsertSchedule(ctx, schedule(1, model.LotteryTypeJackpot, baseTime))
	require.NoError(t, err)

	require.NoError(t, repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: 1, WinnerCount: 3, TotalParticipants: intPtr(40)}))
	require.NoError(t, repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: 1, WinnerCount: 4, TotalTicketsSold: intPtr(90)}))

	l, err := repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, *l.WinnerCount)
	assert.Equal(t, 40, *l.TotalParticipants)
	assert.Equal(t, 90, *l.TotalTicketsSold)

	err = repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: 2, WinnerCount: 1})
	assert.ErrorIs(t, err, ErrLotteryNotFound)
	assert.True(t, model.IsPermanent(err))
}

func TestMemoryRepository_DueLotteries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	// 1: due. 2: no winner count. 3: future. 4: already drawn. 5: due, earlier.
	for id, drawAt := range map[int64]time.Time{
		1: baseTime.Add(-time.Minute),
		2: baseTime.Add(-time.Minute),
		3: baseTime.Add(time.Minute),
		4: baseTime.Add(-time.Hour),
		5: baseTime.Add(-time.Hour),
	} {
		_, err := repo.UpsertSchedule(ctx, schedule(id, model.LotteryTypeDailyFixed, drawAt))
		require.NoError(t, err)
	}
	for _, id := range []int64{1, 3, 4, 5} {
		require.NoError(t, repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: id, WinnerCount: 2}))
	}
	require.NoError(t, repo.MarkDrawn(ctx, 4, baseTime))

	due, err := repo.DueLotteries(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, int64(5), due[0].ID)
	assert.Equal(t, int64(1), due[1].ID)

	for _, l := range due {
		assert.True(t, l.DrawEligible(baseTime))
	}
}

func TestMemoryRepository_MarkDrawnRemovesFromDue(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.UpsertSchedule(ctx, schedule(1, model.LotteryTypeJackpot, baseTime.Add(-time.Minute)))
	require.NoError(t, err)
	require.NoError(t, repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: 1, WinnerCount: 1}))

	due, err := repo.DueLotteries(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, repo.MarkDrawn(ctx, 1, baseTime))
	due, err = repo.DueLotteries(ctx, baseTime)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Second mark keeps the first timestamp.
	require.NoError(t, repo.MarkDrawn(ctx, 1, baseTime.Add(time.Hour)))
	l, err := repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.True(t, l.DrawnAt.Equal(baseTime))

	assert.ErrorIs(t, repo.MarkDrawn(ctx, 99, baseTime), ErrLotteryNotFound)
}

func TestMemoryRepository_UnexportedDrawnLotteries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, id := range []int64{1, 2, 3} {
		_, err := repo.UpsertSchedule(ctx, schedule(id, model.LotteryTypeJackpot, baseTime))
		require.NoError(t, err)
	}
	require.NoError(t, repo.MarkDrawn(ctx, 2, baseTime.Add(time.Minute)))
	require.NoError(t, repo.MarkDrawn(ctx, 3, baseTime))
	require.NoError(t, repo.MarkDrawn(ctx, 1, baseTime))
	require.NoError(t, repo.MarkResultsExported(ctx, 1, baseTime))

	pending, err := repo.UnexportedDrawnLotteries(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(3), pending[0].ID)
	assert.Equal(t, int64(2), pending[1].ID)

	assert.ErrorIs(t, repo.MarkResultsExported(ctx, 99, baseTime), ErrLotteryNotFound)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.UpsertSchedule(ctx, schedule(1, model.LotteryTypeJackpot, baseTime))
	require.NoError(t, err)

	l, err := repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	l.Name = "mutated"

	again, err := repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Lottery", again.Name)
}
