package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lottoworks/drawstack/draw/internal/audit"
	"github.com/lottoworks/drawstack/draw/internal/repository"
	"github.com/lottoworks/drawstack/draw/pkg/engine"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

var testNow = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

// mockPublisher records published results.
type mockPublisher struct {
	publishFunc func(ctx context.Context, result *model.DrawResult) error
	published   []*model.DrawResult
}

func (m *mockPublisher) PublishDrawResult(ctx context.Context, result *model.DrawResult) error {
	if m.publishFunc != nil {
		if err := m.publishFunc(ctx, result); err != nil {
			return err
		}
	}
	m.published = append(m.published, result)
	return nil
}

// mockRecorder records audit documents.
type mockRecorder struct {
	err     error
	records []audit.DrawRecord
}

func (m *mockRecorder) RecordDraw(ctx context.Context, rec audit.DrawRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

// mockTicketStore wraps a real store and lets tests inject failures.
type mockTicketStore struct {
	repository.TicketStore
	getAllTicketsFunc func(ctx context.Context, lotteryID int64) ([]model.Ticket, error)
	recordWinnersFunc func(ctx context.Context, t model.LotteryType, id int64, w []model.Winner) (int, error)
	recordCalls       int
}

func (m *mockTicketStore) GetAllTickets(ctx context.Context, lotteryID int64) ([]model.Ticket, error) {
	if m.getAllTicketsFunc != nil {
		return m.getAllTicketsFunc(ctx, lotteryID)
	}
	return m.TicketStore.GetAllTickets(ctx, lotteryID)
}

func (m *mockTicketStore) RecordWinners(ctx context.Context, t model.LotteryType, id int64, w []model.Winner) (int, error) {
	m.recordCalls++
	if m.recordWinnersFunc != nil {
		return m.recordWinnersFunc(ctx, t, id, w)
	}
	return m.TicketStore.RecordWinners(ctx, t, id, w)
}

type fixture struct {
	repo      *repository.MemoryRepository
	tickets   *mockTicketStore
	publisher *mockPublisher
	recorder  *mockRecorder
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	f := &fixture{
		repo:      repo,
		tickets:   &mockTicketStore{TicketStore: repo},
		publisher: &mockPublisher{},
		recorder:  &mockRecorder{},
	}
	f.orch = NewOrchestrator(f.tickets, repo, engine.NewWithSource(rand.NewPCG(1, 2)), f.publisher,
		WithClock(func() time.Time { return testNow }),
		WithAuditRecorder(f.recorder))
	return f
}

// addLottery schedules a lottery due an hour ago with winners and tickets.
func (f *fixture) addLottery(t *testing.T, id int64, lotteryType model.LotteryType, winners int, tickets ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.repo.UpsertSchedule(ctx, model.ScheduleRecord{
		ID: id, Type: lotteryType, Name: "Lottery", DrawAt: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: id, WinnerCount: winners}))
	require.NoError(t, f.repo.EnsurePartition(ctx, lotteryType, id))
	for _, n := range tickets {
		require.NoError(t, f.repo.InsertTicket(ctx, lotteryType, n, id))
	}
}

func TestRunDueDraws(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 2, "T1", "T2", "T3", "T4", "T5")
	f.addLottery(t, 2, model.LotteryTypeDailyFixed, 10, "A", "B", "C")

	result, err := f.orch.RunDueDraws(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.ElementsMatch(t, []int64{1, 2}, result.Succeeded)
	assert.Empty(t, result.Failed)

	winners, err := f.repo.GetWinners(ctx, 1)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, 1, winners[0].WinnerPosition)
	assert.Equal(t, 2, winners[1].WinnerPosition)

	winners, err = f.repo.GetWinners(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, winners, 3, "quota is capped at the pool size")

	due, err := f.repo.DueLotteries(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.Len(t, f.recorder.records, 2)
	assert.Empty(t, f.recorder.records[0].Seed, "explicit source has no seed")
	assert.Equal(t, "fixed(2)", f.recorder.records[0].Quota)
}

func TestRunDueDraws_NoTicketsStaysDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 2)
	f.addLottery(t, 2, model.LotteryTypeJackpot, 1, "T1")

	result, err := f.orch.RunDueDraws(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, int64(1), result.Failed[0].LotteryID)
	assert.False(t, result.Failed[0].Permanent)

	due, err := f.repo.DueLotteries(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(1), due[0].ID)
}

func TestRunDueDraws_StoreErrorDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	f.addLottery(t, 1, model.LotteryTypeJackpot, 1, "T1")
	f.addLottery(t, 2, model.LotteryTypeJackpot, 1, "T2")
	f.tickets.getAllTicketsFunc = func(ctx context.Context, id int64) ([]model.Ticket, error) {
		if id == 1 {
			return nil, errors.New("connection reset")
		}
		return f.repo.GetAllTickets(ctx, id)
	}

	result, err := f.orch.RunDueDraws(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Error, "connection reset")
}

func TestDrawLottery_ReusesExistingWinners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 2, "T1", "T2", "T3")

	// Winners recorded by a run that crashed before MarkDrawn.
	prior := []model.Winner{{TicketNumber: "T3", WinnerPosition: 1}, {TicketNumber: "T1", WinnerPosition: 2}}
	_, err := f.repo.RecordWinners(ctx, model.LotteryTypeJackpot, 1, prior)
	require.NoError(t, err)

	lottery, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	outcome, err := f.orch.DrawLottery(ctx, lottery)
	require.NoError(t, err)

	assert.True(t, outcome.Reused)
	assert.Equal(t, prior, outcome.Winners)
	assert.Zero(t, f.tickets.recordCalls)

	l, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StageDrawn, l.Stage(testNow))
}

func TestDrawLottery_UnmatchedWinners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 3, "T1", "T2", "T3")
	f.tickets.recordWinnersFunc = func(ctx context.Context, lt model.LotteryType, id int64, w []model.Winner) (int, error) {
		return len(w) - 1, nil
	}

	lottery, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	_, err = f.orch.DrawLottery(ctx, lottery)
	require.ErrorIs(t, err, model.ErrConfiguration)
	assert.Empty(t, f.recorder.records)

	l, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StageDue, l.Stage(testNow))
}

func TestRunDueDraws_PartitionTypeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Tickets sold as jackpot, schedule says daily_fixed.
	require.NoError(t, f.repo.InsertTicket(ctx, model.LotteryTypeJackpot, "J1", 9))
	require.NoError(t, f.repo.InsertTicket(ctx, model.LotteryTypeJackpot, "J2", 9))
	_, err := f.repo.UpsertSchedule(ctx, model.ScheduleRecord{
		ID: 9, Type: model.LotteryTypeDailyFixed, Name: "Daily", DrawAt: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: 9, WinnerCount: 1}))

	result, err := f.orch.RunDueDraws(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, int64(9), result.Failed[0].LotteryID)
	assert.True(t, result.Failed[0].Permanent)

	l, err := f.repo.GetLottery(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, l.DrawnAt)
	winners, err := f.repo.GetWinners(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, winners)
	assert.Empty(t, f.recorder.records)
}

func TestDrawLottery_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 1, "T1", "T2", "T3")

	// Both callers loaded the lottery while it was still due.
	stale, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)

	first, err := f.orch.DrawLottery(ctx, stale)
	require.NoError(t, err)
	require.Len(t, first.Winners, 1)

	_, err = f.orch.DrawLottery(ctx, stale)
	require.ErrorIs(t, err, ErrNotDue)
	assert.False(t, model.IsPermanent(err))

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, first.Winners, f.recorder.records[0].Winners)
	assert.Equal(t, 1, f.tickets.recordCalls)
}

func TestDrawLottery_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.DrawLottery(context.Background(), &model.Lottery{ID: 42})
	require.ErrorIs(t, err, repository.ErrLotteryNotFound)
}

func TestDrawLottery_NotDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.repo.UpsertSchedule(ctx, model.ScheduleRecord{
		ID: 3, Type: model.LotteryTypeJackpot, Name: "Later", DrawAt: testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.SetWinnerConfig(ctx, model.WinnerConfig{LotteryID: 3, WinnerCount: 1}))
	require.NoError(t, f.repo.InsertTicket(ctx, model.LotteryTypeJackpot, "T1", 3))

	_, err = f.orch.DrawLottery(ctx, &model.Lottery{ID: 3})
	require.ErrorIs(t, err, ErrNotDue)
	assert.Zero(t, f.tickets.recordCalls)
}

func TestDrawLottery_ReusedWinnersWithGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 2, "T1", "T2", "T3")
	prior := []model.Winner{{TicketNumber: "T1", WinnerPosition: 1}, {TicketNumber: "T2", WinnerPosition: 3}}
	_, err := f.repo.RecordWinners(ctx, model.LotteryTypeJackpot, 1, prior)
	require.NoError(t, err)

	lottery, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	_, err = f.orch.DrawLottery(ctx, lottery)
	require.ErrorIs(t, err, model.ErrConfiguration)

	l, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, l.DrawnAt)
}

func TestDrawLottery_PermanentErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		lottery *model.Lottery
	}{
		{"unknown type", &model.Lottery{ID: 1, Type: "bingo", WinnerCount: intPtr(1)}},
		{"no winner count", &model.Lottery{ID: 1, Type: model.LotteryTypeJackpot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.drawLocked(context.Background(), tt.lottery)
			require.Error(t, err)
			assert.True(t, model.IsPermanent(err))
		})
	}
}

func TestDrawLottery_AuditFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.recorder.err = errors.New("opensearch down")
	f.addLottery(t, 1, model.LotteryTypeJackpot, 1, "T1")

	result, err := f.orch.RunDueDraws(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.Succeeded)
}

func TestDrawLottery_ZeroWinnerCount(t *testing.T) {
	f := newFixture(t)
	f.addLottery(t, 1, model.LotteryTypeJackpot, 0, "T1", "T2")

	result, err := f.orch.RunDueDraws(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.Succeeded)

	winners, err := f.repo.GetWinners(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestRunExports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 2, "T1", "T2", "T3")
	f.addLottery(t, 2, model.LotteryTypeJackpot, 1, "X")

	_, err := f.orch.RunDueDraws(ctx)
	require.NoError(t, err)

	result, err := f.orch.RunExports(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, result.Succeeded)
	require.Len(t, f.publisher.published, 2)

	for _, p := range f.publisher.published {
		winners, err := f.repo.GetWinners(ctx, p.LotteryID)
		require.NoError(t, err)
		assert.Equal(t, winners, p.Tickets)
		assert.Equal(t, "Lottery", p.LotteryName)
		assert.True(t, p.DrawDate.Equal(testNow.Add(-time.Hour)))
	}

	again, err := f.orch.RunExports(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Processed)

	l, err := f.repo.GetLottery(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StageExported, l.Stage(testNow))
}

func TestRunExports_PublishFailureRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addLottery(t, 1, model.LotteryTypeJackpot, 1, "T1")
	_, err := f.orch.RunDueDraws(ctx)
	require.NoError(t, err)

	f.publisher.publishFunc = func(context.Context, *model.DrawResult) error {
		return errors.New("nats: timeout")
	}
	result, err := f.orch.RunExports(ctx)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)

	pending, err := f.repo.UnexportedDrawnLotteries(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	f.publisher.publishFunc = nil
	result, err = f.orch.RunExports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, result.Succeeded)
}

func TestExportLottery_NotDrawn(t *testing.T) {
	f := newFixture(t)
	err := f.orch.ExportLottery(context.Background(), &model.Lottery{ID: 1, Type: model.LotteryTypeJackpot})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRunDueDraws_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.addLottery(t, 1, model.LotteryTypeJackpot, 1, "T1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.orch.RunDueDraws(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
}

func intPtr(n int) *int { return &n }
