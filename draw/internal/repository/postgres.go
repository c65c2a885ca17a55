package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lottoworks/drawstack/common/database"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// PostgresRepository implements Repository using PostgreSQL list partitions.
type PostgresRepository struct {
	pool *pgxpool.Pool

	// partitions remembers child tables provisioned by this process.
	partitions sync.Map
}

// PoolConfig tunes the connection pool. Zero values keep pgxpool defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string, poolCfg PoolConfig) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func partitionKey(lotteryType model.LotteryType, lotteryID int64) string {
	return lotteryType.PartitionTable(lotteryID)
}

// EnsurePartition creates tickets_<type>_<id> as a list partition of
// tickets_<type> and registers it. Concurrent callers for the same lottery
// are serialized with an advisory lock.
func (r *PostgresRepository) EnsurePartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error {
	if !lotteryType.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownLotteryType, lotteryType)
	}
	key := partitionKey(lotteryType, lotteryID)
	if _, ok := r.partitions.Load(key); ok {
		return nil
	}

	ctx, cancel := database.SchemaContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lotteryID); err != nil {
		return fmt.Errorf("failed to lock partition: %w", err)
	}

	var existing string
	err = tx.QueryRow(ctx,
		`SELECT lottery_type FROM ticket_partitions WHERE lottery_id = $1`, lotteryID,
	).Scan(&existing)
	switch {
	case err == nil:
		if model.LotteryType(existing) != lotteryType {
			return fmt.Errorf("%w: lottery %d already partitioned as %s, not %s",
				model.ErrConfiguration, lotteryID, existing, lotteryType)
		}
		r.partitions.Store(key, struct{}{})
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("failed to read partition registry: %w", err)
	}

	parent := pgx.Identifier{lotteryType.TicketTable()}.Sanitize()
	child := pgx.Identifier{key}.Sanitize()
	// FOR VALUES IN does not accept bind parameters; lotteryID is an int64.
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES IN (%d)`, child, parent, lotteryID)
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", key, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ticket_partitions (lottery_id, lottery_type, table_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (lottery_id) DO NOTHING
	`, lotteryID, string(lotteryType), key); err != nil {
		return fmt.Errorf("failed to register partition %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit partition %s: %w", key, err)
	}

	r.partitions.Store(key, struct{}{})
	return nil
}

// InsertTicket ensures the partition exists and inserts the ticket.
func (r *PostgresRepository) InsertTicket(ctx context.Context, lotteryType model.LotteryType, ticketNumber string, lotteryID int64) error {
	if err := r.EnsurePartition(ctx, lotteryType, lotteryID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (ticket_number, lottery_id)
		VALUES ($1, $2)
		ON CONFLICT (lottery_id, ticket_number) DO NOTHING
	`, pgx.Identifier{lotteryType.TicketTable()}.Sanitize())

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	if _, err := r.pool.Exec(ctx, query, ticketNumber, lotteryID); err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

// RecordWinners updates every listed ticket in a single transaction.
func (r *PostgresRepository) RecordWinners(ctx context.Context, lotteryType model.LotteryType, lotteryID int64, winners []model.Winner) (int, error) {
	if !lotteryType.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownLotteryType, lotteryType)
	}
	if len(winners) == 0 {
		return 0, nil
	}
	for _, w := range winners {
		if w.WinnerPosition < 1 {
			return 0, fmt.Errorf("%w: ticket %s has position %d", model.ErrValidation, w.TicketNumber, w.WinnerPosition)
		}
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET is_winner = TRUE, winner_position = $1
		WHERE lottery_id = $2 AND ticket_number = $3
	`, pgx.Identifier{lotteryType.TicketTable()}.Sanitize())

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var registered string
	err = tx.QueryRow(ctx,
		`SELECT lottery_type FROM ticket_partitions WHERE lottery_id = $1`, lotteryID,
	).Scan(&registered)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to resolve partition: %w", err)
	case model.LotteryType(registered) != lotteryType:
		return 0, fmt.Errorf("%w: lottery %d is partitioned as %s, not %s",
			model.ErrConfiguration, lotteryID, registered, lotteryType)
	}

	batch := &pgx.Batch{}
	for _, w := range winners {
		batch.Queue(query, w.WinnerPosition, lotteryID, w.TicketNumber)
	}

	results := tx.SendBatch(ctx, batch)
	matched := 0
	for range winners {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("failed to record winner: %w", err)
		}
		matched += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to record winners: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit winners: %w", err)
	}
	return matched, nil
}

// partitionType resolves a lottery's ticket type from the registry. ok is
// false when the lottery has no partition.
func (r *PostgresRepository) partitionType(ctx context.Context, lotteryID int64) (model.LotteryType, bool, error) {
	var t string
	err := r.pool.QueryRow(ctx,
		`SELECT lottery_type FROM ticket_partitions WHERE lottery_id = $1`, lotteryID,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve partition: %w", err)
	}
	return model.LotteryType(t), true, nil
}

// GetWinners returns winners ordered by position. Unknown lottery yields an empty list.
func (r *PostgresRepository) GetWinners(ctx context.Context, lotteryID int64) ([]model.Winner, error) {
	lotteryType, ok, err := r.partitionType(ctx, lotteryID)
	if err != nil || !ok {
		return []model.Winner{}, err
	}

	query := fmt.Sprintf(`
		SELECT ticket_number, winner_position
		FROM %s
		WHERE lottery_id = $1 AND is_winner AND winner_position > 0
		ORDER BY winner_position
	`, pgx.Identifier{lotteryType.TicketTable()}.Sanitize())

	ctx, cancel := database.ReadContext(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	winners := []model.Winner{}
	for rows.Next() {
		var w model.Winner
		if err := rows.Scan(&w.TicketNumber, &w.WinnerPosition); err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		winners = append(winners, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate winners: %w", err)
	}
	return winners, nil
}

// GetAllTickets returns the lottery's tickets ordered by ticket number.
func (r *PostgresRepository) GetAllTickets(ctx context.Context, lotteryID int64) ([]model.Ticket, error) {
	lotteryType, ok, err := r.partitionType(ctx, lotteryID)
	if err != nil || !ok {
		return []model.Ticket{}, err
	}

	query := fmt.Sprintf(`
		SELECT ticket_number, lottery_id, winner_position, is_winner
		FROM %s
		WHERE lottery_id = $1
		ORDER BY ticket_number
	`, pgx.Identifier{lotteryType.TicketTable()}.Sanitize())

	ctx, cancel := database.ReadContext(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, lotteryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []model.Ticket{}
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.TicketNumber, &t.LotteryID, &t.WinnerPosition, &t.IsWinner); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}

// DropPartition detaches and drops the lottery's partition. Missing partitions are a no-op.
func (r *PostgresRepository) DropPartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error {
	if !lotteryType.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownLotteryType, lotteryType)
	}
	key := partitionKey(lotteryType, lotteryID)

	ctx, cancel := database.SchemaContext(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lotteryID); err != nil {
		return fmt.Errorf("failed to lock partition: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM ticket_partitions WHERE lottery_id = $1 AND lottery_type = $2`,
		lotteryID, string(lotteryType))
	if err != nil {
		return fmt.Errorf("failed to unregister partition %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		r.partitions.Delete(key)
		return nil
	}

	parent := pgx.Identifier{lotteryType.TicketTable()}.Sanitize()
	child := pgx.Identifier{key}.Sanitize()
	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s DETACH PARTITION %s`, parent, child)); err != nil {
		return fmt.Errorf("failed to detach partition %s: %w", key, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, child)); err != nil {
		return fmt.Errorf("failed to drop partition %s: %w", key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit partition drop: %w", err)
	}
	r.partitions.Delete(key)
	return nil
}

const lotteryColumns = `
	id, lottery_type, name, sale_start_at, sale_end_at, draw_at, is_active,
	winner_count, total_participants, total_tickets_sold,
	drawn_at, results_exported_at, created_at, updated_at`

func scanLottery(row pgx.Row) (*model.Lottery, error) {
	l := &model.Lottery{}
	var lotteryType string
	var saleStart, saleEnd *time.Time
	err := row.Scan(
		&l.ID, &lotteryType, &l.Name, &saleStart, &saleEnd, &l.DrawAt, &l.IsActive,
		&l.WinnerCount, &l.TotalParticipants, &l.TotalTicketsSold,
		&l.DrawnAt, &l.ResultsExportedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Type = model.LotteryType(lotteryType)
	if saleStart != nil {
		l.SaleStartAt = *saleStart
	}
	if saleEnd != nil {
		l.SaleEndAt = *saleEnd
	}
	return l, nil
}

func (r *PostgresRepository) queryLotteries(ctx context.Context, query string, args ...any) ([]*model.Lottery, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lotteries: %w", err)
	}
	defer rows.Close()

	lotteries := []*model.Lottery{}
	for rows.Next() {
		l, err := scanLottery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lottery: %w", err)
		}
		lotteries = append(lotteries, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lotteries: %w", err)
	}
	return lotteries, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UpsertSchedule inserts the lottery; an existing row is left untouched.
func (r *PostgresRepository) UpsertSchedule(ctx context.Context, rec model.ScheduleRecord) (bool, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO lotteries (id, lottery_type, name, sale_start_at, sale_end_at, draw_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, string(rec.Type), rec.Name, nullableTime(rec.SaleStartAt), nullableTime(rec.SaleEndAt), rec.DrawAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetLottery retrieves a lottery by id.
func (r *PostgresRepository) GetLottery(ctx context.Context, id int64) (*model.Lottery, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	l, err := scanLottery(r.pool.QueryRow(ctx,
		`SELECT `+lotteryColumns+` FROM lotteries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLotteryNotFound
		}
		return nil, fmt.Errorf("failed to get lottery: %w", err)
	}
	return l, nil
}

// SetWinnerConfig updates the winner count; nil totals keep their current value.
func (r *PostgresRepository) SetWinnerConfig(ctx context.Context, cfg model.WinnerConfig) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE lotteries
		SET winner_count = $2,
		    total_participants = COALESCE($3, total_participants),
		    total_tickets_sold = COALESCE($4, total_tickets_sold),
		    updated_at = NOW()
		WHERE id = $1
	`, cfg.LotteryID, cfg.WinnerCount, cfg.TotalParticipants, cfg.TotalTicketsSold)
	if err != nil {
		return fmt.Errorf("failed to set winner config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %w: id %d", model.ErrConfiguration, ErrLotteryNotFound, cfg.LotteryID)
	}
	return nil
}

// DueLotteries returns draw-eligible lotteries ordered by draw time.
func (r *PostgresRepository) DueLotteries(ctx context.Context, asOf time.Time) ([]*model.Lottery, error) {
	return r.queryLotteries(ctx, `
		SELECT `+lotteryColumns+`
		FROM lotteries
		WHERE draw_at <= $1
		  AND is_active
		  AND drawn_at IS NULL
		  AND winner_count IS NOT NULL
		ORDER BY draw_at, id
	`, asOf)
}

// MarkDrawn stamps drawn_at once.
func (r *PostgresRepository) MarkDrawn(ctx context.Context, id int64, at time.Time) error {
	return r.stamp(ctx, "drawn_at", id, at)
}

// MarkResultsExported stamps results_exported_at once.
func (r *PostgresRepository) MarkResultsExported(ctx context.Context, id int64, at time.Time) error {
	return r.stamp(ctx, "results_exported_at", id, at)
}

func (r *PostgresRepository) stamp(ctx context.Context, column string, id int64, at time.Time) error {
	col := pgx.Identifier{column}.Sanitize()
	query := fmt.Sprintf(`
		UPDATE lotteries
		SET %s = COALESCE(%s, $2), updated_at = NOW()
		WHERE id = $1
	`, col, col)

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLotteryNotFound
	}
	return nil
}

// UnexportedDrawnLotteries returns drawn lotteries awaiting export.
func (r *PostgresRepository) UnexportedDrawnLotteries(ctx context.Context) ([]*model.Lottery, error) {
	return r.queryLotteries(ctx, `
		SELECT `+lotteryColumns+`
		FROM lotteries
		WHERE drawn_at IS NOT NULL AND results_exported_at IS NULL
		ORDER BY drawn_at, id
	`)
}
