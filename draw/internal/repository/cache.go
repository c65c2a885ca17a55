package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lottoworks/drawstack/draw/pkg/model"
)

const winnersKeyPrefix = "lottery:winners:"

// WinnerCache is a Redis read-through cache for GetWinners in front of a
// TicketStore. Writes that change a lottery's winners invalidate its key.
// Redis failures fall back to the underlying store.
type WinnerCache struct {
	TicketStore
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewWinnerCache wraps store. A nil client disables caching.
func NewWinnerCache(store TicketStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *WinnerCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &WinnerCache{
		TicketStore: store,
		redis:       client,
		ttl:         ttl,
		logger:      logger.With(slog.String("component", "winner_cache")),
	}
}

func (c *WinnerCache) enabled() bool {
	return c.redis != nil
}

func winnersKey(lotteryID int64) string {
	return winnersKeyPrefix + strconv.FormatInt(lotteryID, 10)
}

// GetWinners serves from Redis when present. Empty winner lists are not cached.
func (c *WinnerCache) GetWinners(ctx context.Context, lotteryID int64) ([]model.Winner, error) {
	if !c.enabled() {
		return c.TicketStore.GetWinners(ctx, lotteryID)
	}

	key := winnersKey(lotteryID)
	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var winners []model.Winner
		if err := json.Unmarshal(data, &winners); err == nil {
			return winners, nil
		}
		c.logger.Warn("discarding corrupt cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("winner cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	winners, err := c.TicketStore.GetWinners(ctx, lotteryID)
	if err != nil || len(winners) == 0 {
		return winners, err
	}

	if payload, err := json.Marshal(winners); err == nil {
		if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("winner cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return winners, nil
}

// RecordWinners writes through and invalidates the lottery's entry.
func (c *WinnerCache) RecordWinners(ctx context.Context, lotteryType model.LotteryType, lotteryID int64, winners []model.Winner) (int, error) {
	matched, err := c.TicketStore.RecordWinners(ctx, lotteryType, lotteryID, winners)
	if err != nil {
		return matched, err
	}
	return matched, c.invalidate(ctx, lotteryID)
}

// DropPartition drops the partition and invalidates the lottery's entry.
func (c *WinnerCache) DropPartition(ctx context.Context, lotteryType model.LotteryType, lotteryID int64) error {
	if err := c.TicketStore.DropPartition(ctx, lotteryType, lotteryID); err != nil {
		return err
	}
	return c.invalidate(ctx, lotteryID)
}

func (c *WinnerCache) invalidate(ctx context.Context, lotteryID int64) error {
	if !c.enabled() {
		return nil
	}
	if err := c.redis.Del(ctx, winnersKey(lotteryID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate winners cache: %w", err)
	}
	return nil
}
