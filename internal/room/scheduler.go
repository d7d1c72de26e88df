package room

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supaquiz/server/internal/telemetry"
)

const defaultPollInterval = time.Second

// Scheduler drains the persisted expiry queue and closes rooms whose
// deadline has passed. Because the queue lives in Redis, expirations queued
// before a restart are still processed afterwards.
type Scheduler struct {
	service  *Service
	interval time.Duration
}

func NewScheduler(s *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Scheduler{service: s, interval: interval}
}

// Run polls until ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(sc.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sc.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "room: expiry sweep failed", "error", err)
			}
		}
	}
}

// Sweep processes every queue entry that is due. A room already closed
// manually is skipped; its entry is removed either way.
func (sc *Scheduler) Sweep(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	due, err := sc.service.redis.ZRangeByScore(ctx, sc.service.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, code := range due {
		if err := sc.service.Expire(ctx, code); err != nil {
			slog.ErrorContext(ctx, "room: expire failed", "code", code, "error", err)
			continue
		}

		if err := sc.service.redis.ZRem(ctx, sc.service.expiryKey(), code).Err(); err != nil {
			return err
		}

		telemetry.RoomsExpired.Inc()
	}

	return nil
}
