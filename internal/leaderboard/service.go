package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
	"github.com/supaquiz/server/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultTopN     = 10
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service maintains the global leaderboard of user totals on a Redis sorted
// set. It follows reconciliation events, so it converges with whatever the
// reconciler persisted without a second source of truth.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoreReconciled, func(ctx context.Context, e event.Event) error {
		return s.ApplyReconciled(ctx, e.(domain.EventScoreReconciled))
	})

	return s
}

type TopRequest struct {
	Limit int
}

// Top returns the highest totals, best first.
func (s *Service) Top(ctx context.Context, req TopRequest) (*domain.Leaderboard, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTopN
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.boardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard is empty"))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserID: z.Member.(string),
			Score:  int64(z.Score),
		})
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

// ApplyReconciled overwrites the user's entry with the reconciled total.
func (s *Service) ApplyReconciled(ctx context.Context, e domain.EventScoreReconciled) error {
	if err := s.redis.ZAdd(ctx, s.boardKey(), redis.Z{
		Score:  float64(e.Total),
		Member: e.UserID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublish(ctx)
}

// schedulePublish publishes leaderboard changes at most once per interval.
// Many totals reconcile in a short window after a game ends; the SETNX gate
// collapses them into one published snapshot.
func (s *Service) schedulePublish(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.timeKey(), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publish(ctx)
}

func (s *Service) publish(ctx context.Context) error {
	l, err := s.Top(ctx, TopRequest{})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return s.redis.Set(ctx, s.timeKey(), time.Now().UnixMilli(), publishInterval).Err()
}

func (s *Service) boardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) timeKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
