package reconcile

import (
	"context"
	"fmt"

	"github.com/supaquiz/server/internal/achievement"
	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/telemetry"
)

// UserStore is the persistence the reconciler needs from the user record
// store. AddScore must be a single atomic read-modify-write at the storage
// layer: concurrent deltas for the same user must not be lost.
type UserStore interface {
	// AddScore atomically adds delta to the user's total and returns the
	// post-increment total along with the achievement codes held before this
	// call touched them.
	AddScore(ctx context.Context, userID string, delta int64) (total int64, achievements []string, err error)
	// SetScore overwrites the user's total and returns the achievement codes
	// held before the overwrite.
	SetScore(ctx context.Context, userID string, total int64) (achievements []string, err error)
	// SetAchievements persists the full unlocked set. Writing the same set
	// twice is a content no-op.
	SetAchievements(ctx context.Context, userID string, codes []string) error
}

// SessionSummer aggregates finalized play-session scores.
type SessionSummer interface {
	SumEndedScores(ctx context.Context, userID string) (int64, error)
}

type Config struct {
	EventBus *event.Bus
	Users    UserStore
	Sessions SessionSummer
}

// Service keeps User.ScoreTotal and User.Achievements consistent with
// finalized play sessions. It is the only writer of either field.
type Service struct {
	eb       *event.Bus
	users    UserStore
	sessions SessionSummer
}

func NewService(c Config) *Service {
	return &Service{
		eb:       c.EventBus,
		users:    c.Users,
		sessions: c.Sessions,
	}
}

// Result reports the outcome of a reconciliation pass.
type Result struct {
	Total         int64
	NewlyUnlocked []string
	AllUnlocked   []string
}

// ApplyDelta adds a finalized session's score to the user's total and unlocks
// any newly crossed achievement tiers. The increment happens first, so a
// failure persisting achievements never leaves an unlock unjustified by the
// stored total.
func (s *Service) ApplyDelta(ctx context.Context, userID string, sessionScore int64) (*Result, error) {
	total, current, err := s.users.AddScore(ctx, userID, sessionScore)
	if err != nil {
		return nil, fmt.Errorf("add score: user=%s: %w", userID, err)
	}

	return s.unlock(ctx, userID, total, current)
}

// Recompute derives the user's total from every ended play session and
// overwrites the stored total with it. Running it repeatedly with no
// intervening session changes converges: same total, same achievement set.
func (s *Service) Recompute(ctx context.Context, userID string) (*Result, error) {
	total, err := s.sessions.SumEndedScores(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum ended sessions: user=%s: %w", userID, err)
	}

	current, err := s.users.SetScore(ctx, userID, total)
	if err != nil {
		return nil, fmt.Errorf("set score: user=%s: %w", userID, err)
	}

	return s.unlock(ctx, userID, total, current)
}

func (s *Service) unlock(ctx context.Context, userID string, total int64, current []string) (*Result, error) {
	all, newly := achievement.Merge(current, total)

	if len(all) != len(current) {
		if err := s.users.SetAchievements(ctx, userID, all); err != nil {
			return nil, fmt.Errorf("set achievements: user=%s: %w", userID, err)
		}
	}

	telemetry.AchievementsUnlocked.Add(float64(len(newly)))

	s.eb.Publish(ctx, domain.EventScoreReconciled{
		UserID:        userID,
		Total:         total,
		NewlyUnlocked: newly,
	})

	return &Result{
		Total:         total,
		NewlyUnlocked: newly,
		AllUnlocked:   all,
	}, nil
}
