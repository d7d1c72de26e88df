package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

const maxConcurrentPublishes = 16

// Notification is the envelope pushed onto per-user Redis channels.
// Clients subscribed through the realtime gateway receive it verbatim.
type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (a *API) userChannel(userID string) string {
	return fmt.Sprintf("%s:notifications:user:%s", a.prefix, userID)
}

func (a *API) roomChannel(code string) string {
	return fmt.Sprintf("%s:notifications:room:%s", a.prefix, code)
}

func (a *API) notify(ctx context.Context, channel string, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return errors.Internal(err)
	}

	if err := a.redis.Publish(ctx, channel, b).Err(); err != nil {
		return errors.New(errors.CodeInternal,
			errors.WithMessagef("publish notification: channel=%s", channel),
			errors.WithCause(err))
	}

	return nil
}

// PublishLeaderboardUpdated fans the refreshed standings out to every
// user currently on the board.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentPublishes)

	for _, entry := range e.Leaderboard.Entries {
		userID := entry.UserID
		eg.Go(func() error {
			return a.notify(ctx, a.userChannel(userID), Notification{
				Type:    "leaderboard.updated",
				Payload: toLeaderboardView(e.Leaderboard),
			})
		})
	}

	return eg.Wait()
}

// PublishAchievementsUnlocked tells a user about achievements they just
// earned. Reconciliations that unlock nothing stay quiet.
func (a *API) PublishAchievementsUnlocked(ctx context.Context, e domain.EventScoreReconciled) error {
	if len(e.NewlyUnlocked) == 0 {
		return nil
	}

	return a.notify(ctx, a.userChannel(e.UserID), Notification{
		Type: "achievements.unlocked",
		Payload: map[string]any{
			"total_score":    e.Total,
			"newly_unlocked": e.NewlyUnlocked,
		},
	})
}

// PublishRoomClosed announces the end of a game room on its channel so
// every participant stops accepting answers.
func (a *API) PublishRoomClosed(ctx context.Context, e domain.EventRoomClosed) error {
	return a.notify(ctx, a.roomChannel(e.Room.Code), Notification{
		Type: "room.closed",
		Payload: map[string]any{
			"code":   e.Room.Code,
			"reason": e.Reason,
		},
	})
}
