package room_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/room"
)

func TestScheduler_Sweep(t *testing.T) {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})

	eb := event.NewBus()
	s := room.NewService(room.Config{
		EventBus:  eb,
		Redis:     rc,
		Prefix:    "test",
		Questions: &fakeQuestions{},
		Opener:    &fakeOpener{},
	})

	r, err := s.Create(context.Background(), room.CreateRequest{
		HostID: uuid.NewString(),
		QuizID: uuid.NewString(),
	})
	require.NoError(t, err)

	// Force the queued deadline into the past.
	err = rc.ZAdd(context.Background(), "test:rooms:expiry", redis.Z{
		Score:  float64(time.Now().Add(-time.Minute).Unix()),
		Member: r.Code,
	}).Err()
	require.NoError(t, err)

	sc := room.NewScheduler(s, time.Millisecond)
	require.NoError(t, sc.Sweep(context.Background()))

	got, err := s.Get(context.Background(), r.Code)
	require.NoError(t, err)
	require.False(t, got.Active, "due room should be closed by the sweep")

	n, err := rc.ZCard(context.Background(), "test:rooms:expiry").Result()
	require.NoError(t, err)
	require.Zero(t, n, "processed entry leaves the queue")

	eb.Stop()
}

func TestScheduler_Sweep_FutureDeadlineUntouched(t *testing.T) {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})

	eb := event.NewBus()
	defer eb.Stop()

	s := room.NewService(room.Config{
		EventBus:  eb,
		Redis:     rc,
		Prefix:    "test",
		Questions: &fakeQuestions{},
		Opener:    &fakeOpener{},
	})

	r, err := s.Create(context.Background(), room.CreateRequest{
		HostID: uuid.NewString(),
		QuizID: uuid.NewString(),
	})
	require.NoError(t, err)

	sc := room.NewScheduler(s, time.Millisecond)
	require.NoError(t, sc.Sweep(context.Background()))

	got, err := s.Get(context.Background(), r.Code)
	require.NoError(t, err)
	require.True(t, got.Active, "room stays open until its deadline")
}
