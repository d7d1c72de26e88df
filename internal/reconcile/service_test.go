package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/event"
	"github.com/supaquiz/server/internal/memory"
	"github.com/supaquiz/server/internal/reconcile"
)

func TestService_ApplyDelta(t *testing.T) {
	type (
		inputs struct {
			startTotal int64
			deltas     []int64
		}

		outputs struct {
			total         int64
			lastNewly     []string
			allUnlocked   []string
			storedCodes   []string
			publishedRuns int
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"crossing the first tier should unlock it exactly once": {
			arrange: func() inputs {
				return inputs{
					startTotal: 990,
					deltas:     []int64{15, 15},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, int64(1020), out.total)
				require.Empty(t, out.lastNewly, "second delta should unlock nothing new")
				require.Equal(t, []string{"A1"}, out.allUnlocked)
				require.Equal(t, []string{"A1"}, out.storedCodes)
			},
		},

		"a large delta should unlock every crossed tier at once": {
			arrange: func() inputs {
				return inputs{
					deltas: []int64{3500},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, int64(3500), out.total)
				require.Equal(t, []string{"A1", "A2", "A3"}, out.lastNewly)
				require.Equal(t, []string{"A1", "A2", "A3"}, out.storedCodes)
			},
		},

		"a delta below every threshold should unlock nothing": {
			arrange: func() inputs {
				return inputs{
					deltas: []int64{999},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, int64(999), out.total)
				require.Empty(t, out.lastNewly)
				require.Empty(t, out.storedCodes)
			},
		},

		"every delta should publish a reconciled event": {
			arrange: func() inputs {
				return inputs{
					deltas: []int64{10, 10, 10},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, 3, out.publishedRuns)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			eb := event.NewBus()
			var mu sync.Mutex
			published := 0
			eb.Subscribe(domain.EventNameScoreReconciled, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				published++
				mu.Unlock()
				return nil
			})

			users := memory.NewUserStore()
			u := &domain.User{UserID: "u1", Username: "alice", ScoreTotal: in.startTotal}
			require.NoError(t, users.Create(context.Background(), u))

			s := reconcile.NewService(reconcile.Config{
				EventBus: eb,
				Users:    users,
				Sessions: memory.NewSessionStore(),
			})

			out := outputs{}
			for _, d := range in.deltas {
				res, err := s.ApplyDelta(context.Background(), "u1", d)
				require.NoError(t, err)
				out.total = res.Total
				out.lastNewly = res.NewlyUnlocked
				out.allUnlocked = res.AllUnlocked
			}

			eb.Stop()

			stored, err := users.Get(context.Background(), "u1")
			require.NoError(t, err)
			out.storedCodes = stored.Achievements
			out.publishedRuns = published

			tt.assert(t, out)
		})
	}
}

func TestService_ApplyDelta_Concurrent(t *testing.T) {
	eb := event.NewBus()
	users := memory.NewUserStore()
	require.NoError(t, users.Create(context.Background(), &domain.User{UserID: "u1", Username: "alice"}))

	s := reconcile.NewService(reconcile.Config{
		EventBus: eb,
		Users:    users,
		Sessions: memory.NewSessionStore(),
	})

	const workers = 100
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyDelta(context.Background(), "u1", 10)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	eb.Stop()

	u, err := users.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(workers*10), u.ScoreTotal, "no increment may be lost")
	require.Equal(t, []string{"A1"}, u.Achievements, "threshold crossed once across all workers")
}

func TestService_ApplyDelta_UserNotFound(t *testing.T) {
	eb := event.NewBus()
	defer eb.Stop()

	s := reconcile.NewService(reconcile.Config{
		EventBus: eb,
		Users:    memory.NewUserStore(),
		Sessions: memory.NewSessionStore(),
	})

	_, err := s.ApplyDelta(context.Background(), "missing", 10)
	require.Error(t, err)
}

func TestService_Recompute(t *testing.T) {
	eb := event.NewBus()
	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()

	// Stored total is drifted on purpose, recompute must overwrite it.
	require.NoError(t, users.Create(context.Background(), &domain.User{
		UserID:     "u1",
		Username:   "alice",
		ScoreTotal: 424242,
	}))

	insert := func(id string, score int64, ended bool) {
		ps := &domain.PlaySession{
			SessionID: id,
			UserID:    "u1",
			Kind:      domain.KindTraining,
			Training:  &domain.TrainingDetails{QuestionnaireID: "q1"},
			Status:    domain.SessionActive,
			Score:     score,
			StartTime: time.Now(),
		}
		require.NoError(t, sessions.Insert(context.Background(), ps))
		if ended {
			_, err := sessions.Finalize(context.Background(), id, score, time.Now())
			require.NoError(t, err)
		}
	}

	insert("s1", 700, true)
	insert("s2", 400, true)
	insert("s3", 999, false) // active, must not count

	s := reconcile.NewService(reconcile.Config{
		EventBus: eb,
		Users:    users,
		Sessions: sessions,
	})

	res, err := s.Recompute(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1100), res.Total, "only ended sessions count")
	require.Equal(t, []string{"A1"}, res.NewlyUnlocked)

	// Running again with no session changes converges.
	res2, err := s.Recompute(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1100), res2.Total)
	require.Empty(t, res2.NewlyUnlocked)
	require.Equal(t, []string{"A1"}, res2.AllUnlocked)

	eb.Stop()

	u, err := users.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(1100), u.ScoreTotal)
}

func TestService_Recompute_KeepsAchievementsWhenTotalDrops(t *testing.T) {
	eb := event.NewBus()
	defer eb.Stop()

	users := memory.NewUserStore()
	require.NoError(t, users.Create(context.Background(), &domain.User{
		UserID:       "u1",
		Username:     "alice",
		ScoreTotal:   1500,
		Achievements: []string{"A1"},
	}))

	s := reconcile.NewService(reconcile.Config{
		EventBus: eb,
		Users:    users,
		Sessions: memory.NewSessionStore(), // no ended sessions, recompute lands on 0
	})

	res, err := s.Recompute(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Total)
	require.Empty(t, res.NewlyUnlocked)
	require.Equal(t, []string{"A1"}, res.AllUnlocked, "unlocks never regress")

	u, err := users.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"A1"}, u.Achievements)
}
