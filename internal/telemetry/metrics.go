package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supaquiz_sessions_finalized_total",
		Help: "Number of play sessions transitioned to ended.",
	})

	AchievementsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supaquiz_achievements_unlocked_total",
		Help: "Number of achievement tiers unlocked by the reconciler.",
	})

	RoomsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supaquiz_rooms_expired_total",
		Help: "Number of game rooms closed by the expiry scheduler.",
	})

	PrewarmFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supaquiz_recommend_prewarm_failures_total",
		Help: "Number of discarded recommendation prewarm failures.",
	})
)
