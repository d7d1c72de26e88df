package domain

const (
	EventNameScoreReconciled    = "score.reconciled"
	EventNameLeaderboardUpdated = "leaderboard.updated"
	EventNameRoomClosed         = "room.closed"
)

// EventScoreReconciled fires after the reconciler updates a user's total,
// whether by delta or full recompute.
type EventScoreReconciled struct {
	UserID        string
	Total         int64
	NewlyUnlocked []string
}

func (EventScoreReconciled) Name() string { return EventNameScoreReconciled }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }

type EventRoomClosed struct {
	Room   Room
	Reason string
}

func (EventRoomClosed) Name() string { return EventNameRoomClosed }
