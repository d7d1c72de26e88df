package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a player account. ScoreTotal and Achievements are owned by
// the reconciler: no other component writes them.
type User struct {
	UserID       string
	Username     string
	Avatar       string
	ScoreTotal   int64
	Achievements []string
	CreateTime   time.Time
}

// SessionStatus is the play-session lifecycle: active -> ended, one way.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// SessionKind discriminates the two play-session payload shapes.
type SessionKind string

const (
	KindGame     SessionKind = "game"
	KindTraining SessionKind = "training"
)

// Outcome is one answered (or skipped) question within a play session.
type Outcome struct {
	QuestionID     string
	Answered       bool
	Correct        bool
	ResponseTimeMs int64
	Score          int64
}

// GameDetails is the payload of a multiplayer play session.
type GameDetails struct {
	RoomCode string
	QuizID   string
}

// TrainingDetails is the payload of a solo training play session.
type TrainingDetails struct {
	QuestionnaireID string
	Theme           string
}

// PlaySession is one user's play-through of a quiz or training set. Kind
// selects which of Game/Training is populated; the envelope fields are shared.
type PlaySession struct {
	SessionID  string
	UserID     string
	Kind       SessionKind
	Game       *GameDetails
	Training   *TrainingDetails
	Status     SessionStatus
	Score      int64
	Completion decimal.Decimal
	Outcomes   []Outcome
	StartTime  time.Time
	EndTime    *time.Time
}

// Room is an ephemeral multiplayer game session identified by a shareable code.
type Room struct {
	Code            string
	HostID          string
	QuizID          string
	Active          bool
	DurationMinutes int
	Participants    []string
	CreateTime      time.Time
	ExpireTime      time.Time
}

type Quiz struct {
	QuizID string
	Title  string
	Theme  string
}

type Question struct {
	QuestionID   string
	QuizID       string
	QuestionText string
	Options      []string
	CorrectIndex int
}

// Leaderboard is the global scoreboard, ordered by total score descending.
type Leaderboard struct {
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	UserID string
	Score  int64
}
