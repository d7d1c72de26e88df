package play

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
	"github.com/supaquiz/server/internal/reconcile"
	"github.com/supaquiz/server/internal/telemetry"
)

// pointsPerCorrect is the fixed score increment for a correct answer.
const pointsPerCorrect = 10

// questionsPerSet is the nominal size of a play set, used to derive the
// completion percentage from the number of recorded outcomes.
const questionsPerSet = 10

// SessionStore persists play sessions. Finalize must enforce the one-way
// active -> ended transition at the storage layer.
type SessionStore interface {
	Insert(ctx context.Context, ps *domain.PlaySession) error
	Get(ctx context.Context, sessionID string) (*domain.PlaySession, error)
	Update(ctx context.Context, ps *domain.PlaySession) error
	Finalize(ctx context.Context, sessionID string, score int64, endTime time.Time) (*domain.PlaySession, error)
	ListByUser(ctx context.Context, userID string) ([]domain.PlaySession, error)
}

// Reconciler is the single hand-off point for a finalized session's score.
type Reconciler interface {
	ApplyDelta(ctx context.Context, userID string, sessionScore int64) (*reconcile.Result, error)
}

// Prewarmer warms the recommendation cache for a user. Implementations are
// asynchronous and never report failure.
type Prewarmer interface {
	Prewarm(userID string)
}

type Config struct {
	Store      SessionStore
	Reconciler Reconciler
	Prewarmer  Prewarmer
}

// Service records play-throughs and hands each one to the reconciler exactly
// once at finalization.
type Service struct {
	store      SessionStore
	reconciler Reconciler
	prewarmer  Prewarmer
}

func NewService(c Config) *Service {
	return &Service{
		store:      c.Store,
		reconciler: c.Reconciler,
		prewarmer:  c.Prewarmer,
	}
}

type StartRequest struct {
	UserID string
	Kind   domain.SessionKind

	// Game payload
	RoomCode string
	QuizID   string

	// Training payload
	QuestionnaireID string
	Theme           string
}

// Start creates a play session in active status and returns it.
func (s *Service) Start(ctx context.Context, req StartRequest) (*domain.PlaySession, error) {
	if _, err := uuid.Parse(req.UserID); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("user_id must be a UUID: %q", req.UserID),
			errors.WithCause(err))
	}

	ps := &domain.PlaySession{
		UserID:     req.UserID,
		Kind:       req.Kind,
		Status:     domain.SessionActive,
		Completion: decimal.Zero,
		StartTime:  time.Now(),
	}

	switch req.Kind {
	case domain.KindGame:
		if req.RoomCode == "" || req.QuizID == "" {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("game session requires room code and quiz id"))
		}
		ps.Game = &domain.GameDetails{RoomCode: req.RoomCode, QuizID: req.QuizID}
	case domain.KindTraining:
		if req.QuestionnaireID == "" {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("training session requires questionnaire id"))
		}
		ps.Training = &domain.TrainingDetails{QuestionnaireID: req.QuestionnaireID, Theme: req.Theme}
	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("unknown session kind: %q", req.Kind))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Internal(err)
	}
	ps.SessionID = id.String()

	if err := s.store.Insert(ctx, ps); err != nil {
		return nil, err
	}

	return ps, nil
}

type RecordAnswerRequest struct {
	SessionID      string
	QuestionID     string
	Correct        bool
	ResponseTimeMs int64
}

type RecordAnswerResponse struct {
	Score      int64
	Completion decimal.Decimal
}

// RecordAnswer appends one outcome to the session and updates the running
// score and completion percentage. Fails once the session has ended.
func (s *Service) RecordAnswer(ctx context.Context, req RecordAnswerRequest) (*RecordAnswerResponse, error) {
	ps, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ps.Status == domain.SessionEnded {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already ended: %s", req.SessionID))
	}

	var itemScore int64
	if req.Correct {
		itemScore = pointsPerCorrect
	}

	ps.Outcomes = append(ps.Outcomes, domain.Outcome{
		QuestionID:     req.QuestionID,
		Answered:       true,
		Correct:        req.Correct,
		ResponseTimeMs: req.ResponseTimeMs,
		Score:          itemScore,
	})
	ps.Score += itemScore
	ps.Completion = completion(len(ps.Outcomes))

	if err := s.store.Update(ctx, ps); err != nil {
		return nil, err
	}

	return &RecordAnswerResponse{
		Score:      ps.Score,
		Completion: ps.Completion,
	}, nil
}

type FinishRequest struct {
	SessionID string
	// FinalScore overrides the accumulated score when the client computes
	// scoring itself.
	FinalScore *int64
}

type FinishResponse struct {
	Score         int64
	Total         int64
	NewlyUnlocked []string
	AllUnlocked   []string
}

// Finish transitions the session to ended and applies its score to the
// user's total exactly once. A second call is rejected: the store's
// status-guarded transition is what protects the reconciler's
// single-application invariant.
func (s *Service) Finish(ctx context.Context, req FinishRequest) (*FinishResponse, error) {
	ps, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	score := ps.Score
	if req.FinalScore != nil {
		score = *req.FinalScore
	}

	ps, err = s.store.Finalize(ctx, req.SessionID, score, time.Now())
	if err != nil {
		return nil, err
	}

	res, err := s.reconciler.ApplyDelta(ctx, ps.UserID, ps.Score)
	if err != nil {
		return nil, err
	}

	telemetry.SessionsFinalized.Inc()

	if s.prewarmer != nil {
		s.prewarmer.Prewarm(ps.UserID)
	}

	slog.InfoContext(ctx, "play: session finalized",
		"session", ps.SessionID,
		"user", ps.UserID,
		"score", ps.Score,
		"total", res.Total,
	)

	return &FinishResponse{
		Score:         ps.Score,
		Total:         res.Total,
		NewlyUnlocked: res.NewlyUnlocked,
		AllUnlocked:   res.AllUnlocked,
	}, nil
}

// ListByUser returns every play session recorded for a user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.PlaySession, error) {
	return s.store.ListByUser(ctx, userID)
}

// OpenGameSession starts a game session on behalf of a room participant.
func (s *Service) OpenGameSession(ctx context.Context, userID, roomCode, quizID string) error {
	_, err := s.Start(ctx, StartRequest{
		UserID:   userID,
		Kind:     domain.KindGame,
		RoomCode: roomCode,
		QuizID:   quizID,
	})
	return err
}

func completion(answered int) decimal.Decimal {
	pct := decimal.NewFromInt(int64(answered * 100)).Div(decimal.NewFromInt(questionsPerSet))
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	return pct
}
