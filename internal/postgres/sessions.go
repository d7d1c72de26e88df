package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

// SessionStore persists play sessions and their per-question outcomes.
type SessionStore struct {
	db *pgxpool.Pool
}

func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Insert(ctx context.Context, ps *domain.PlaySession) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const stmt = `
INSERT INTO play_sessions
	(session_id, user_id, kind, room_code, quiz_id, questionnaire_id, theme, status, score, completion, start_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	var (
		roomCode, quizID       *string
		questionnaireID, theme *string
	)
	if ps.Game != nil {
		roomCode, quizID = &ps.Game.RoomCode, &ps.Game.QuizID
	}
	if ps.Training != nil {
		questionnaireID, theme = &ps.Training.QuestionnaireID, &ps.Training.Theme
	}

	_, err = tx.Exec(ctx, stmt,
		ps.SessionID, ps.UserID, ps.Kind, roomCode, quizID, questionnaireID, theme,
		ps.Status, ps.Score, ps.Completion, ps.StartTime)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if err = insertOutcomes(ctx, tx, ps.SessionID, ps.Outcomes); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.PlaySession, error) {
	const stmt = `
SELECT session_id, user_id, kind, room_code, quiz_id, questionnaire_id, theme, status, score, completion, start_time, end_time
FROM play_sessions
WHERE session_id = $1;`

	ps, err := scanSession(s.db.QueryRow(ctx, stmt, sessionID))
	if err != nil {
		return nil, err
	}

	ps.Outcomes, err = s.outcomes(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return ps, nil
}

// Update rewrites the mutable envelope and the outcome list of an active
// session. The status guard keeps ended sessions immutable.
func (s *SessionStore) Update(ctx context.Context, ps *domain.PlaySession) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const stmt = `
UPDATE play_sessions
SET score = $2, completion = $3
WHERE session_id = $1 AND status = 'active';`

	tag, err := tx.Exec(ctx, stmt, ps.SessionID, ps.Score, ps.Completion)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrEnded(ctx, ps.SessionID)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM play_outcomes WHERE session_id = $1;`, ps.SessionID); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}
	if err = insertOutcomes(ctx, tx, ps.SessionID, ps.Outcomes); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Finalize performs the one-way active -> ended transition. The WHERE guard
// makes a second finalization fail instead of double-applying the score.
func (s *SessionStore) Finalize(ctx context.Context, sessionID string, score int64, endTime time.Time) (*domain.PlaySession, error) {
	const stmt = `
UPDATE play_sessions
SET status = 'ended', score = $2, end_time = $3
WHERE session_id = $1 AND status = 'active'
RETURNING session_id, user_id, kind, room_code, quiz_id, questionnaire_id, theme, status, score, completion, start_time, end_time;`

	ps, err := scanSession(s.db.QueryRow(ctx, stmt, sessionID, score, endTime))
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Code == errors.CodeNotFound {
			return nil, s.missingOrEnded(ctx, sessionID)
		}
		return nil, err
	}

	ps.Outcomes, err = s.outcomes(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return ps, nil
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]domain.PlaySession, error) {
	const stmt = `
SELECT session_id, user_id, kind, room_code, quiz_id, questionnaire_id, theme, status, score, completion, start_time, end_time
FROM play_sessions
WHERE user_id = $1
ORDER BY start_time DESC;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}

	sessions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.PlaySession, error) {
		ps, err := scanSession(r)
		if err != nil {
			return domain.PlaySession{}, err
		}
		return *ps, nil
	})
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		sessions[i].Outcomes, err = s.outcomes(ctx, sessions[i].SessionID)
		if err != nil {
			return nil, err
		}
	}

	return sessions, nil
}

// SumEndedScores aggregates the scores of every finalized session of a user.
func (s *SessionStore) SumEndedScores(ctx context.Context, userID string) (int64, error) {
	const stmt = `
SELECT COALESCE(SUM(score), 0)
FROM play_sessions
WHERE user_id = $1 AND status = 'ended';`

	var total int64
	if err := s.db.QueryRow(ctx, stmt, userID).Scan(&total); err != nil {
		return 0, err
	}

	return total, nil
}

func (s *SessionStore) missingOrEnded(ctx context.Context, sessionID string) error {
	var status domain.SessionStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM play_sessions WHERE session_id = $1;`, sessionID).Scan(&status)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	if err != nil {
		return err
	}

	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("session already ended: %s", sessionID))
}

func (s *SessionStore) outcomes(ctx context.Context, sessionID string) ([]domain.Outcome, error) {
	const stmt = `
SELECT question_id, answered, correct, response_time_ms, score
FROM play_outcomes
WHERE session_id = $1
ORDER BY idx ASC;`

	rows, err := s.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Outcome, error) {
		var o domain.Outcome
		err := r.Scan(&o.QuestionID, &o.Answered, &o.Correct, &o.ResponseTimeMs, &o.Score)
		return o, err
	})
}

func insertOutcomes(ctx context.Context, tx pgx.Tx, sessionID string, outcomes []domain.Outcome) error {
	const stmt = `
INSERT INTO play_outcomes (session_id, idx, question_id, answered, correct, response_time_ms, score)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	for i, o := range outcomes { // TODO: batch insert
		if _, err := tx.Exec(ctx, stmt, sessionID, i, o.QuestionID, o.Answered, o.Correct, o.ResponseTimeMs, o.Score); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*domain.PlaySession, error) {
	var (
		ps                     domain.PlaySession
		roomCode, quizID       *string
		questionnaireID, theme *string
	)

	err := r.Scan(&ps.SessionID, &ps.UserID, &ps.Kind, &roomCode, &quizID, &questionnaireID, &theme,
		&ps.Status, &ps.Score, &ps.Completion, &ps.StartTime, &ps.EndTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found"))
	}
	if err != nil {
		return nil, err
	}

	switch ps.Kind {
	case domain.KindGame:
		ps.Game = &domain.GameDetails{}
		if roomCode != nil {
			ps.Game.RoomCode = *roomCode
		}
		if quizID != nil {
			ps.Game.QuizID = *quizID
		}
	case domain.KindTraining:
		ps.Training = &domain.TrainingDetails{}
		if questionnaireID != nil {
			ps.Training.QuestionnaireID = *questionnaireID
		}
		if theme != nil {
			ps.Training.Theme = *theme
		}
	}

	return &ps, nil
}
