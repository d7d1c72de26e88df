package postgres

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

const codeForeignKeyViolation = "23503"

// QuizStore persists quizzes and their questions.
type QuizStore struct {
	db *pgxpool.Pool
}

func NewQuizStore(db *pgxpool.Pool) *QuizStore {
	return &QuizStore{db: db}
}

func (s *QuizStore) InsertQuiz(ctx context.Context, q domain.Quiz) error {
	const stmt = `INSERT INTO quizzes (quiz_id, title, theme) VALUES ($1, $2, $3);`

	_, err := s.db.Exec(ctx, stmt, q.QuizID, q.Title, q.Theme)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("quiz already exists: %s", q.QuizID),
			errors.WithCause(err))
	}

	return err
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	const stmt = `SELECT quiz_id, title, theme FROM quizzes WHERE quiz_id = $1;`

	var q domain.Quiz
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&q.QuizID, &q.Title, &q.Theme)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	if err != nil {
		return nil, err
	}

	return &q, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	const stmt = `SELECT quiz_id, title, theme FROM quizzes ORDER BY title ASC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Quiz, error) {
		var q domain.Quiz
		err := r.Scan(&q.QuizID, &q.Title, &q.Theme)
		return q, err
	})
}

func (s *QuizStore) InsertQuestion(ctx context.Context, q domain.Question) error {
	const stmt = `
INSERT INTO questions (question_id, quiz_id, question_text, options, correct_index)
VALUES ($1, $2, $3, $4, $5);`

	_, err := s.db.Exec(ctx, stmt, q.QuestionID, q.QuizID, q.QuestionText, q.Options, q.CorrectIndex)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("question already exists: %s", q.QuestionID),
				errors.WithCause(err))
		case codeForeignKeyViolation:
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("quiz not found: %s", q.QuizID),
				errors.WithCause(err))
		}
	}

	return err
}

func (s *QuizStore) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, quiz_id, question_text, options, correct_index
FROM questions
WHERE quiz_id = $1
ORDER BY question_id ASC;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := r.Scan(&q.QuestionID, &q.QuizID, &q.QuestionText, &q.Options, &q.CorrectIndex)
		return q, err
	})
}
