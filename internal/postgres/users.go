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

const codeUniqueViolation = "23505"

// UserStore persists user records. Score mutations are single-statement
// read-modify-writes so concurrent deltas cannot be lost.
type UserStore struct {
	db *pgxpool.Pool
}

func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	const stmt = `
INSERT INTO users (user_id, username, avatar, score_total, achievement_state, create_time)
VALUES ($1, $2, $3, 0, '{}', now());`

	_, err := s.db.Exec(ctx, stmt, u.UserID, u.Username, u.Avatar)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("user already exists: %s", u.UserID),
			errors.WithCause(err))
	}

	return err
}

func (s *UserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	const stmt = `
SELECT user_id, username, avatar, score_total, achievement_state, create_time
FROM users
WHERE user_id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, userID).
		Scan(&u.UserID, &u.Username, &u.Avatar, &u.ScoreTotal, &u.Achievements, &u.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}
	if err != nil {
		return nil, err
	}

	return &u, nil
}

func (s *UserStore) List(ctx context.Context) ([]domain.User, error) {
	const stmt = `
SELECT user_id, username, avatar, score_total, achievement_state, create_time
FROM users
ORDER BY score_total DESC, username ASC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		err := r.Scan(&u.UserID, &u.Username, &u.Avatar, &u.ScoreTotal, &u.Achievements, &u.CreateTime)
		return u, err
	})
}

// AddScore increments the total in a single atomic statement and returns the
// post-increment total together with the achievement set as it stood.
func (s *UserStore) AddScore(ctx context.Context, userID string, delta int64) (int64, []string, error) {
	const stmt = `
UPDATE users
SET score_total = score_total + $2
WHERE user_id = $1
RETURNING score_total, achievement_state;`

	var (
		total        int64
		achievements []string
	)
	err := s.db.QueryRow(ctx, stmt, userID, delta).Scan(&total, &achievements)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return 0, nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}
	if err != nil {
		return 0, nil, err
	}

	return total, achievements, nil
}

// SetScore overwrites the total. The returned achievement set is untouched
// by this statement, so it reflects the pre-overwrite baseline.
func (s *UserStore) SetScore(ctx context.Context, userID string, total int64) ([]string, error) {
	const stmt = `
UPDATE users
SET score_total = $2
WHERE user_id = $1
RETURNING achievement_state;`

	var achievements []string
	err := s.db.QueryRow(ctx, stmt, userID, total).Scan(&achievements)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}
	if err != nil {
		return nil, err
	}

	return achievements, nil
}

// SetAchievements writes the union set. Writing an identical set is a
// content no-op at the database.
func (s *UserStore) SetAchievements(ctx context.Context, userID string, codes []string) error {
	const stmt = `
UPDATE users
SET achievement_state = $2
WHERE user_id = $1 AND achievement_state IS DISTINCT FROM $2;`

	_, err := s.db.Exec(ctx, stmt, userID, codes)
	return err
}
