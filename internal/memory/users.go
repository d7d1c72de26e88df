package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

// UserStore is a mutex-guarded in-memory user store. It backs development
// runs without Postgres and doubles as the test store; AddScore is atomic
// under the store lock, matching the contract of the SQL implementation.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.UserID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("user already exists: %s", u.UserID))
	}

	cp := *u
	cp.CreateTime = time.Now()
	cp.Achievements = slices.Clone(u.Achievements)
	s.users[u.UserID] = &cp
	return nil
}

func (s *UserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}

	cp := *u
	cp.Achievements = slices.Clone(u.Achievements)
	return &cp, nil
}

// List returns users ordered by total score, then username, matching the
// order of the SQL implementation.
func (s *UserStore) List(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		cp.Achievements = slices.Clone(u.Achievements)
		out = append(out, cp)
	}

	slices.SortFunc(out, func(a, b domain.User) int {
		if c := cmp.Compare(b.ScoreTotal, a.ScoreTotal); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *UserStore) AddScore(ctx context.Context, userID string, delta int64) (int64, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}

	u.ScoreTotal += delta
	return u.ScoreTotal, slices.Clone(u.Achievements), nil
}

func (s *UserStore) SetScore(ctx context.Context, userID string, total int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}

	before := slices.Clone(u.Achievements)
	u.ScoreTotal = total
	return before, nil
}

func (s *UserStore) SetAchievements(ctx context.Context, userID string, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: %s", userID))
	}

	u.Achievements = slices.Clone(codes)
	return nil
}
