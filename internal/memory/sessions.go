package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

// SessionStore keeps play sessions in memory. Finalize enforces the one-way
// active -> ended transition under the store lock, exactly like the SQL
// implementation's status-guarded UPDATE.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.PlaySession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.PlaySession)}
}

func (s *SessionStore) Insert(ctx context.Context, ps *domain.PlaySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[ps.SessionID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session already exists: %s", ps.SessionID))
	}

	s.sessions[ps.SessionID] = clone(ps)
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.PlaySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}

	return clone(ps), nil
}

// Update overwrites the mutable envelope of an active session. Ended
// sessions are immutable.
func (s *SessionStore) Update(ctx context.Context, ps *domain.PlaySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[ps.SessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", ps.SessionID))
	}
	if cur.Status == domain.SessionEnded {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already ended: %s", ps.SessionID))
	}

	s.sessions[ps.SessionID] = clone(ps)
	return nil
}

// Finalize transitions the session to ended exactly once. A second call
// fails with FailedPrecondition so a session score is never applied twice.
func (s *SessionStore) Finalize(ctx context.Context, sessionID string, score int64, endTime time.Time) (*domain.PlaySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: %s", sessionID))
	}
	if ps.Status == domain.SessionEnded {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already ended: %s", sessionID))
	}

	ps.Status = domain.SessionEnded
	ps.Score = score
	ps.EndTime = &endTime
	return clone(ps), nil
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]domain.PlaySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PlaySession
	for _, ps := range s.sessions {
		if ps.UserID == userID {
			out = append(out, *clone(ps))
		}
	}
	return out, nil
}

func (s *SessionStore) SumEndedScores(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, ps := range s.sessions {
		if ps.UserID == userID && ps.Status == domain.SessionEnded {
			total += ps.Score
		}
	}
	return total, nil
}

func clone(ps *domain.PlaySession) *domain.PlaySession {
	cp := *ps
	cp.Outcomes = slices.Clone(ps.Outcomes)
	if ps.Game != nil {
		g := *ps.Game
		cp.Game = &g
	}
	if ps.Training != nil {
		tr := *ps.Training
		cp.Training = &tr
	}
	if ps.EndTime != nil {
		et := *ps.EndTime
		cp.EndTime = &et
	}
	return &cp
}
