package memory

import (
	"context"
	"sync"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

// QuizStore holds quizzes and their questions in memory.
type QuizStore struct {
	mu        sync.RWMutex
	quizzes   map[string]domain.Quiz
	questions map[string][]domain.Question
}

func NewQuizStore() *QuizStore {
	return &QuizStore{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string][]domain.Question),
	}
}

func (s *QuizStore) InsertQuiz(ctx context.Context, q domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[q.QuizID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("quiz already exists: %s", q.QuizID))
	}
	s.quizzes[q.QuizID] = q
	return nil
}

func (s *QuizStore) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	return &q, nil
}

func (s *QuizStore) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		out = append(out, q)
	}
	return out, nil
}

func (s *QuizStore) InsertQuestion(ctx context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[q.QuizID]; !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", q.QuizID))
	}
	s.questions[q.QuizID] = append(s.questions[q.QuizID], q)
	return nil
}

func (s *QuizStore) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	return append([]domain.Question(nil), s.questions[quizID]...), nil
}
