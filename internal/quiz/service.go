package quiz

import (
	"context"

	"github.com/google/uuid"

	"github.com/supaquiz/server/internal/domain"
	"github.com/supaquiz/server/internal/errors"
)

type Store interface {
	InsertQuiz(ctx context.Context, q domain.Quiz) error
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	InsertQuestion(ctx context.Context, q domain.Question) error
	ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{store: c.Store}
}

type CreateQuizRequest struct {
	Title string
	Theme string
}

func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if req.Title == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("title is required"))
	}

	q := domain.Quiz{
		QuizID: uuid.NewString(),
		Title:  req.Title,
		Theme:  req.Theme,
	}

	if err := s.store.InsertQuiz(ctx, q); err != nil {
		return nil, err
	}

	return &q, nil
}

func (s *Service) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

func (s *Service) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx)
}

type AddQuestionRequest struct {
	QuizID       string
	QuestionText string
	Options      []string
	CorrectIndex int
}

func (s *Service) AddQuestion(ctx context.Context, req AddQuestionRequest) (*domain.Question, error) {
	if req.QuestionText == "" || len(req.Options) < 2 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question text and at least two options are required"))
	}
	if req.CorrectIndex < 0 || req.CorrectIndex >= len(req.Options) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("correct_index out of range"))
	}

	q := domain.Question{
		QuestionID:   uuid.NewString(),
		QuizID:       req.QuizID,
		QuestionText: req.QuestionText,
		Options:      req.Options,
		CorrectIndex: req.CorrectIndex,
	}

	if err := s.store.InsertQuestion(ctx, q); err != nil {
		return nil, err
	}

	return &q, nil
}

func (s *Service) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	return s.store.ListQuestions(ctx, quizID)
}
