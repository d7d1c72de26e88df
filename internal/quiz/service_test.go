package quiz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/supaquiz/server/internal/errors"
	"github.com/supaquiz/server/internal/memory"
	"github.com/supaquiz/server/internal/quiz"
)

func makeService(t *testing.T) *quiz.Service {
	t.Helper()
	return quiz.NewService(quiz.Config{Store: memory.NewQuizStore()})
}

func TestService_CreateQuiz(t *testing.T) {
	s := makeService(t)

	q, err := s.CreateQuiz(context.Background(), quiz.CreateQuizRequest{
		Title: "Capitals of Europe",
		Theme: "geography",
	})
	require.NoError(t, err)
	require.NotEmpty(t, q.QuizID)

	got, err := s.GetQuiz(context.Background(), q.QuizID)
	require.NoError(t, err)
	require.Equal(t, "Capitals of Europe", got.Title)

	_, err = s.CreateQuiz(context.Background(), quiz.CreateQuizRequest{})
	require.True(t, errors.Is(err, errors.CodeInvalidArgument), "got %v", err)
}

func TestService_AddQuestion(t *testing.T) {
	s := makeService(t)

	q, err := s.CreateQuiz(context.Background(), quiz.CreateQuizRequest{Title: "Capitals"})
	require.NoError(t, err)

	tests := map[string]struct {
		req      quiz.AddQuestionRequest
		wantCode errors.Code
	}{
		"valid question": {
			req: quiz.AddQuestionRequest{
				QuizID:       q.QuizID,
				QuestionText: "Capital of France?",
				Options:      []string{"Paris", "Lyon", "Nice"},
				CorrectIndex: 0,
			},
		},
		"missing text": {
			req: quiz.AddQuestionRequest{
				QuizID:  q.QuizID,
				Options: []string{"a", "b"},
			},
			wantCode: errors.CodeInvalidArgument,
		},
		"single option": {
			req: quiz.AddQuestionRequest{
				QuizID:       q.QuizID,
				QuestionText: "x?",
				Options:      []string{"only"},
			},
			wantCode: errors.CodeInvalidArgument,
		},
		"correct index out of range": {
			req: quiz.AddQuestionRequest{
				QuizID:       q.QuizID,
				QuestionText: "x?",
				Options:      []string{"a", "b"},
				CorrectIndex: 2,
			},
			wantCode: errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			_, err := s.AddQuestion(context.Background(), tt.req)
			if tt.wantCode != 0 {
				require.True(t, errors.Is(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}

	questions, err := s.ListQuestions(context.Background(), q.QuizID)
	require.NoError(t, err)
	require.Len(t, questions, 1)
}
