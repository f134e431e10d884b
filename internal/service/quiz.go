package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kwizz/kwizz-go/internal/database"
	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
)

// QuizService loads ready-made question sets. Authoring happens elsewhere.
type QuizService struct {
	db        TxRunner
	questions repository.QuestionRepository
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

func NewQuizService(db TxRunner, questions repository.QuestionRepository) *QuizService {
	return &QuizService{db: db, questions: questions}
}

// Import stores questions under a new quiz id, in the order given.
func (s *QuizService) Import(ctx context.Context, questions []model.Question) (string, error) {
	if len(questions) == 0 {
		return "", apperrors.MissingRequired("questions")
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			return "", apperrors.InvalidInput(fmt.Sprintf("questions[%d].text", i), "must not be empty")
		}
		if !q.Kind.Valid() {
			return "", apperrors.InvalidInput(fmt.Sprintf("questions[%d].kind", i), fmt.Sprintf("unknown kind %q", q.Kind))
		}
		if q.Kind != model.KindBuzzIn && strings.TrimSpace(q.Answer) == "" {
			return "", apperrors.InvalidInput(fmt.Sprintf("questions[%d].answer", i), "must not be empty")
		}
	}

	quizID := uuid.NewString()
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.questions.WithTx(tx)
		for i, q := range questions {
			q.QuizID = quizID
			q.QuestionOrder = i + 1
			if q.Kind == model.KindBuzzIn && q.Answer == "" {
				q.Answer = model.BuzzAnswer{}.Encode()
			}
			if _, err := repo.Create(ctx, q); err != nil {
				return fmt.Errorf("create question %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return quizID, nil
}

func (s *QuizService) Questions(ctx context.Context, quizID string) ([]model.Question, error) {
	if !validID(quizID) {
		return nil, apperrors.NotFound("Quiz")
	}
	return s.questions.ListByQuiz(ctx, quizID)
}
