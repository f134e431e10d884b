package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kwizz/kwizz-go/internal/model"
)

// QuestionRepository reads quiz content. Authoring is handled elsewhere;
// Create exists for seeding.
type QuestionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Question, error)
	ListByQuiz(ctx context.Context, quizID string) ([]model.Question, error)
	First(ctx context.Context, quizID string) (*model.Question, error)
	NextAfter(ctx context.Context, quizID string, order int) (*model.Question, error)
	Create(ctx context.Context, q model.Question) (*model.Question, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) QuestionRepository
}

type questionRepo struct {
	db sqlxDB
}

func NewQuestionRepository(db *sqlx.DB) QuestionRepository {
	return &questionRepo{db: db}
}

func (r *questionRepo) WithTx(tx *sqlx.Tx) QuestionRepository {
	return &questionRepo{db: tx}
}

func (r *questionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	return getOne[model.Question](ctx, r.db, `SELECT * FROM questions WHERE id = $1`, id)
}

func (r *questionRepo) ListByQuiz(ctx context.Context, quizID string) ([]model.Question, error) {
	questions := []model.Question{}
	err := r.db.SelectContext(ctx, &questions, `
		SELECT * FROM questions
		WHERE quiz_id = $1
		ORDER BY question_order ASC, id ASC
	`, quizID)
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepo) First(ctx context.Context, quizID string) (*model.Question, error) {
	return getOne[model.Question](ctx, r.db, `
		SELECT * FROM questions
		WHERE quiz_id = $1
		ORDER BY question_order ASC, id ASC
		LIMIT 1
	`, quizID)
}

func (r *questionRepo) NextAfter(ctx context.Context, quizID string, order int) (*model.Question, error) {
	return getOne[model.Question](ctx, r.db, `
		SELECT * FROM questions
		WHERE quiz_id = $1 AND question_order > $2
		ORDER BY question_order ASC, id ASC
		LIMIT 1
	`, quizID, order)
}

func (r *questionRepo) Create(ctx context.Context, q model.Question) (*model.Question, error) {
	if q.Options == nil {
		q.Options = []string{}
	}
	if q.TimeLimitSeconds <= 0 {
		q.TimeLimitSeconds = int(model.DefaultQuestionTimeLimit.Seconds())
	}
	var created model.Question
	err := r.db.GetContext(ctx, &created, `
		INSERT INTO questions (quiz_id, text, kind, options, answer, fact, difficulty, question_order, time_limit_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING *
	`, q.QuizID, q.Text, q.Kind, q.Options, q.Answer, q.Fact, q.Difficulty, q.QuestionOrder, q.TimeLimitSeconds)
	if err != nil {
		return nil, err
	}
	return &created, nil
}
