package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kwizz/kwizz-go/internal/model"
)

type ResponseRepository interface {
	FindByPlayerAndQuestion(ctx context.Context, playerID, questionID string) (*model.Response, error)
	ListByGame(ctx context.Context, gameID string) ([]model.Response, error)
	ListByQuestion(ctx context.Context, gameID, questionID string) ([]model.Response, error)
	Create(ctx context.Context, params model.CreateResponseParams) (*model.Response, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ResponseRepository
}

type responseRepo struct {
	db sqlxDB
}

func NewResponseRepository(db *sqlx.DB) ResponseRepository {
	return &responseRepo{db: db}
}

func (r *responseRepo) WithTx(tx *sqlx.Tx) ResponseRepository {
	return &responseRepo{db: tx}
}

func (r *responseRepo) FindByPlayerAndQuestion(ctx context.Context, playerID, questionID string) (*model.Response, error) {
	return getOne[model.Response](ctx, r.db, `
		SELECT * FROM responses
		WHERE player_id = $1 AND question_id = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, playerID, questionID)
}

func (r *responseRepo) ListByGame(ctx context.Context, gameID string) ([]model.Response, error) {
	responses := []model.Response{}
	err := r.db.SelectContext(ctx, &responses, `
		SELECT * FROM responses
		WHERE game_id = $1
		ORDER BY created_at ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *responseRepo) ListByQuestion(ctx context.Context, gameID, questionID string) ([]model.Response, error) {
	responses := []model.Response{}
	err := r.db.SelectContext(ctx, &responses, `
		SELECT * FROM responses
		WHERE game_id = $1 AND question_id = $2
		ORDER BY speed_ms ASC, created_at ASC
	`, gameID, questionID)
	if err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *responseRepo) Create(ctx context.Context, params model.CreateResponseParams) (*model.Response, error) {
	var response model.Response
	err := r.db.GetContext(ctx, &response, `
		INSERT INTO responses (game_id, player_id, question_id, answer, is_correct, speed_ms, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.GameID, params.PlayerID, params.QuestionID, params.Answer, params.IsCorrect, params.SpeedMs, params.Points)
	if err != nil {
		return nil, err
	}
	return &response, nil
}
