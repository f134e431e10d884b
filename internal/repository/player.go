package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kwizz/kwizz-go/internal/model"
)

type PlayerRepository interface {
	FindByID(ctx context.Context, id string) (*model.Player, error)
	ListByGame(ctx context.Context, gameID string) ([]model.Player, error)
	Create(ctx context.Context, params model.CreatePlayerParams) (*model.Player, error)
	// AddScore increments the score in place and returns the new row.
	AddScore(ctx context.Context, id string, points int) (*model.Player, error)
	Touch(ctx context.Context, id string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PlayerRepository
}

type playerRepo struct {
	db sqlxDB
}

func NewPlayerRepository(db *sqlx.DB) PlayerRepository {
	return &playerRepo{db: db}
}

func (r *playerRepo) WithTx(tx *sqlx.Tx) PlayerRepository {
	return &playerRepo{db: tx}
}

func (r *playerRepo) FindByID(ctx context.Context, id string) (*model.Player, error) {
	return getOne[model.Player](ctx, r.db, `
		SELECT * FROM players WHERE id = $1
	`, id)
}

func (r *playerRepo) ListByGame(ctx context.Context, gameID string) ([]model.Player, error) {
	players := []model.Player{}
	err := r.db.SelectContext(ctx, &players, `
		SELECT * FROM players
		WHERE game_id = $1
		ORDER BY score DESC, team_name ASC
	`, gameID)
	if err != nil {
		return nil, err
	}
	return players, nil
}

func (r *playerRepo) Create(ctx context.Context, params model.CreatePlayerParams) (*model.Player, error) {
	return getOne[model.Player](ctx, r.db, `
		INSERT INTO players (game_id, team_name, buzzer_sound)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'classic'))
		RETURNING *
	`, params.GameID, params.TeamName, params.BuzzerSound)
}

func (r *playerRepo) AddScore(ctx context.Context, id string, points int) (*model.Player, error) {
	return getOne[model.Player](ctx, r.db, `
		UPDATE players SET score = score + $2
		WHERE id = $1
		RETURNING *
	`, id, points)
}

func (r *playerRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE players SET last_seen_at = NOW() WHERE id = $1
	`, id)
	return err
}
