package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kwizz/kwizz-go/internal/model"
)

type GameRepository interface {
	FindByID(ctx context.Context, id string) (*model.Game, error)
	// LockByID reads the game and holds its row lock until the surrounding
	// transaction ends. Outside a transaction it is a plain read.
	LockByID(ctx context.Context, id string) (*model.Game, error)
	FindOpenByPin(ctx context.Context, pin string) (*model.Game, error)
	PinInUse(ctx context.Context, pin string) (bool, error)
	Create(ctx context.Context, params model.CreateGameParams) (*model.Game, error)
	// MarkPaid records that a credit was debited for the game. It returns nil
	// when the game is gone or already paid.
	MarkPaid(ctx context.Context, id string) (*model.Game, error)
	// SetProgress moves a game from status `from` to the given state. It
	// returns nil when the game is no longer in `from`.
	SetProgress(ctx context.Context, id string, from model.GameStatus, update model.GameProgress) (*model.Game, error)
	Delete(ctx context.Context, id string) error
	FinishIdleSince(ctx context.Context, before time.Time) ([]string, error)
	DeleteUnpaidBefore(ctx context.Context, before time.Time) ([]string, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) GameRepository
}

type gameRepo struct {
	db sqlxDB
}

func NewGameRepository(db *sqlx.DB) GameRepository {
	return &gameRepo{db: db}
}

func (r *gameRepo) WithTx(tx *sqlx.Tx) GameRepository {
	return &gameRepo{db: tx}
}

func (r *gameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	return getOne[model.Game](ctx, r.db, `
		SELECT * FROM games WHERE id = $1
	`, id)
}

func (r *gameRepo) LockByID(ctx context.Context, id string) (*model.Game, error) {
	return getOne[model.Game](ctx, r.db, `
		SELECT * FROM games WHERE id = $1 FOR UPDATE
	`, id)
}

func (r *gameRepo) FindOpenByPin(ctx context.Context, pin string) (*model.Game, error) {
	return getOne[model.Game](ctx, r.db, `
		SELECT * FROM games
		WHERE pin = $1 AND status <> 'finished' AND paid_at IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, pin)
}

func (r *gameRepo) PinInUse(ctx context.Context, pin string) (bool, error) {
	var inUse bool
	err := r.db.GetContext(ctx, &inUse, `
		SELECT EXISTS (SELECT 1 FROM games WHERE pin = $1 AND status <> 'finished')
	`, pin)
	return inUse, err
}

func (r *gameRepo) Create(ctx context.Context, params model.CreateGameParams) (*model.Game, error) {
	return getOne[model.Game](ctx, r.db, `
		INSERT INTO games (quiz_id, host_id, pin, status)
		VALUES ($1, $2, $3, 'lobby')
		RETURNING *
	`, params.QuizID, params.HostID, params.Pin)
}

func (r *gameRepo) MarkPaid(ctx context.Context, id string) (*model.Game, error) {
	return getOne[model.Game](ctx, r.db, `
		UPDATE games SET paid_at = NOW()
		WHERE id = $1 AND paid_at IS NULL
		RETURNING *
	`, id)
}

func (r *gameRepo) SetProgress(ctx context.Context, id string, from model.GameStatus, update model.GameProgress) (*model.Game, error) {
	return getOne[model.Game](ctx, r.db, `
		UPDATE games SET
			status = $3,
			current_question_id = $4,
			question_started_at = $5,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING *
	`, id, from, update.Status, update.CurrentQuestionID, update.QuestionStartedAt)
}

func (r *gameRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, id)
	return err
}

func (r *gameRepo) FinishIdleSince(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		UPDATE games SET
			status = 'finished',
			current_question_id = NULL,
			question_started_at = NULL,
			updated_at = NOW()
		WHERE status <> 'finished' AND paid_at IS NOT NULL AND updated_at < $1
		RETURNING id
	`, before)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteUnpaidBefore removes games created before the cutoff that never had
// a credit debited, such as those left behind by a failed compensation.
func (r *gameRepo) DeleteUnpaidBefore(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		DELETE FROM games
		WHERE paid_at IS NULL AND created_at < $1
		RETURNING id
	`, before)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
