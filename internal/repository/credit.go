package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/kwizz/kwizz-go/internal/model"
)

type HostRepository interface {
	FindByID(ctx context.Context, id string) (*model.Host, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Host, error)
	Create(ctx context.Context, name, tokenHash string, freeCredits int) (*model.Host, error)
	// DebitFree takes one free credit. It returns false when none remain.
	DebitFree(ctx context.Context, hostID string) (bool, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) HostRepository
}

type hostRepo struct {
	db sqlxDB
}

func NewHostRepository(db *sqlx.DB) HostRepository {
	return &hostRepo{db: db}
}

func (r *hostRepo) WithTx(tx *sqlx.Tx) HostRepository {
	return &hostRepo{db: tx}
}

func (r *hostRepo) FindByID(ctx context.Context, id string) (*model.Host, error) {
	return getOne[model.Host](ctx, r.db, `SELECT * FROM hosts WHERE id = $1`, id)
}

func (r *hostRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Host, error) {
	return getOne[model.Host](ctx, r.db, `
		SELECT * FROM hosts WHERE api_token_hash = $1
	`, tokenHash)
}

func (r *hostRepo) Create(ctx context.Context, name, tokenHash string, freeCredits int) (*model.Host, error) {
	return getOne[model.Host](ctx, r.db, `
		INSERT INTO hosts (name, api_token_hash, free_credits_remaining)
		VALUES ($1, $2, $3)
		RETURNING *
	`, name, tokenHash, freeCredits)
}

func (r *hostRepo) DebitFree(ctx context.Context, hostID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE hosts SET free_credits_remaining = free_credits_remaining - 1
		WHERE id = $1 AND free_credits_remaining > 0
	`, hostID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type CreditLotRepository interface {
	// ListActive returns lots with credit left, oldest first.
	ListActive(ctx context.Context, hostID string) ([]model.CreditLot, error)
	Create(ctx context.Context, hostID string, size int) (*model.CreditLot, error)
	// DebitOldest takes one credit from the oldest lot with credit left and
	// returns that lot, or nil when every lot is empty.
	DebitOldest(ctx context.Context, hostID string) (*model.CreditLot, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) CreditLotRepository
}

type creditLotRepo struct {
	db sqlxDB
}

func NewCreditLotRepository(db *sqlx.DB) CreditLotRepository {
	return &creditLotRepo{db: db}
}

func (r *creditLotRepo) WithTx(tx *sqlx.Tx) CreditLotRepository {
	return &creditLotRepo{db: tx}
}

func (r *creditLotRepo) ListActive(ctx context.Context, hostID string) ([]model.CreditLot, error) {
	lots := []model.CreditLot{}
	err := r.db.SelectContext(ctx, &lots, `
		SELECT * FROM credit_lots
		WHERE host_id = $1 AND remaining > 0
		ORDER BY purchased_at ASC, id ASC
	`, hostID)
	if err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *creditLotRepo) Create(ctx context.Context, hostID string, size int) (*model.CreditLot, error) {
	return getOne[model.CreditLot](ctx, r.db, `
		INSERT INTO credit_lots (host_id, size, remaining)
		VALUES ($1, $2, $2)
		RETURNING *
	`, hostID, size)
}

func (r *creditLotRepo) DebitOldest(ctx context.Context, hostID string) (*model.CreditLot, error) {
	return getOne[model.CreditLot](ctx, r.db, `
		UPDATE credit_lots SET remaining = remaining - 1
		WHERE id = (
			SELECT id FROM credit_lots
			WHERE host_id = $1 AND remaining > 0
			ORDER BY purchased_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND remaining > 0
		RETURNING *
	`, hostID)
}
