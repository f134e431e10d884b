package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// sqlxDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// getOne scans a single row into a new T. No matching row yields (nil, nil),
// so Find and guarded UPDATE ... RETURNING queries share one not-found shape.
func getOne[T any](ctx context.Context, db sqlxDB, query string, args ...interface{}) (*T, error) {
	var row T
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
