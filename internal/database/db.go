package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kwizz/kwizz-go/internal/config"
)

// DB is the Postgres pool shared by every repository.
type DB struct {
	*sqlx.DB
}

// Connect opens the pool and waits for Postgres to answer, bounded by
// config.DBPingTimeout.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(config.DBMaxOpenConns)
	pool.SetMaxIdleConns(config.DBMaxIdleConns)
	pool.SetConnMaxLifetime(config.DBConnMaxLifetime)

	db := &DB{pool}
	if err := db.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Ping also backs the health check.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(tx *sqlx.Tx) error

// WithTx runs fn in a transaction, committing when it returns nil and
// rolling back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	committed = true
	if err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
