package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/upb/token-auth-api/repositories"
	"go.uber.org/zap"
)

type txContextKey struct{}

// TransactionManager implements repositories.TransactionManager on *sql.Tx
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{
		db:     db,
		logger: logger,
	}
}

// InTransaction runs fn in a transaction stored in the context passed to fn.
// Repositories pick it up through GetExecutor. A panic in fn rolls back and is re-raised.
func (tm *TransactionManager) InTransaction(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", name, err)
	}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			tm.rollback(tx, name, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		tm.rollback(tx, name, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s transaction: %w", name, err)
	}

	tm.logger.Debug("transaction committed",
		zap.String("transaction", name),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func (tm *TransactionManager) rollback(tx *sql.Tx, name string, cause error) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		tm.logger.Error("failed to rollback transaction",
			zap.String("transaction", name),
			zap.Error(err),
			zap.NamedError("original_error", cause))
		return
	}
	tm.logger.Debug("transaction rolled back",
		zap.String("transaction", name),
		zap.Error(cause))
}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db.DB
}
