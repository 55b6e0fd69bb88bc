package driver

import (
	"context"
	"errors"

	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

// Executor turns one schema operation into an effect on a live schema.
type Executor interface {
	Execute(ctx context.Context, op schema.Operation) error
}

// Tx is a unit of work covering the operations of a single migration and
// the log entry recording it. Where the database cannot run DDL inside a
// transaction the log entry is still written last, so a failed migration
// is never recorded.
type Tx interface {
	Executor

	// AppendLog appends an entry to the migrations log. An Up entry marks
	// the migration applied and a Down entry unmarks it.
	AppendLog(ctx context.Context, entry migration.Log) error

	Commit() error
	Rollback() error
}

// Unlock releases a lock taken with Driver.Lock.
type Unlock func() error

type Driver interface {
	// ListMigrationsLog returns the migrations log in the order it was written.
	ListMigrationsLog(ctx context.Context) ([]migration.Log, error)

	Begin(ctx context.Context) (Tx, error)

	// Lock takes an exclusive advisory lock on the target database. Callers
	// hold it around every run that changes the schema.
	Lock(ctx context.Context) (Unlock, error)
}

var (
	ErrInvalidLogTable      = errors.New("an error has occurred when reading log table")
	ErrUnsupportedOperation = errors.New("operation is not supported by the driver")
	ErrLockTimeout          = errors.New("timed out waiting for the migrations lock")
)
