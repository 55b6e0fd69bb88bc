// Package sqlite implements driver.Driver for SQLite on top of
// modernc.org/sqlite. DDL is transactional in SQLite, so a failed record
// leaves neither schema changes nor a log entry behind.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

const (
	DriverName                 = "sqlite"
	DefaultMigrationsTableName = "migrations_log"
	DefaultLockTimeout         = time.Minute
	DefaultLockLease           = time.Hour

	lockPollInterval = 50 * time.Millisecond
)

var ErrForeignKeyViolation = errors.New("schema change leaves foreign key violations")

type DriverConfig struct {
	MigrationsTableName string

	// LockTimeout bounds how long Lock waits when the context has no
	// earlier deadline.
	LockTimeout time.Duration

	// LockLease is how long a lock row stays valid. An older row is left
	// behind by a process that died holding the lock and is taken over.
	LockLease time.Duration
}

type Driver struct {
	conn   *sql.DB
	config DriverConfig
}

var _ driver.Driver = (*Driver)(nil)

func NewDriver(conn *sql.DB, config DriverConfig) *Driver {
	if config.MigrationsTableName == "" {
		config.MigrationsTableName = DefaultMigrationsTableName
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultLockTimeout
	}
	if config.LockLease <= 0 {
		config.LockLease = DefaultLockLease
	}

	return &Driver{conn: conn, config: config}
}

// Open opens the database at dsn with the sqlite driver.
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return conn, nil
}

func (drv *Driver) logTable() string {
	return drv.config.MigrationsTableName
}

func (drv *Driver) lockTable() string {
	return drv.config.MigrationsTableName + "_lock"
}

func (drv *Driver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	if err := drv.ensureTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}

	rows, err := drv.conn.QueryContext(ctx, fmt.Sprintf(
		"SELECT version, migration_name, direction, run_id, applied_at FROM %s ORDER BY id",
		quoteIdent(drv.logTable()),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}
	defer rows.Close()

	result := make([]migration.Log, 0)
	for rows.Next() {
		var log migration.Log
		var version, appliedAt int64
		var name, runID sql.NullString
		var direction string

		if err := rows.Scan(&version, &name, &direction, &runID, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to query migrations log table: %w", err)
		}

		switch direction {
		case "u":
			log.Direction = migration.Up
		case "d":
			log.Direction = migration.Down
		default:
			return nil, fmt.Errorf("%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, direction)
		}

		log.ID = migration.ID(version)
		log.Name = name.String
		log.RunID = runID.String
		log.AppliedAt = time.UnixMilli(appliedAt).UTC()

		result = append(result, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations log table: %w", err)
	}

	return result, nil
}

func (drv *Driver) ensureTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
			"id             INTEGER PRIMARY KEY AUTOINCREMENT, "+
			"version        INTEGER NOT NULL, "+
			"migration_name TEXT, "+
			"direction      TEXT NOT NULL, "+ // "u" or "d"
			"run_id         TEXT, "+
			"applied_at     INTEGER NOT NULL"+ // unix milliseconds
			")", quoteIdent(drv.logTable())),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
			"id          INTEGER PRIMARY KEY CHECK (id = 1), "+
			"owner       TEXT NOT NULL, "+
			"acquired_at INTEGER NOT NULL"+
			")", quoteIdent(drv.lockTable())),
	}

	for _, stmt := range stmts {
		if _, err := drv.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create migrations tables: %w", err)
		}
	}
	return nil
}

// Begin starts a transaction on a dedicated connection with foreign key
// enforcement switched off, as table rebuilds require. Foreign keys are
// checked before commit instead.
func (drv *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	if err := drv.ensureTables(ctx); err != nil {
		return nil, err
	}

	conn, err := drv.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var foreignKeys bool
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &tx{
		tx:          sqlTx,
		conn:        conn,
		logTable:    drv.logTable(),
		foreignKeys: foreignKeys,
	}, nil
}

// Lock claims the single row of the lock table for a random owner, polling
// until it is free or the wait runs out. A row older than the lock lease is
// removed first.
func (drv *Driver) Lock(ctx context.Context) (driver.Unlock, error) {
	if err := drv.ensureTables(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, drv.config.LockTimeout)
	defer cancel()

	owner := uuid.NewString()
	insert := fmt.Sprintf("INSERT OR IGNORE INTO %s (id, owner, acquired_at) VALUES (1, ?, ?)", quoteIdent(drv.lockTable()))

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		if err := drv.breakStaleLock(ctx); err != nil && ctx.Err() == nil {
			return nil, err
		}

		res, err := drv.conn.ExecContext(ctx, insert, owner, time.Now().UnixMilli())
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire migrations lock: %w", err)
		}
		if err == nil {
			if n, _ := res.RowsAffected(); n == 1 {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", driver.ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	logger.Log.Debugf("acquired migrations lock as %s", owner)

	release := fmt.Sprintf("DELETE FROM %s WHERE id = 1 AND owner = ?", quoteIdent(drv.lockTable()))
	return func() error {
		if _, err := drv.conn.ExecContext(context.Background(), release, owner); err != nil {
			return fmt.Errorf("failed to release migrations lock: %w", err)
		}
		return nil
	}, nil
}

// breakStaleLock deletes the lock row when its lease has expired.
func (drv *Driver) breakStaleLock(ctx context.Context) error {
	var (
		owner      string
		acquiredAt int64
	)
	query := fmt.Sprintf("SELECT owner, acquired_at FROM %s WHERE id = 1", quoteIdent(drv.lockTable()))
	err := drv.conn.QueryRowContext(ctx, query).Scan(&owner, &acquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read migrations lock: %w", err)
	}

	expired := time.Now().Add(-drv.config.LockLease).UnixMilli()
	if acquiredAt >= expired {
		return nil
	}

	remove := fmt.Sprintf("DELETE FROM %s WHERE id = 1 AND owner = ? AND acquired_at = ?", quoteIdent(drv.lockTable()))
	if _, err := drv.conn.ExecContext(ctx, remove, owner, acquiredAt); err != nil {
		return fmt.Errorf("failed to remove stale migrations lock: %w", err)
	}

	logger.Log.Warnf("removed stale migrations lock held by %s since %s",
		owner, time.UnixMilli(acquiredAt).UTC().Format(time.DateTime))
	return nil
}

// Inspect reads the current schema, leaving out the ledger's own tables.
func (drv *Driver) Inspect(ctx context.Context) (*schema.Snapshot, error) {
	return inspect(ctx, drv.conn, drv.logTable(), drv.lockTable())
}

// ---

type tx struct {
	tx          *sql.Tx
	conn        *sql.Conn
	logTable    string
	foreignKeys bool
	done        bool
}

func (t *tx) Execute(ctx context.Context, op schema.Operation) error {
	stmt, ok, err := render(op)
	if err != nil {
		return err
	}

	if !ok {
		stmts, err := rebuild(ctx, t.tx, op)
		for _, s := range stmts {
			logger.Log.Tracef("sqlite: %s", s)
		}
		return err
	}

	logger.Log.Tracef("sqlite: %s", stmt)

	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, err)
	}
	return nil
}

func (t *tx) AppendLog(ctx context.Context, entry migration.Log) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (version, migration_name, direction, run_id, applied_at) VALUES (?, ?, ?, ?, ?)",
		quoteIdent(t.logTable),
	),
		int64(entry.ID),
		entry.Name,
		string(rune(entry.Direction)),
		entry.RunID,
		entry.AppliedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write migrations log: %w", err)
	}
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}

	if t.foreignKeys {
		if err := t.checkForeignKeys(); err != nil {
			return errors.Join(err, t.Rollback())
		}
	}

	err := t.tx.Commit()
	return errors.Join(err, t.release())
}

func (t *tx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}

	err := t.tx.Rollback()
	return errors.Join(err, t.release())
}

func (t *tx) checkForeignKeys() error {
	rows, err := t.tx.Query("PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("failed to check foreign keys: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		var table string
		var rowID sql.NullInt64
		var parent string
		var fkID int
		if err := rows.Scan(&table, &rowID, &parent, &fkID); err != nil {
			return fmt.Errorf("failed to check foreign keys: %w", err)
		}
		return fmt.Errorf("%w: %s references missing rows in %s", ErrForeignKeyViolation, table, parent)
	}

	return rows.Err()
}

func (t *tx) release() error {
	t.done = true

	var err error
	if t.foreignKeys {
		_, err = t.conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON")
	}
	return errors.Join(err, t.conn.Close())
}
