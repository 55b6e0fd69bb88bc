// Package mysql implements driver.Driver for MySQL and MariaDB.
//
// MySQL commits DDL implicitly, so a record's operations are not undone when
// one of them fails. The log entry is always written last, which keeps a
// failed record unmarked.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

const (
	DefaultMigrationsTableName = "migrations_log"
	DefaultLockTimeout         = time.Minute

	// MySQL limits user-level lock names to 64 characters.
	maxLockNameLength = 64
)

type DriverConfig struct {
	DatabaseName        string
	MigrationsTableName string

	// LockTimeout bounds how long Lock waits when the context has no
	// earlier deadline.
	LockTimeout time.Duration
}

type mysqlDriver struct {
	conn    *sql.DB
	config  DriverConfig
	dialect dialect
}

func NewDriver(conn *sql.DB, config DriverConfig) driver.Driver {
	if config.MigrationsTableName == "" {
		config.MigrationsTableName = DefaultMigrationsTableName
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultLockTimeout
	}

	return &mysqlDriver{
		conn:    conn,
		config:  config,
		dialect: dialect{database: config.DatabaseName},
	}
}

func (drv *mysqlDriver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	tableName := drv.dialect.table(drv.config.MigrationsTableName)

	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}

	rows, err := drv.query(ctx, fmt.Sprintf(
		"SELECT version, migration_name, direction, run_id, "+
			"DATE_FORMAT(start_time, '%%Y-%%m-%%d %%H:%%i:%%s') FROM %s ORDER BY id",
		tableName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to list applied versions: %w", err)
	}
	defer rows.Close()

	return drv.fetchMigrationsLog(rows)
}

func (drv *mysqlDriver) fetchMigrationsLog(rows *sql.Rows) ([]migration.Log, error) {
	result := make([]migration.Log, 0)
	for rows.Next() {
		var log migration.Log
		var name, direction, runID, appliedAt sql.NullString

		err := rows.Scan(
			&log.ID,
			&name,
			&direction,
			&runID,
			&appliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query migrations log table: %w", err)
		}

		switch strings.ToLower(direction.String) {
		case "u":
			log.Direction = migration.Up
		case "d":
			log.Direction = migration.Down
		default:
			return nil, fmt.Errorf("%w: direction \"%s\" is unknown", driver.ErrInvalidLogTable, direction.String)
		}

		log.Name = name.String
		log.RunID = runID.String
		log.AppliedAt, err = time.Parse(time.DateTime, appliedAt.String)
		if err != nil {
			log.AppliedAt = time.Time{}
		}

		result = append(result, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query migrations log table: %w", err)
	}

	return result, nil
}

func (drv *mysqlDriver) Begin(ctx context.Context) (driver.Tx, error) {
	tableName := drv.dialect.table(drv.config.MigrationsTableName)
	if err := drv.ensureMigrationsTableExists(ctx, tableName); err != nil {
		return nil, err
	}

	sqlTx, err := drv.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &tx{tx: sqlTx, dialect: drv.dialect, logTable: tableName}, nil
}

// Lock takes a named user-level lock on a dedicated connection. The lock
// is released when that connection goes away, so a crashed run never
// leaves it behind.
func (drv *mysqlDriver) Lock(ctx context.Context) (driver.Unlock, error) {
	name := drv.lockName()

	wait := drv.config.LockTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(deadline))
	}

	conn, err := drv.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open a connection for the migrations lock: %w", err)
	}

	var acquired sql.NullInt64
	err = conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, int(max(wait, 0).Seconds())).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire migrations lock %q: %w", name, err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %q after %s", driver.ErrLockTimeout, name, wait.Round(time.Second))
	}

	logger.Log.Debugf("acquired migrations lock %q", name)

	return func() error {
		defer conn.Close()

		_, err := conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", name)
		if err != nil && !errors.Is(err, sql.ErrConnDone) {
			return fmt.Errorf("failed to release migrations lock %q: %w", name, err)
		}
		return nil
	}, nil
}

func (drv *mysqlDriver) lockName() string {
	name := "ledger:" + drv.config.DatabaseName + "." + drv.config.MigrationsTableName
	if utf8.RuneCountInString(name) > maxLockNameLength {
		name = string([]rune(name)[:maxLockNameLength])
	}
	return name
}

func (drv *mysqlDriver) query(ctx context.Context, query string) (*sql.Rows, error) {
	rows, err := drv.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute a query: %w", err)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute a query: %w", err)
	}
	return rows, nil
}

func (drv *mysqlDriver) ensureMigrationsTableExists(ctx context.Context, escapedTableName string) error {
	_, err := drv.conn.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s ("+
			"id             int not null auto_increment, "+
			"version        bigint unsigned, "+
			"migration_name varchar(150) null, "+
			"direction      char(1) null, "+ // "u" or "d"
			"run_id         varchar(36) null, "+
			"start_time     datetime default CURRENT_TIMESTAMP not null, "+
			"end_time       datetime null, "+
			"primary key (id)"+
			") default charset utf8mb4",
		escapedTableName,
	))

	if err != nil {
		return fmt.Errorf("failed to create migrations table %s: %w", escapedTableName, err)
	}

	return nil
}

// ---

type tx struct {
	tx       *sql.Tx
	dialect  dialect
	logTable string
}

func (t *tx) Execute(ctx context.Context, op schema.Operation) error {
	stmt, err := t.dialect.render(op)
	if err != nil {
		return err
	}

	logger.Log.Tracef("mysql: %s", stmt)

	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, err)
	}

	if op, ok := op.(schema.DropForeignKey); ok {
		return t.dropImplicitIndex(ctx, op)
	}
	return nil
}

// dropImplicitIndex removes the index InnoDB creates, under the constraint
// name, when a foreign key column has no index of its own.
func (t *tx) dropImplicitIndex(ctx context.Context, op schema.DropForeignKey) error {
	var count int
	err := t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME = ?",
		t.dialect.database, op.Table, op.Name,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to look up index of foreign key %s: %w", op.Name, err)
	}
	if count == 0 {
		return nil
	}

	stmt, err := t.dialect.render(schema.DropIndex{Table: op.Table, Name: op.Name})
	if err != nil {
		return err
	}

	logger.Log.Tracef("mysql: %s", stmt)

	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", stmt, err)
	}
	return nil
}

func (t *tx) AppendLog(ctx context.Context, entry migration.Log) error {
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (version, migration_name, direction, run_id, start_time, end_time) "+
			"VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)",
		t.logTable,
	),
		uint64(entry.ID),
		entry.Name,
		string(rune(entry.Direction)),
		entry.RunID,
		entry.AppliedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("failed to write migrations log: %w", err)
	}
	return nil
}

func (t *tx) Commit() error {
	return t.tx.Commit()
}

func (t *tx) Rollback() error {
	return t.tx.Rollback()
}
