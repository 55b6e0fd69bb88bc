// Package cli provides the command-line interface of the ledger tool.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/beatleader/ledger"
	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/driver/memory"
	"github.com/beatleader/ledger/driver/mysql"
	"github.com/beatleader/ledger/driver/sqlite"
	"github.com/beatleader/ledger/history"
	"github.com/beatleader/ledger/internal/config"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/internal/telemetry"
	"github.com/beatleader/ledger/source/files"
)

const serviceName = "ledger"

var ErrMissingDatabaseName = errors.New("database name is required for mysql")

// app holds what the commands of one process share. The driver is opened
// on first use and reused by later commands.
type app struct {
	cfg config.Config
	out io.Writer

	ledger   *ledger.Ledger
	drv      driver.Driver
	closers  []func() error
	shutdown func(context.Context) error
}

func newApp(cfg config.Config, out io.Writer) *app {
	return &app{cfg: cfg, out: out}
}

// Execute loads the configuration from the environment and runs the
// command named by the process arguments.
func Execute(ctx context.Context) error {
	logger.Init(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Errorf("%v", err)
		return err
	}

	a := newApp(cfg, os.Stdout)
	err = a.rootCommand().ExecuteContext(ctx)
	if closeErr := a.close(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Log.Warnf("%v", closeErr)
	}
	if err != nil {
		logger.Log.Errorf("%v", err)
		return err
	}
	return nil
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Apply and revert BeatLeader schema migrations",
		Long: `Track which schema migrations are applied to a database and move it to any
migration, forward or backward, one transaction per migration.

Settings are read from LEDGER_* environment variables and may be overridden
with flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.Driver, "driver", a.cfg.Driver, "Database driver: mysql, sqlite or memory")
	flags.StringVar(&a.cfg.DSN, "dsn", a.cfg.DSN, "Data source name of the target database")
	flags.StringVar(&a.cfg.Database, "database", a.cfg.Database, "MySQL database name (taken from the DSN when empty)")
	flags.StringVar(&a.cfg.Table, "table", a.cfg.Table, "Name of the migrations log table")
	flags.StringVar(&a.cfg.Source, "source", a.cfg.Source, "Migrations source: history or a directory of migration documents")
	flags.DurationVar(&a.cfg.LockTimeout, "lock-timeout", a.cfg.LockTimeout, "How long to wait for the migrations lock")
	flags.DurationVar(&a.cfg.LockLease, "lock-lease", a.cfg.LockLease,
		"Age after which a sqlite lock left by a dead process is taken over")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Set the logging level (trace, debug, info, warn, error)")
	flags.BoolVar(&a.cfg.AllowOutOfOrder, "allow-out-of-order", a.cfg.AllowOutOfOrder,
		"Allow applying migrations older than the most recently applied one")

	root.AddCommand(
		a.statusCommand(),
		a.planCommand(),
		a.upCommand(),
		a.downCommand(),
		a.migrateCommand(),
		a.applyCommand(),
		a.revertCommand(),
		a.verifyCommand(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := logger.SetLevel(a.cfg.LogLevel); err != nil {
		return err
	}
	logger.Log.Debugf("Log level set to: %s", a.cfg.LogLevel)

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.shutdown == nil {
		shutdown, err := telemetry.Setup(cmd.Context(), serviceName, a.cfg.OTelEndpoint)
		if err != nil {
			return err
		}
		a.shutdown = shutdown
	}

	reg, err := a.registry()
	if err != nil {
		return err
	}
	a.ledger = ledger.New(reg, ledger.WithAllowOutOfOrder(a.cfg.AllowOutOfOrder))

	return nil
}

func (a *app) registry() (*ledger.Registry, error) {
	if a.cfg.Source == config.SourceHistory {
		return history.Registry(), nil
	}

	src, err := files.NewFilesSource(os.DirFS(a.cfg.Source), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source %s: %w", a.cfg.Source, err)
	}

	reg := ledger.NewRegistry()
	if err := reg.RegisterSource(src); err != nil {
		return nil, err
	}
	return reg, nil
}

// driver opens the configured database on first use.
func (a *app) driver(ctx context.Context) (driver.Driver, error) {
	if a.drv != nil {
		return a.drv, nil
	}

	switch a.cfg.Driver {
	case config.DriverMySQL:
		dsn, err := mysqldrv.ParseDSN(a.cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		database := a.cfg.Database
		if database == "" {
			database = dsn.DBName
		}
		if database == "" {
			return nil, ErrMissingDatabaseName
		}

		conn, err := a.open(ctx, "mysql", dsn.FormatDSN())
		if err != nil {
			return nil, err
		}
		a.drv = mysql.NewDriver(conn, mysql.DriverConfig{
			DatabaseName:        database,
			MigrationsTableName: a.cfg.Table,
			LockTimeout:         a.cfg.LockTimeout,
		})

	case config.DriverSQLite:
		conn, err := a.open(ctx, sqlite.DriverName, a.cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.drv = sqlite.NewDriver(conn, sqlite.DriverConfig{
			MigrationsTableName: a.cfg.Table,
			LockTimeout:         a.cfg.LockTimeout,
			LockLease:           a.cfg.LockLease,
		})

	case config.DriverMemory:
		logger.Log.Warnf("using the in-memory driver, changes are lost when the command exits")
		a.drv = memory.NewDriver(nil)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, a.cfg.Driver)
	}

	return a.drv, nil
}

func (a *app) open(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}
	a.closers = append(a.closers, conn.Close)

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driverName, err)
	}
	return conn, nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil

	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}

	return errors.Join(errs...)
}
