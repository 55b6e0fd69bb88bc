package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beatleader/ledger"
	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/migration"
)

const latestTarget = "latest"

var ErrInvalidTarget = errors.New("target must be a migration id, 0 or latest")

// parseTarget accepts a migration id, 0 for the empty schema or latest.
func parseTarget(s string) (migration.ID, error) {
	if strings.EqualFold(s, latestTarget) {
		return migration.Latest, nil
	}

	id, err := strconv.ParseUint(s, 10, migration.IDBits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, s)
	}
	return migration.ID(id), nil
}

func formatTarget(id migration.ID) string {
	if id == migration.Latest {
		return latestTarget
	}
	return strconv.FormatUint(uint64(id), 10)
}

func optionalTarget(args []string) (migration.ID, error) {
	if len(args) == 0 {
		return migration.Latest, nil
	}
	return parseTarget(args[0])
}

// ---

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show which migrations are applied, pending or missing",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, err := a.driver(cmd.Context())
			if err != nil {
				return err
			}

			status, err := a.ledger.Status(cmd.Context(), drv)
			if err != nil {
				return err
			}

			return printStatus(a.out, status)
		},
	}
}

func (a *app) planCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [target]",
		Short: "Show what migrate would do without changing the database",
		Long: `Show the migrations that would be applied or reverted to reach target.
Target is a migration id, 0 for the empty schema or latest (the default).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := optionalTarget(args)
			if err != nil {
				return err
			}

			drv, err := a.driver(cmd.Context())
			if err != nil {
				return err
			}

			applied, err := a.ledger.Applied(cmd.Context(), drv)
			if err != nil {
				return err
			}

			plan, err := a.ledger.Plan(target, applied)
			if err != nil {
				return err
			}

			return printPlan(a.out, plan)
		},
	}
}

func (a *app) upCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up [target]",
		Short: "Apply pending migrations up to target",
		Long: `Apply pending migrations in ascending order up to and including target.
Nothing is ever reverted. Target defaults to latest.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := optionalTarget(args)
			if err != nil {
				return err
			}

			return a.mutate(cmd.Context(), func(ctx context.Context, drv driver.Driver) (*ledger.Report, error) {
				return a.ledger.Upgrade(ctx, drv, target)
			})
		},
	}
}

func (a *app) downCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down <target>",
		Short: "Revert applied migrations newer than target",
		Long: `Revert applied migrations newer than target, newest first. Nothing is ever
applied. Use 0 to revert every migration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0])
			if err != nil {
				return err
			}

			return a.mutate(cmd.Context(), func(ctx context.Context, drv driver.Driver) (*ledger.Report, error) {
				return a.ledger.Downgrade(ctx, drv, target)
			})
		},
	}
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <target>",
		Short: "Move the database to target, forward or backward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0])
			if err != nil {
				return err
			}

			return a.mutate(cmd.Context(), func(ctx context.Context, drv driver.Driver) (*ledger.Report, error) {
				return a.ledger.MigrateTo(ctx, target, drv)
			})
		},
	}
}

func (a *app) applyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply a single migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTarget(args[0])
			if err != nil {
				return err
			}

			return a.mutate(cmd.Context(), func(ctx context.Context, drv driver.Driver) (*ledger.Report, error) {
				return a.ledger.Apply(ctx, id, drv)
			})
		},
	}
}

func (a *app) revertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revert <id>",
		Short: "Revert a single migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTarget(args[0])
			if err != nil {
				return err
			}

			return a.mutate(cmd.Context(), func(ctx context.Context, drv driver.Driver) (*ledger.Report, error) {
				return a.ledger.Revert(ctx, id, drv)
			})
		},
	}
}

// mutate runs fn while holding the migrations lock and prints what it
// completed, also when it fails part way.
func (a *app) mutate(ctx context.Context, fn func(context.Context, driver.Driver) (*ledger.Report, error)) error {
	drv, err := a.driver(ctx)
	if err != nil {
		return err
	}

	unlock, err := drv.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migrations lock: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Log.Warnf("failed to release migrations lock: %v", err)
		}
	}()

	report, err := fn(ctx, drv)
	if report != nil {
		printReport(a.out, report)
	}
	return err
}
