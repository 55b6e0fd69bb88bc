package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/migration"
)

// Report lists the records a run completed. It is returned alongside an
// error when a run stops early and then reflects exactly what was recorded.
type Report struct {
	RunID     string
	Direction migration.Direction
	Target    migration.ID
	Completed []migration.Log
}

// ApplyUp executes the up operations of rec in order. The first failure is
// returned as an *OperationFailedError; operations that already ran are not
// undone and nothing is recorded.
func (l *Ledger) ApplyUp(ctx context.Context, rec migration.Record, exec driver.Executor) error {
	return l.run(ctx, rec, migration.Up, exec)
}

// ApplyDown executes the down operations of rec in order, with the same
// failure semantics as ApplyUp.
func (l *Ledger) ApplyDown(ctx context.Context, rec migration.Record, exec driver.Executor) error {
	if rec.Irreversible {
		return fmt.Errorf("%w: %d %q", ErrIrreversible, rec.ID, rec.Name)
	}
	return l.run(ctx, rec, migration.Down, exec)
}

func (l *Ledger) run(ctx context.Context, rec migration.Record, dir migration.Direction, exec driver.Executor) error {
	for i, op := range rec.Operations(dir) {
		logger.Log.Tracef("migration %d (%s): #%d %s", rec.ID, dir, i, op)

		if err := exec.Execute(ctx, op); err != nil {
			return &OperationFailedError{
				Record:    rec.Migration,
				Direction: dir,
				Index:     i,
				Operation: op,
				Cause:     err,
			}
		}
	}
	return nil
}

// ---

// MigrateTo brings drv to target, moving forward or backward as Plan
// decides. Each record runs in its own transaction together with its log
// entry. The run stops at the first failure, leaving the log accurate.
func (l *Ledger) MigrateTo(ctx context.Context, target migration.ID, drv driver.Driver) (*Report, error) {
	applied, err := l.Applied(ctx, drv)
	if err != nil {
		return nil, err
	}

	plan, err := l.Plan(target, applied)
	if err != nil {
		return nil, err
	}

	return l.Execute(ctx, plan, drv)
}

// Upgrade applies pending records up to and including maxVersion. It never
// reverts anything.
func (l *Ledger) Upgrade(ctx context.Context, drv driver.Driver, maxVersion migration.ID) (*Report, error) {
	applied, err := l.Applied(ctx, drv)
	if err != nil {
		return nil, err
	}

	plan, err := l.planUp(maxVersion, applied)
	if err != nil {
		return nil, err
	}

	return l.Execute(ctx, plan, drv)
}

// Downgrade reverts applied records newer than toVersion, newest first. It
// never applies anything.
func (l *Ledger) Downgrade(ctx context.Context, drv driver.Driver, toVersion migration.ID) (*Report, error) {
	applied, err := l.Applied(ctx, drv)
	if err != nil {
		return nil, err
	}

	plan, err := l.planDown(toVersion, applied)
	if err != nil {
		return nil, err
	}

	return l.Execute(ctx, plan, drv)
}

// Apply applies the single record id. It must be the oldest pending record
// and newer than every applied one, unless out-of-order runs are allowed.
// Applying an already applied record does nothing.
func (l *Ledger) Apply(ctx context.Context, id migration.ID, drv driver.Driver) (*Report, error) {
	rec, ok := l.Record(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}

	applied, err := l.Applied(ctx, drv)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Direction: migration.Up, Target: id}
	if !applied.Has(id) {
		if !l.allowOutOfOrder {
			if frontier := applied.Max(); frontier > id {
				return nil, &OutOfOrderError{Record: rec.Migration, Direction: migration.Up, Blocking: frontier}
			}
			for next := range l.Pending(applied) {
				if next.ID < id {
					return nil, &OutOfOrderError{Record: rec.Migration, Direction: migration.Up, Blocking: next.ID}
				}
				break
			}
		}
		plan.Records = []migration.Record{rec}
	}

	return l.Execute(ctx, plan, drv)
}

// Revert reverts the single record id, which must be the most recently
// applied one. Reverting a record that is not applied does nothing.
func (l *Ledger) Revert(ctx context.Context, id migration.ID, drv driver.Driver) (*Report, error) {
	applied, err := l.Applied(ctx, drv)
	if err != nil {
		return nil, err
	}

	rec, ok := l.Record(id)
	if !ok {
		if applied.Has(id) {
			return nil, fmt.Errorf("%w: %d", ErrMissingRecord, id)
		}
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}

	plan := &Plan{Direction: migration.Down, Target: id}
	if applied.Has(id) {
		if frontier := applied.Max(); frontier != id {
			return nil, &OutOfOrderError{Record: rec.Migration, Direction: migration.Down, Blocking: frontier}
		}
		if rec.Irreversible {
			return nil, fmt.Errorf("%w: %d %q", ErrIrreversible, rec.ID, rec.Name)
		}
		plan.Records = []migration.Record{rec}
	}

	return l.Execute(ctx, plan, drv)
}

// Execute runs plan against drv. Cancellation is honoured between records;
// a record interrupted mid-flight is rolled back and not recorded.
func (l *Ledger) Execute(ctx context.Context, plan *Plan, drv driver.Driver) (*Report, error) {
	report := &Report{
		RunID:     l.newRunID(),
		Direction: plan.Direction,
		Target:    plan.Target,
	}

	if plan.Empty() {
		logger.Log.Debugf("nothing to do (%s to %d)", plan.Direction, plan.Target)
		return report, nil
	}

	ctx, span := l.tracer.Start(ctx, "ledger.run", trace.WithAttributes(
		attribute.String("ledger.run_id", report.RunID),
		attribute.String("ledger.direction", plan.Direction.String()),
		attribute.Int("ledger.records", len(plan.Records)),
	))
	defer span.End()

	for _, rec := range plan.Records {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return report, err
		}

		entry, err := l.step(ctx, rec, plan.Direction, drv, report.RunID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "migration failed")
			return report, err
		}

		report.Completed = append(report.Completed, entry)
	}

	return report, nil
}

// step runs one record and its log entry in a single transaction.
func (l *Ledger) step(
	ctx context.Context, rec migration.Record, dir migration.Direction, drv driver.Driver, runID string,
) (migration.Log, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.migration", trace.WithAttributes(
		attribute.Int64("ledger.migration.id", int64(rec.ID)),
		attribute.String("ledger.migration.name", rec.Name),
		attribute.String("ledger.direction", dir.String()),
	))
	defer span.End()

	logger.Log.Infof("%s migration %d %s", verb(dir), rec.ID, rec.Name)
	entry := migration.Log{Migration: rec.Migration, Direction: dir, RunID: runID, AppliedAt: l.now()}

	tx, err := drv.Begin(ctx)
	if err != nil {
		return migration.Log{}, fmt.Errorf("failed to begin transaction for migration %d: %w", rec.ID, err)
	}

	if err := l.run(ctx, rec, dir, tx); err != nil {
		span.RecordError(err)
		return migration.Log{}, rollback(tx, err)
	}

	if err := tx.AppendLog(ctx, entry); err != nil {
		return migration.Log{}, rollback(tx, fmt.Errorf("failed to record migration %d: %w", rec.ID, err))
	}

	if err := tx.Commit(); err != nil {
		return migration.Log{}, fmt.Errorf("failed to commit migration %d: %w", rec.ID, err)
	}

	logger.Log.Successf("%s migration %d %s (%d operations)", pastVerb(dir), rec.ID, rec.Name, len(rec.Operations(dir)))
	return entry, nil
}

func rollback(tx driver.Tx, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Join(cause, fmt.Errorf("failed to roll back transaction: %w", err))
	}
	return cause
}

func verb(dir migration.Direction) string {
	if dir == migration.Down {
		return "reverting"
	}
	return "applying"
}

func pastVerb(dir migration.Direction) string {
	if dir == migration.Down {
		return "reverted"
	}
	return "applied"
}
