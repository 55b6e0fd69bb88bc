package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/beatleader/ledger/driver/memory"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

var ErrSchemaChanged = errors.New("down operations do not restore the schema")

// RoundTripError reports a record whose down operations are not the inverse
// of its up operations. Stage is the direction that failed to execute, or
// Down with ErrSchemaChanged when both ran but left a different schema.
// Suggested holds down operations derived from the up operations, when they
// can be derived.
type RoundTripError struct {
	Record    migration.Migration
	Stage     migration.Direction
	Cause     error
	Suggested []schema.Operation
}

func (e *RoundTripError) Error() string {
	return fmt.Sprintf("migration %d %q does not round-trip (%s): %s", e.Record.ID, e.Record.Name, e.Stage, e.Cause)
}

func (e *RoundTripError) Unwrap() error {
	return e.Cause
}

// CheckRoundTrip applies the up then the down operations of rec to a copy of
// before and verifies the schema is restored. Irreversible records pass.
func (l *Ledger) CheckRoundTrip(ctx context.Context, rec migration.Record, before *schema.Snapshot) error {
	if rec.Irreversible {
		return nil
	}

	state := before.Clone()
	exec := memory.Executor{Schema: state}

	fail := func(stage migration.Direction, cause error) error {
		e := &RoundTripError{Record: rec.Migration, Stage: stage, Cause: cause}
		if suggested, err := schema.Invert(rec.Up, before); err == nil {
			e.Suggested = suggested
		}
		return e
	}

	if err := l.ApplyUp(ctx, rec, exec); err != nil {
		return fail(migration.Up, err)
	}
	if err := l.ApplyDown(ctx, rec, exec); err != nil {
		return fail(migration.Down, err)
	}
	if !state.Equal(before) {
		return fail(migration.Down, ErrSchemaChanged)
	}

	return nil
}

// VerifyRoundTrips checks every record in order, starting from base and
// advancing the schema with each record's up operations. Checking stops at
// the first record whose up operations cannot run, since later records
// depend on it.
func (l *Ledger) VerifyRoundTrips(ctx context.Context, base *schema.Snapshot) []*RoundTripError {
	if base == nil {
		base = schema.NewSnapshot()
	}

	var violations []*RoundTripError
	state := base.Clone()

	for _, rec := range l.records {
		if err := ctx.Err(); err != nil {
			violations = append(violations, &RoundTripError{Record: rec.Migration, Stage: migration.Up, Cause: err})
			return violations
		}

		var rtErr *RoundTripError
		if err := l.CheckRoundTrip(ctx, rec, state); errors.As(err, &rtErr) {
			violations = append(violations, rtErr)
			if rtErr.Stage == migration.Up {
				return violations
			}
		}

		if err := l.ApplyUp(ctx, rec, memory.Executor{Schema: state}); err != nil {
			violations = append(violations, &RoundTripError{Record: rec.Migration, Stage: migration.Up, Cause: err})
			return violations
		}
	}

	return violations
}
