package ledger

import (
	"fmt"
	"slices"

	"github.com/beatleader/ledger/migration"
)

// Plan is the ordered list of records a run applies or reverts.
type Plan struct {
	Direction migration.Direction
	Target    migration.ID
	Records   []migration.Record
}

func (p *Plan) Empty() bool {
	return len(p.Records) == 0
}

// Plan computes how to bring a database with the given applied set to
// target. A target at or above the frontier (the highest applied id) moves
// forward: pending records up to and including target, ascending. A target
// below the frontier moves backward: applied records above target,
// descending. Targets past the newest or before the oldest record simply
// produce an empty plan.
func (l *Ledger) Plan(target migration.ID, applied migration.AppliedSet) (*Plan, error) {
	if target >= applied.Max() {
		return l.planUp(target, applied)
	}
	return l.planDown(target, applied)
}

func (l *Ledger) planUp(target migration.ID, applied migration.AppliedSet) (*Plan, error) {
	plan := &Plan{Direction: migration.Up, Target: target}
	frontier := applied.Max()

	for rec := range l.Pending(applied) {
		if rec.ID > target {
			break
		}
		if rec.ID < frontier && !l.allowOutOfOrder {
			return nil, &OutOfOrderError{Record: rec.Migration, Direction: migration.Up, Blocking: frontier}
		}
		plan.Records = append(plan.Records, rec)
	}

	return plan, nil
}

func (l *Ledger) planDown(target migration.ID, applied migration.AppliedSet) (*Plan, error) {
	plan := &Plan{Direction: migration.Down, Target: target}

	ids := applied.Sorted()
	slices.Reverse(ids)

	for _, id := range ids {
		if id <= target {
			break
		}

		rec, ok := l.Record(id)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrMissingRecord, id)
		}
		if rec.Irreversible {
			return nil, fmt.Errorf("%w: %d %q", ErrIrreversible, rec.ID, rec.Name)
		}
		plan.Records = append(plan.Records, rec)
	}

	return plan, nil
}
