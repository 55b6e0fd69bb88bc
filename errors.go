package ledger

import (
	"errors"
	"fmt"

	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

var (
	ErrIrreversible  = errors.New("migration cannot be reverted")
	ErrMissingRecord = errors.New("migration is applied but unknown to the ledger")
	ErrUnknownRecord = errors.New("migration is not registered")
	ErrInvalidRecord = errors.New("migration record is invalid")
)

// DuplicateIDError is returned when a registered record reuses an id.
type DuplicateIDError struct {
	ID       migration.ID
	Existing string
	Name     string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("migration %d already exists with name %q (new name %q is encountered)", e.ID, e.Existing, e.Name)
}

// DuplicateNameError is returned when a registered record reuses a name.
type DuplicateNameError struct {
	Name     string
	Existing migration.ID
	ID       migration.ID
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("migration name %q is already used by %d (encountered again in %d)", e.Name, e.Existing, e.ID)
}

// OperationFailedError reports the operation of a record that failed to
// execute. Operations before Index have already run.
type OperationFailedError struct {
	Record    migration.Migration
	Direction migration.Direction
	Index     int
	Operation schema.Operation
	Cause     error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("migration %d %q (%s): operation #%d (%s) failed: %s",
		e.Record.ID, e.Record.Name, e.Direction, e.Index, e.Operation, e.Cause)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Cause
}

// OutOfOrderError is returned when a record is applied while an older one is
// still pending or a newer one is already applied, or reverted while a newer
// one is still applied. Blocking is the record standing in the way.
type OutOfOrderError struct {
	Record    migration.Migration
	Direction migration.Direction
	Blocking  migration.ID
}

func (e *OutOfOrderError) Error() string {
	switch {
	case e.Direction == migration.Down:
		return fmt.Sprintf("migration %d %q cannot be reverted before %d, the most recently applied migration",
			e.Record.ID, e.Record.Name, e.Blocking)
	case e.Blocking > e.Record.ID:
		return fmt.Sprintf("migration %d %q cannot be applied: newer migration %d is already applied",
			e.Record.ID, e.Record.Name, e.Blocking)
	default:
		return fmt.Sprintf("migration %d %q cannot be applied before pending migration %d",
			e.Record.ID, e.Record.Name, e.Blocking)
	}
}
