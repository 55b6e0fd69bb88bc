// Package memory implements driver.Driver on top of an in-memory schema
// snapshot. Transactions work on a copy of the schema which replaces the
// committed one on Commit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

var ErrTxDone = errors.New("transaction has already been committed or rolled back")

type Driver struct {
	// Intercept, when set, runs before every operation. A non-nil result
	// fails the operation without touching the schema.
	Intercept func(op schema.Operation) error

	mu       sync.Mutex
	schema   *schema.Snapshot
	log      []migration.Log
	executed []schema.Operation
	lock     chan struct{}
}

var _ driver.Driver = (*Driver)(nil)

// NewDriver returns a driver whose schema starts as a copy of base (an
// empty schema when base is nil) and whose migrations log starts as log.
func NewDriver(base *schema.Snapshot, log ...migration.Log) *Driver {
	if base == nil {
		base = schema.NewSnapshot()
	}
	return &Driver{
		schema: base.Clone(),
		log:    append([]migration.Log(nil), log...),
		lock:   make(chan struct{}, 1),
	}
}

// Schema returns a copy of the committed schema.
func (d *Driver) Schema() *schema.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schema.Clone()
}

// Executed returns the operations of every committed transaction in
// execution order.
func (d *Driver) Executed() []schema.Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]schema.Operation(nil), d.executed...)
}

func (d *Driver) ListMigrationsLog(ctx context.Context) ([]migration.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]migration.Log{}, d.log...), nil
}

func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &tx{
		drv:    d,
		schema: d.Schema(),
	}, nil
}

func (d *Driver) Lock(ctx context.Context) (driver.Unlock, error) {
	select {
	case d.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", driver.ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() error {
		once.Do(func() { <-d.lock })
		return nil
	}, nil
}

// ---

type tx struct {
	drv      *Driver
	schema   *schema.Snapshot
	log      []migration.Log
	executed []schema.Operation
	done     bool
}

func (t *tx) Execute(ctx context.Context, op schema.Operation) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.drv.Intercept != nil {
		if err := t.drv.Intercept(op); err != nil {
			return err
		}
	}
	if err := t.schema.Apply(op); err != nil {
		return err
	}

	t.executed = append(t.executed, op)
	return nil
}

func (t *tx) AppendLog(ctx context.Context, entry migration.Log) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.log = append(t.log, entry)
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.drv.mu.Lock()
	defer t.drv.mu.Unlock()

	t.drv.schema = t.schema
	t.drv.log = append(t.drv.log, t.log...)
	t.drv.executed = append(t.drv.executed, t.executed...)
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return nil
}

// ---

// Executor applies operations directly to a snapshot.
type Executor struct {
	Schema *schema.Snapshot
}

func (e Executor) Execute(ctx context.Context, op schema.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.Schema.Apply(op)
}
