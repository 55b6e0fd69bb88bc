// Package ledger applies and reverts versioned schema migrations against a
// database while keeping an accurate record of what has been applied.
//
// The ledger is a mechanism: it executes operations through a
// driver.Executor, records progress through a driver.Tx and surfaces every
// failure unchanged. It never retries and never takes locks; callers
// serialize runs against one database with driver.Driver.Lock.
package ledger

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/migration"
)

const tracerName = "github.com/beatleader/ledger"

type Ledger struct {
	records []migration.Record
	index   map[migration.ID]int

	allowOutOfOrder bool
	now             func() time.Time
	newRunID        func() string
	tracer          trace.Tracer
}

type Option func(*Ledger)

// WithAllowOutOfOrder lets forward runs apply pending records older than
// the most recently applied one.
func WithAllowOutOfOrder(allow bool) Option {
	return func(l *Ledger) {
		l.allowOutOfOrder = allow
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithRunIDs replaces the generator of run ids written to the migrations log.
func WithRunIDs(next func() string) Option {
	return func(l *Ledger) {
		l.newRunID = next
	}
}

// StatusResult is the merged view of the authored records and the
// migrations log of one database.
type StatusResult struct {
	Migrations   []migration.State
	AppliedCount uint
	PendingCount uint
	MissingCount uint
}

// ---

// New returns a ledger over the records registered in reg. Records added
// to reg afterwards are not seen by the ledger.
func New(reg *Registry, opts ...Option) *Ledger {
	l := &Ledger{
		records:  reg.Records(),
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.index = make(map[migration.ID]int, len(l.records))
	for i, rec := range l.records {
		l.index[rec.ID] = i
	}

	return l
}

// ---

// Records returns the known records ascending by id.
func (l *Ledger) Records() []migration.Record {
	return append([]migration.Record(nil), l.records...)
}

func (l *Ledger) Record(id migration.ID) (migration.Record, bool) {
	i, ok := l.index[id]
	if !ok {
		return migration.Record{}, false
	}
	return l.records[i], true
}

// Pending yields, ascending by id, the records that are not in applied.
func (l *Ledger) Pending(applied migration.AppliedSet) iter.Seq[migration.Record] {
	return func(yield func(migration.Record) bool) {
		for _, rec := range l.records {
			if applied.Has(rec.ID) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Applied reads the migrations log of drv and returns the applied set.
func (l *Ledger) Applied(ctx context.Context, drv driver.Driver) (migration.AppliedSet, error) {
	logs, err := drv.ListMigrationsLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations from db: %w", err)
	}
	return migration.AppliedFromLog(logs), nil
}

// Status merges the known records with the migrations log of drv. Applied
// migrations unknown to the ledger are reported as missing.
func (l *Ledger) Status(ctx context.Context, drv driver.Driver) (*StatusResult, error) {
	logs, err := drv.ListMigrationsLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}
	latest := migration.Fold(logs)

	result := StatusResult{
		Migrations: make([]migration.State, 0, len(l.records)),
	}
	for _, rec := range l.records {
		state := migration.State{
			Description: migration.Description{Migration: rec.Migration, CanUndo: !rec.Irreversible},
			Status:      migration.Pending,
		}

		if entry, ok := latest[rec.ID]; ok && entry.Direction == migration.Up {
			state.Status = migration.Applied
			state.AppliedAt = entry.AppliedAt
			result.AppliedCount++
		} else {
			result.PendingCount++
		}

		result.Migrations = append(result.Migrations, state)
	}

	for id, entry := range latest {
		if _, known := l.index[id]; known || entry.Direction != migration.Up {
			continue
		}

		result.Migrations = append(result.Migrations, migration.State{
			Description: migration.Description{Migration: entry.Migration, CanUndo: false},
			Status:      migration.Missing,
			AppliedAt:   entry.AppliedAt,
		})
		result.MissingCount++
	}

	sort.Slice(result.Migrations, func(i, j int) bool {
		return result.Migrations[i].ID < result.Migrations[j].ID
	})

	logger.Log.Debugf("status: %d applied, %d pending, %d missing",
		result.AppliedCount, result.PendingCount, result.MissingCount)

	return &result, nil
}
