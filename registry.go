package ledger

import (
	"fmt"
	"slices"

	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
	"github.com/beatleader/ledger/source"
)

// Registry collects migration records at authoring time. It is built
// explicitly and handed to New, so tests can use small synthetic sets.
type Registry struct {
	records []migration.Record
	names   map[string]migration.ID
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]migration.ID)}
}

// Register adds rec, keeping records ordered by id.
func (r *Registry) Register(rec migration.Record) error {
	if rec.ID == 0 || rec.ID == migration.Latest {
		return fmt.Errorf("%w: id %d is reserved", ErrInvalidRecord, rec.ID)
	}
	if rec.Name == "" {
		return fmt.Errorf("%w: migration %d has no name", ErrInvalidRecord, rec.ID)
	}

	pos, found := slices.BinarySearchFunc(r.records, rec.ID, func(existing migration.Record, id migration.ID) int {
		switch {
		case existing.ID < id:
			return -1
		case existing.ID > id:
			return 1
		}
		return 0
	})
	if found {
		return &DuplicateIDError{ID: rec.ID, Existing: r.records[pos].Name, Name: rec.Name}
	}
	if existing, ok := r.names[rec.Name]; ok {
		return &DuplicateNameError{Name: rec.Name, Existing: existing, ID: rec.ID}
	}

	rec.Up = slices.Clone(rec.Up)
	rec.Down = slices.Clone(rec.Down)

	r.records = slices.Insert(r.records, pos, rec)
	r.names[rec.Name] = rec.ID
	return nil
}

// MustRegister registers every record and panics on the first error. It is
// meant for catalogs compiled into the binary.
func (r *Registry) MustRegister(records ...migration.Record) *Registry {
	for _, rec := range records {
		if err := r.Register(rec); err != nil {
			panic(err)
		}
	}
	return r
}

// RegisterSource reads every migration of src and registers it. Migrations
// without a down script are registered as irreversible.
func (r *Registry) RegisterSource(src source.Source) error {
	available, err := src.GetAvailableMigrations()
	if err != nil {
		return fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	for _, descr := range available {
		up, err := src.ReadMigration(descr.Migration, migration.Up)
		if err != nil {
			return fmt.Errorf("failed to read migration %d: %w", descr.ID, err)
		}

		var down []schema.Operation
		if descr.CanUndo {
			down, err = src.ReadMigration(descr.Migration, migration.Down)
			if err != nil {
				return fmt.Errorf("failed to read migration %d: %w", descr.ID, err)
			}
		}

		err = r.Register(migration.Record{
			Migration:    descr.Migration,
			Up:           up,
			Down:         down,
			Irreversible: !descr.CanUndo,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Records returns the registered records ascending by id.
func (r *Registry) Records() []migration.Record {
	return slices.Clone(r.records)
}

func (r *Registry) Len() int {
	return len(r.records)
}
