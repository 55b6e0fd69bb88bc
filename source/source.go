package source

import (
	"errors"

	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

// Source lists authored migrations and reads their operations.
type Source interface {
	// GetAvailableMigrations returns every migration the source knows,
	// ascending by id.
	GetAvailableMigrations() ([]migration.Description, error)

	ReadMigration(mig migration.Migration, direction migration.Direction) ([]schema.Operation, error)
}

var (
	ErrMigrationDuplicated = errors.New("migration version already exists with different name")
	ErrMigrationNotFound   = errors.New("migration script does not exist")
)
