// Package files reads migrations from a directory of YAML documents named
// V<version>_<name>.up.yaml and V<version>_<name>.down.yaml, where version
// is 14 digits (YYYYMMDDhhmmss). A migration without a down document cannot
// be reverted.
package files

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
	"github.com/beatleader/ledger/source"
)

const (
	versionLength = 14

	upSuffix   = ".up.yaml"
	downSuffix = ".down.yaml"
)

var (
	ErrMigrationsDirectoryIsNotADirectory = errors.New("migrations directory is not a directory")
	ErrInvalidDocument                    = errors.New("migration document is invalid")
)

type filesSource struct {
	fsys          fs.FS
	migrationsDir string
}

func NewFilesSource(fsys fs.FS, migrationsDirectory string) (source.Source, error) {
	stat, err := fs.Stat(fsys, migrationsDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to stat migrations directory: %w", err)
	}

	if !stat.IsDir() {
		return nil, ErrMigrationsDirectoryIsNotADirectory
	}

	return &filesSource{
		fsys:          fsys,
		migrationsDir: migrationsDirectory,
	}, nil
}

func (rdr *filesSource) GetAvailableMigrations() ([]migration.Description, error) {
	dirEntries, err := fs.ReadDir(rdr.fsys, rdr.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents of migrations directory: %w", err)
	}

	// find all suitable migrations and build a collection of descriptions
	migrations := make(versionMap)
	for _, entry := range dirEntries {
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}

		fileName := entry.Name()
		mig, err := getValidMigrationFromFileName(fileName)
		if err != nil {
			continue
		}

		if strings.HasSuffix(fileName, upSuffix) {
			err = migrations.updateDescription(mig, migration.Up)
		} else if strings.HasSuffix(fileName, downSuffix) {
			err = migrations.updateDescription(mig, migration.Down)
		}

		if err != nil {
			return nil, fmt.Errorf("failed to parse directory entries: %w", err)
		}
	}

	return migrations.sorted(), nil
}

type versionMap map[migration.ID]migration.Description

func (m versionMap) sorted() []migration.Description {
	result := make([]migration.Description, 0, len(m))
	for _, descr := range m {
		result = append(result, descr)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

func (m versionMap) updateDescription(mig migration.Migration, direction migration.Direction) error {
	existing, exists := m[mig.ID]

	switch {
	case !exists:
		m[mig.ID] = migration.Description{
			Migration: mig,
			CanUndo:   direction == migration.Down,
		}

	case existing.Name != mig.Name:
		return fmt.Errorf(
			"%w: migration %d already exists with name \"%s\" (new name \"%s\" is encountered)",
			source.ErrMigrationDuplicated,
			mig.ID,
			existing.Name,
			mig.Name,
		)

	case direction == migration.Down:
		existing.CanUndo = true
		m[mig.ID] = existing
	}

	return nil
}

func getValidMigrationFromFileName(fileName string) (migration.Migration, error) {
	if !strings.HasPrefix(fileName, "V") {
		return migration.Migration{}, fmt.Errorf("migration file name is invalid: %s", fileName)
	}

	var migrationFullName string
	switch {
	case strings.HasSuffix(fileName, upSuffix):
		migrationFullName = strings.TrimSuffix(strings.TrimPrefix(fileName, "V"), upSuffix)
	case strings.HasSuffix(fileName, downSuffix):
		migrationFullName = strings.TrimSuffix(strings.TrimPrefix(fileName, "V"), downSuffix)
	default:
		return migration.Migration{}, fmt.Errorf("migration file name has an unknown suffix: %s", fileName)
	}

	asRunes := []rune(migrationFullName)

	if len(asRunes) < versionLength+1 {
		return migration.Migration{}, fmt.Errorf("migration file name is too short to be valid: %s", fileName)
	}

	version := asRunes[:versionLength]

	for _, c := range version {
		if !unicode.IsDigit(c) {
			return migration.Migration{}, fmt.Errorf(
				"migration file name does not contain a valid version (symbol \"%c\" is not allowed): %s",
				c,
				fileName,
			)
		}
	}

	versionAsInt, err := strconv.ParseUint(string(version), 10, migration.IDBits)
	if err != nil {
		return migration.Migration{}, fmt.Errorf("migration file name does not contain a valid version: %s", fileName)
	}

	nameAsRunes := asRunes[versionLength:]
	if nameAsRunes[0] != '_' {
		return migration.Migration{}, fmt.Errorf(
			"migration file is missing an underscore after version (%c given): %s", nameAsRunes[0], fileName)
	}

	name := string(nameAsRunes[1:])
	if name == "" {
		return migration.Migration{}, fmt.Errorf("migration file name has no name after version: %s", fileName)
	}

	return migration.Migration{
		ID:   migration.ID(versionAsInt),
		Name: name,
	}, nil
}

func fileName(mig migration.Migration, direction migration.Direction) string {
	suffix := upSuffix
	if direction == migration.Down {
		suffix = downSuffix
	}
	return fmt.Sprintf("V%0*d_%s%s", versionLength, uint64(mig.ID), mig.Name, suffix)
}

func (rdr *filesSource) ReadMigration(mig migration.Migration, direction migration.Direction) ([]schema.Operation, error) {
	name := path.Join(rdr.migrationsDir, fileName(mig, direction))

	data, err := fs.ReadFile(rdr.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", source.ErrMigrationNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
	}

	ops, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return ops, nil
}

// decode parses a document: a sequence of operations, each a mapping with
// a single key naming the operation kind.
func decode(data []byte) ([]schema.Operation, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var specs []operationSpec
	if err := dec.Decode(&specs); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	ops := make([]schema.Operation, 0, len(specs))
	for i, spec := range specs {
		op, err := spec.operation()
		if err != nil {
			return nil, fmt.Errorf("%w: operation #%d: %w", ErrInvalidDocument, i, err)
		}
		ops = append(ops, op)
	}

	return ops, nil
}
