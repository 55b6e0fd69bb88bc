package migration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/beatleader/ledger/migration"
)

func entry(id migration.ID, dir migration.Direction) migration.Log {
	return migration.Log{Migration: migration.Migration{ID: id, Name: "m"}, Direction: dir}
}

var appliedFromLogTestsTable = []struct { // nolint:gochecknoglobals
	name     string
	log      []migration.Log
	expected []migration.ID
	frontier migration.ID
}{
	/* s0 */ {
		name:     "test s0: empty log",
		expected: []migration.ID{},
	},
	/* s1 */ {
		name:     "test s1: applied migrations",
		log:      []migration.Log{entry(3, migration.Up), entry(1, migration.Up)},
		expected: []migration.ID{1, 3},
		frontier: 3,
	},
	/* s2 */ {
		name:     "test s2: reverted migration is not applied",
		log:      []migration.Log{entry(1, migration.Up), entry(2, migration.Up), entry(2, migration.Down)},
		expected: []migration.ID{1},
		frontier: 1,
	},
	/* s3 */ {
		name: "test s3: reapplied migration is applied",
		log: []migration.Log{
			entry(1, migration.Up),
			entry(1, migration.Down),
			entry(1, migration.Up),
		},
		expected: []migration.ID{1},
		frontier: 1,
	},
	/* s4 */ {
		name:     "test s4: everything reverted",
		log:      []migration.Log{entry(1, migration.Up), entry(1, migration.Down)},
		expected: []migration.ID{},
	},
}

func TestAppliedFromLog(t *testing.T) {
	t.Parallel()
	t.Logf("Should derive the applied set from the latest log entry of each migration.")

	for _, test := range appliedFromLogTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			set := migration.AppliedFromLog(test.log)

			assert.Equal(t, test.expected, set.Sorted())
			assert.Equal(t, test.frontier, set.Max())
		})
	}
}

func TestFoldKeepsLatestEntry(t *testing.T) {
	t.Parallel()

	first := entry(1, migration.Up)
	first.AppliedAt = time.Unix(1, 0)
	second := entry(1, migration.Down)
	second.AppliedAt = time.Unix(2, 0)

	latest := migration.Fold([]migration.Log{first, second})

	assert.Len(t, latest, 1)
	assert.Equal(t, second, latest[1])
}

func TestAppliedSet(t *testing.T) {
	t.Parallel()

	set := migration.NewAppliedSet(5, 2, 9)

	assert.True(t, set.Has(2))
	assert.False(t, set.Has(3))
	assert.Equal(t, migration.ID(9), set.Max())
	assert.Equal(t, []migration.ID{2, 5, 9}, set.Sorted())

	var empty migration.AppliedSet
	assert.False(t, empty.Has(1))
	assert.Equal(t, migration.ID(0), empty.Max())
}

func TestRecordOperations(t *testing.T) {
	t.Parallel()

	rec := migration.Record{Up: nil, Down: nil}
	assert.Empty(t, rec.Operations(migration.Up))
	assert.Equal(t, "up", migration.Up.String())
	assert.Equal(t, "down", migration.Down.String())
	assert.Equal(t, "missing", migration.Missing.String())
}
