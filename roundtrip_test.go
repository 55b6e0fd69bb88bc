package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatleader/ledger"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

func songsSchema(t *testing.T) *schema.Snapshot {
	t.Helper()

	s := schema.NewSnapshot()
	require.NoError(t, s.Apply(schema.CreateTable{
		Name: "Songs",
		Columns: []schema.Column{
			{Name: "Id", Type: "string(128)"},
			{Name: "Hash", Type: "text", Nullable: true},
		},
		PrimaryKey: []string{"Id"},
	}))
	require.NoError(t, s.Apply(schema.CreateIndex{Table: "Songs", Name: "IX_Songs_Hash", Columns: []string{"Hash"}}))
	return s
}

var roundTripCheckTestsTable = []struct { // nolint:gochecknoglobals
	name          string
	record        migration.Record
	expectedStage migration.Direction
	expectedErr   error
	suggested     []schema.Operation
}{
	/* s0 */ {
		name: "test s0: matching down",
		record: migration.Record{
			Migration: migration.Migration{ID: 1, Name: "add_duration"},
			Up:        []schema.Operation{schema.AddColumn{Table: "Songs", Column: schema.Column{Name: "Duration", Type: "double"}}},
			Down:      []schema.Operation{schema.DropColumn{Table: "Songs", Name: "Duration"}},
		},
	},
	/* s1 */ {
		name: "test s1: irreversible records pass",
		record: migration.Record{
			Migration:    migration.Migration{ID: 1, Name: "drop_songs"},
			Up:           []schema.Operation{schema.DropIndex{Table: "Songs", Name: "IX_Songs_Hash"}},
			Irreversible: true,
		},
	},

	/* e0 */ {
		name: "test e0: empty up with a down that drops an index",
		record: migration.Record{
			Migration: migration.Migration{ID: 1, Name: "lower_hash"},
			Down:      []schema.Operation{schema.DropIndex{Table: "Songs", Name: "IX_Songs_Hash"}},
		},
		expectedStage: migration.Down,
		expectedErr:   ledger.ErrSchemaChanged,
		suggested:     []schema.Operation{},
	},
	/* e1 */ {
		name: "test e1: down fails to execute",
		record: migration.Record{
			Migration: migration.Migration{ID: 1, Name: "rename_hash"},
			Up:        []schema.Operation{schema.RenameColumn{Table: "Songs", OldName: "Hash", NewName: "LowerHash"}},
			Down:      []schema.Operation{schema.RenameColumn{Table: "Songs", OldName: "Hash", NewName: "LowerHash"}},
		},
		expectedStage: migration.Down,
		expectedErr:   schema.ErrColumnNotFound,
		suggested:     []schema.Operation{schema.RenameColumn{Table: "Songs", OldName: "LowerHash", NewName: "Hash"}},
	},
	/* e2 */ {
		name: "test e2: up fails to execute",
		record: migration.Record{
			Migration: migration.Migration{ID: 1, Name: "create_songs"},
			Up:        []schema.Operation{schema.CreateTable{Name: "Songs", Columns: []schema.Column{{Name: "Id", Type: "int"}}}},
			Down:      []schema.Operation{schema.DropTable{Name: "Songs"}},
		},
		expectedStage: migration.Up,
		expectedErr:   schema.ErrTableExists,
	},
}

func TestCheckRoundTrip(t *testing.T) {
	t.Parallel()
	t.Logf("Should verify down operations restore the schema.")

	for _, test := range roundTripCheckTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			before := songsSchema(t)
			l := ledger.New(ledger.NewRegistry().MustRegister(test.record))

			err := l.CheckRoundTrip(context.Background(), test.record, before)

			assert.True(t, before.Equal(songsSchema(t)), "the input schema must not change")
			if test.expectedErr == nil {
				assert.NoError(t, err)
				return
			}

			var rtErr *ledger.RoundTripError
			require.ErrorAs(t, err, &rtErr)
			assert.ErrorIs(t, err, test.expectedErr)
			assert.Equal(t, test.expectedStage, rtErr.Stage)
			assert.Equal(t, test.record.Migration, rtErr.Record)
			if test.suggested != nil {
				assert.Equal(t, test.suggested, rtErr.Suggested)
			}
		})
	}
}

func TestVerifyRoundTrips(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	broken := migration.Record{
		Migration: migration.Migration{ID: 4, Name: "lower_hash"},
		Down:      []schema.Operation{schema.DropIndex{Table: "T", Name: "IX_T_y"}},
	}
	l := ledger.New(ledger.NewRegistry().MustRegister(recordA, recordB, recordC, broken))

	violations := l.VerifyRoundTrips(ctx, nil)

	require.Len(t, violations, 1)
	assert.Equal(t, broken.Migration, violations[0].Record)
	assert.ErrorIs(t, violations[0], ledger.ErrSchemaChanged)
	assert.Contains(t, violations[0].Error(), `migration 4 "lower_hash" does not round-trip (down)`)
}

func TestVerifyRoundTripsStopsWhenUpFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	orphan := migration.Record{
		Migration: migration.Migration{ID: 2, Name: "orphan"},
		Up:        []schema.Operation{schema.AddColumn{Table: "missing", Column: schema.Column{Name: "c", Type: "int"}}},
		Down:      []schema.Operation{schema.DropColumn{Table: "missing", Name: "c"}},
	}
	l := ledger.New(ledger.NewRegistry().MustRegister(recordA, orphan, recordC))

	violations := l.VerifyRoundTrips(ctx, schema.NewSnapshot())

	require.Len(t, violations, 1)
	assert.Equal(t, migration.Up, violations[0].Stage)
	assert.ErrorIs(t, violations[0], schema.ErrTableNotFound)
}

func TestVerifyRoundTripsCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	violations := newLedger().VerifyRoundTrips(ctx, nil)

	require.Len(t, violations, 1)
	assert.ErrorIs(t, violations[0], context.Canceled)
}
