package files_test

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
	"github.com/beatleader/ledger/source"
	"github.com/beatleader/ledger/source/files"
)

var getAvailableMigrationsTestTable = []struct { // nolint:gochecknoglobals
	name                    string
	expectErrorWhenCreating bool
	expectErrorWhenCalling  bool
	directory               string
	fs                      fstest.MapFS
	expectedMigrations      []migration.Description
}{
	// -- success tests ------
	/* s0 */ {
		name:      "test s0: should correctly list all migrations (1)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s1 */ {
		name:      "test s1: should correctly list all migrations (2)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224081255_initial.up.yaml":           {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224081255, Name: "initial"}, CanUndo: false},
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s2 */ {
		name:      "test s2: should correctly list migrations in an non-standard directory",
		directory: "tmp/.Xs223xxSCa",
		fs: fstest.MapFS{
			"tmp/.Xs223xxSCa": {
				Mode: fs.ModeDir,
			},
			"tmp/.Xs223xxSCa/V20211224081255_initial.up.yaml":           {},
			"tmp/.Xs223xxSCa/V20211224091800_add_users_table.down.yaml": {},
			"tmp/.Xs223xxSCa/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224081255, Name: "initial"}, CanUndo: false},
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s3 */ {
		name:      "test s3: should skip on bad version format (too short)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V2021122409180_init.up.yaml":               {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s4 */ {
		name:      "test s4: should skip on bad version format (does not start with a digit)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V_0211224091800_init.up.yaml":              {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s5 */ {
		name:      "test s5: should skip on bad version format (does not start with a V)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/120211224091800_init.up.yaml":              {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s6 */ {
		name:      "test s6: should skip on bad migration name (no underscore before name)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800init.up.yaml":               {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s7 */ {
		name:      "test s7: should skip on bad migration name (no name)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800.up.yaml":                   {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s8 */ {
		name:      "test s8: should skip on bad migration name (no name but with underscore)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800_.up.yaml":                  {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s9 */ {
		name:      "test s9: should skip on bad migration name (bad suffix)",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800_init..yaml":                {},
			"migrations/V20211224091800_init.yaml":                 {},
			"migrations/V20211224091800_init.up.sql":               {},
			"migrations/V20211224091800_init.up":                   {},
			"migrations/V20211224091800_init.":                     {},
			"migrations/V20211224091800_init":                      {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s10 */ {
		name:      "test s10: should not care about other directories",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"V20211224091100_init.up.yaml":                         {},
			"migrations/subdirectory/V20211224091100_init.up.yaml": {},
			"sibling/V20211224091100_init.up.yaml":                 {},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},
	/* s11 */ {
		name:      "test s11: should skip directories with matching name",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091700_init.up.yaml": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800_add_users_table.down.yaml": {},
			"migrations/V20211224091800_add_users_table.up.yaml":   {},
		},
		expectedMigrations: []migration.Description{
			{Migration: migration.Migration{ID: 20211224091800, Name: "add_users_table"}, CanUndo: true},
		},
	},

	// -- error tests --------
	/* e0 */ {
		name:      "test e0: should fail when directory does not exist",
		directory: "ledger",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224081255_initial.up.yaml": {},
		},
		expectErrorWhenCreating: true,
	},
	/* e1 */ {
		name:      "test e1: should fail on duplicate migration version",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDir,
			},
			"migrations/V20211224091800_add_users_table.down.yaml":   {},
			"migrations/V20211224091800_add_users_table.up.yaml":     {},
			"migrations/V20211224091800_add_users_table_2.down.yaml": {},
		},
		expectErrorWhenCalling: true,
	},
	/* e2 */ {
		name:      "test e2: should fail when directory is a file",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {},
		},
		expectErrorWhenCreating: true,
	},
	/* e3 */ {
		name:      "test e3: should fail when directory is a device",
		directory: "migrations",
		fs: fstest.MapFS{
			"migrations": {
				Mode: fs.ModeDevice,
			},
		},
		expectErrorWhenCreating: true,
	},
}

func TestGetAvailableMigrations(t *testing.T) {
	t.Parallel()
	t.Logf("Should correctly test fetching of available migrations from a directory.")

	for _, test := range getAvailableMigrationsTestTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			src, err := files.NewFilesSource(test.fs, test.directory)

			if test.expectErrorWhenCreating {
				assert.Error(t, err)
				return
			} else if !assert.NoError(t, err) {
				return
			}

			migrations, err := src.GetAvailableMigrations()

			if test.expectErrorWhenCalling {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)

			if assert.NotNil(t, migrations) {
				assert.Equal(t, test.expectedMigrations, migrations)
			}
		})
	}
}

func TestGetAvailableMigrationsReportsDuplicates(t *testing.T) {
	t.Parallel()

	src, err := files.NewFilesSource(fstest.MapFS{
		"V20211224091800_add_users_table.up.yaml":   {},
		"V20211224091800_add_players_table.up.yaml": {},
	}, ".")
	require.NoError(t, err)

	_, err = src.GetAvailableMigrations()
	assert.ErrorIs(t, err, source.ErrMigrationDuplicated)
}

//
// -- Tests for ReadMigration() -------------
//

const playersUp = `
- create_table:
    name: Players
    columns:
      - {name: Id, type: string(64)}
      - {name: Name, type: text, nullable: true}
      - {name: Pp, type: float, default: 0}
    primary_key: [Id]
- create_index: {table: Players, name: IX_Players_Pp, columns: [Pp]}
- add_foreign_key:
    table: Players
    column: ClanId
    principal_table: Clans
    principal_column: Id
`

const playersDown = `
- drop_foreign_key: {table: Players, name: FK_Players_Clans_ClanId}
- drop_table: {name: Players}
`

var readMigrationTestsTable = []struct { // nolint:gochecknoglobals
	name        string
	data        string
	expectedOps []schema.Operation
	expectedErr error
}{
	/* s0 */ {
		name: "test s0: should decode every field",
		data: playersUp,
		expectedOps: []schema.Operation{
			schema.CreateTable{
				Name: "Players",
				Columns: []schema.Column{
					{Name: "Id", Type: "string(64)"},
					{Name: "Name", Type: "text", Nullable: true},
					{Name: "Pp", Type: "float", Default: schema.Default("0")},
				},
				PrimaryKey: []string{"Id"},
			},
			schema.CreateIndex{Table: "Players", Name: "IX_Players_Pp", Columns: []string{"Pp"}},
			schema.AddForeignKey{Table: "Players", Column: "ClanId", PrincipalTable: "Clans", PrincipalColumn: "Id"},
		},
	},
	/* s1 */ {
		name:        "test s1: should accept an empty document",
		data:        "",
		expectedOps: []schema.Operation{},
	},
	/* s2 */ {
		name:        "test s2: should accept an empty list",
		data:        "[]",
		expectedOps: []schema.Operation{},
	},
	/* s3 */ {
		name: "test s3: should decode renames and alterations",
		data: `
- rename_table: {old_name: Stats, new_name: ScoreStats}
- rename_column: {table: Songs, old_name: Hash, new_name: LowerHash}
- alter_column: {table: Songs, name: Bpm, type: double, nullable: true, old_type: float, old_default: "0"}
- drop_column: {table: Songs, name: Legacy}
- drop_index: {table: Songs, name: IX_Songs_Hash}
- add_column: {table: Songs, column: {name: Duration, type: double, default: "0"}}
`,
		expectedOps: []schema.Operation{
			schema.RenameTable{OldName: "Stats", NewName: "ScoreStats"},
			schema.RenameColumn{Table: "Songs", OldName: "Hash", NewName: "LowerHash"},
			schema.AlterColumn{
				Table: "Songs", Name: "Bpm", Type: "double", Nullable: true,
				OldType: "float", OldDefault: schema.Default("0"),
			},
			schema.DropColumn{Table: "Songs", Name: "Legacy"},
			schema.DropIndex{Table: "Songs", Name: "IX_Songs_Hash"},
			schema.AddColumn{Table: "Songs", Column: schema.Column{Name: "Duration", Type: "double", Default: schema.Default("0")}},
		},
	},

	/* e0 */ {
		name:        "test e0: should fail on unknown operation",
		data:        "- truncate_table: {name: Players}",
		expectedErr: files.ErrInvalidDocument,
	},
	/* e1 */ {
		name:        "test e1: should fail on unknown property",
		data:        "- drop_table: {name: Players, cascade: true}",
		expectedErr: files.ErrInvalidDocument,
	},
	/* e2 */ {
		name:        "test e2: should fail on two operations in one item",
		data:        "- {drop_table: {name: A}, drop_index: {table: B, name: C}}",
		expectedErr: files.ErrInvalidDocument,
	},
	/* e3 */ {
		name:        "test e3: should fail on missing property",
		data:        "- add_column: {table: Songs, column: {name: Duration}}",
		expectedErr: files.ErrInvalidDocument,
	},
	/* e4 */ {
		name:        "test e4: should fail on a document that is not a list",
		data:        "drop_table: {name: Players}",
		expectedErr: files.ErrInvalidDocument,
	},
	/* e5 */ {
		name:        "test e5: should fail on an empty item",
		data:        "- {}",
		expectedErr: files.ErrInvalidDocument,
	},
}

func TestReadMigration(t *testing.T) {
	t.Parallel()
	t.Logf("Should decode migration documents into schema operations.")

	mig := migration.Migration{ID: 20211224091800, Name: "add_players"}

	for _, test := range readMigrationTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			src, err := files.NewFilesSource(fstest.MapFS{
				"migrations/V20211224091800_add_players.up.yaml": {Data: []byte(test.data)},
			}, "migrations")
			require.NoError(t, err)

			ops, err := src.ReadMigration(mig, migration.Up)

			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedOps, ops)
		})
	}
}

func TestReadMigrationDirections(t *testing.T) {
	t.Parallel()

	src, err := files.NewFilesSource(fstest.MapFS{
		"migrations/V20211224091800_add_players.up.yaml":   {Data: []byte(playersUp)},
		"migrations/V20211224091800_add_players.down.yaml": {Data: []byte(playersDown)},
		"migrations/V20211224091900_backfill.up.yaml":      {Data: []byte("[]")},
	}, "migrations")
	require.NoError(t, err)

	available, err := src.GetAvailableMigrations()
	require.NoError(t, err)
	require.Len(t, available, 2)

	down, err := src.ReadMigration(available[0].Migration, migration.Down)
	require.NoError(t, err)
	assert.Equal(t, []schema.Operation{
		schema.DropForeignKey{Table: "Players", Name: "FK_Players_Clans_ClanId"},
		schema.DropTable{Name: "Players"},
	}, down)

	assert.False(t, available[1].CanUndo)
	_, err = src.ReadMigration(available[1].Migration, migration.Down)
	assert.ErrorIs(t, err, source.ErrMigrationNotFound)
}
