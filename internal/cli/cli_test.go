package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatleader/ledger"
	"github.com/beatleader/ledger/history"
	"github.com/beatleader/ledger/internal/config"
	"github.com/beatleader/ledger/internal/logger"
	"github.com/beatleader/ledger/migration"
)

const (
	scoreStatisticsID migration.ID = 20220512201514
	clansID           migration.ID = 20220601113012
)

func TestMain(m *testing.M) {
	logger.Init(io.Discard)
	pterm.DisableStyling()

	os.Exit(m.Run())
}

func newTestApp(t *testing.T, cfg config.Config) *app {
	t.Helper()

	if cfg.LogLevel == "" {
		cfg.LogLevel = "error"
	}
	if cfg.Source == "" {
		cfg.Source = config.SourceHistory
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = time.Second
	}

	a := newApp(cfg, io.Discard)
	t.Cleanup(func() {
		assert.NoError(t, a.close(context.Background()))
	})
	return a
}

// execute runs one command line against a. The driver stays open between
// calls, so the in-memory driver keeps its state.
func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	a.out = &out

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newTestApp(t, config.Config{Driver: config.DriverMemory}).rootCommand()

	assert.Equal(t, "ledger", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)

	for _, name := range []string{"status", "plan", "up", "down", "migrate", "apply", "revert", "verify"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	logLevel := root.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevel)
	assert.Equal(t, "error", logLevel.DefValue)
}

var parseTargetTestsTable = []struct { // nolint:gochecknoglobals
	name     string
	input    string
	expected migration.ID
	isErr    bool
}{
	/* s0 */ {
		name:     "test s0: migration id",
		input:    "20220504074802",
		expected: 20220504074802,
	},
	/* s1 */ {
		name:     "test s1: empty schema",
		input:    "0",
		expected: 0,
	},
	/* s2 */ {
		name:     "test s2: latest",
		input:    "latest",
		expected: migration.Latest,
	},
	/* s3 */ {
		name:     "test s3: latest is case insensitive",
		input:    "LATEST",
		expected: migration.Latest,
	},

	/* e0 */ {
		name:  "test e0: not a number",
		input: "yesterday",
		isErr: true,
	},
	/* e1 */ {
		name:  "test e1: negative",
		input: "-1",
		isErr: true,
	},
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	for _, test := range parseTargetTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			target, err := parseTarget(test.input)
			if test.isErr {
				assert.ErrorIs(t, err, ErrInvalidTarget)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, target)
		})
	}
}

func TestUpStatusAndMigrate(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverMemory})
	total := len(history.Records())

	out, err := execute(t, a, "up", "20220601113012")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 20220504074802 Initial")
	assert.Contains(t, out, "applied 20220601113012 Clans")
	assert.Contains(t, out, "3 migrations applied")

	out, err = execute(t, a, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "ScoreStatistics")
	assert.Contains(t, out, "DropLegacyModifiers")
	assert.Contains(t, out, "3 applied, 9 pending, 0 missing")

	out, err = execute(t, a, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "PlayerScoreStats")
	assert.Contains(t, out, "9 migrations to apply to reach latest")

	out, err = execute(t, a, "plan", "20220504074802")
	require.NoError(t, err)
	assert.Contains(t, out, "2 migrations to revert to reach 20220504074802")

	out, err = execute(t, a, "migrate", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "reverted 20220504074802 Initial")
	assert.Contains(t, out, "3 migrations reverted")

	out, err = execute(t, a, "plan", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to do")

	out, err = execute(t, a, "migrate", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	status, err := a.ledger.Status(context.Background(), a.drv)
	require.NoError(t, err)
	assert.Equal(t, uint(total), status.AppliedCount)
}

func TestDownRefusesIrreversibleMigration(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverMemory})

	_, err := execute(t, a, "up")
	require.NoError(t, err)

	_, err = execute(t, a, "down", "0")
	assert.ErrorIs(t, err, ledger.ErrIrreversible)

	_, err = execute(t, a, "down")
	assert.Error(t, err)
}

func TestApplyAndRevert(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverMemory})

	out, err := execute(t, a, "apply", "20220504074802")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 20220504074802 Initial")

	_, err = execute(t, a, "apply", "20220601113012")
	var outOfOrder *ledger.OutOfOrderError
	require.ErrorAs(t, err, &outOfOrder)
	assert.Equal(t, scoreStatisticsID, outOfOrder.Blocking)

	_, err = execute(t, a, "--allow-out-of-order", "apply", "20220601113012")
	require.NoError(t, err)

	out, err = execute(t, a, "revert", "20220601113012")
	require.NoError(t, err)
	assert.Contains(t, out, "reverted 20220601113012 Clans")

	applied, err := a.ledger.Applied(context.Background(), a.drv)
	require.NoError(t, err)
	assert.True(t, applied.Has(history.InitialID))
	assert.False(t, applied.Has(clansID))
}

func TestInvalidTarget(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverMemory})

	_, err := execute(t, a, "migrate", "soon")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestVerifyHistory(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverMemory})

	out, err := execute(t, a, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "SongLowerHashIndex")
	assert.Nil(t, a.drv, "verify must not open the database")

	_, err = execute(t, a, "verify", "--strict")
	assert.ErrorIs(t, err, ErrRoundTripViolations)
}

func TestMySQLNeedsDatabaseName(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverMySQL, DSN: "root@tcp(127.0.0.1:3306)/"})

	_, err := execute(t, a, "status")
	assert.ErrorIs(t, err, ErrMissingDatabaseName)
}

func TestInvalidConfiguration(t *testing.T) {
	a := newTestApp(t, config.Config{Driver: config.DriverSQLite})

	_, err := execute(t, a, "status")
	assert.ErrorIs(t, err, config.ErrMissingDSN)

	_, err = execute(t, a, "--driver", "memory", "--log-level", "loud", "status")
	assert.Error(t, err)
}

// ---

const playersUp = `
- create_table:
    name: Players
    columns:
      - name: Id
        type: string(64)
      - name: Name
        type: text
        nullable: true
    primary_key: [Id]
`

const playersDown = `
- drop_table:
    name: Players
`

const countryUp = `
- add_column:
    table: Players
    column:
      name: Country
      type: string(10)
      nullable: true
- create_index:
    table: Players
    name: IX_Players_Country
    columns: [Country]
`

const countryDown = `
- drop_index:
    table: Players
    name: IX_Players_Country
- drop_column:
    table: Players
    name: Country
`

func writeMigrations(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		"V20240101000000_players.up.yaml":   playersUp,
		"V20240101000000_players.down.yaml": playersDown,
		"V20240102000000_country.up.yaml":   countryUp,
		"V20240102000000_country.down.yaml": countryDown,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func TestFilesSourceOnSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=foreign_keys(1)"
	a := newTestApp(t, config.Config{
		Driver: config.DriverSQLite,
		DSN:    dsn,
		Source: writeMigrations(t),
	})

	out, err := execute(t, a, "up")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 20240101000000 players")
	assert.Contains(t, out, "applied 20240102000000 country")

	out, err = execute(t, a, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2 applied, 0 pending, 0 missing")

	out, err = execute(t, a, "down", "20240101000000")
	require.NoError(t, err)
	assert.Contains(t, out, "reverted 20240102000000 country")

	out, err = execute(t, a, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1 applied, 1 pending, 0 missing")

	out, err = execute(t, a, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "All migrations round-trip")
}

func TestMissingSourceDirectory(t *testing.T) {
	a := newTestApp(t, config.Config{
		Driver: config.DriverMemory,
		Source: filepath.Join(t.TempDir(), "missing"),
	})

	_, err := execute(t, a, "status")
	assert.Error(t, err)
}

const reusedIndexUp = `
- create_table:
    name: Songs
    columns:
      - name: Id
        type: string(64)
      - name: Hash
        type: text
    primary_key: [Id]
- create_index:
    table: Songs
    name: IX_Hash
    columns: [Hash]
- create_table:
    name: Maps
    columns:
      - name: Id
        type: string(64)
      - name: Hash
        type: text
    primary_key: [Id]
- create_index:
    table: Maps
    name: IX_Hash
    columns: [Hash]
`

const reusedIndexDown = `
- drop_table:
    name: Maps
- drop_table:
    name: Songs
`

func TestVerifyChecksIndexNamesForSQLite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V20240101000000_songs.up.yaml"), []byte(reusedIndexUp), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "V20240101000000_songs.down.yaml"), []byte(reusedIndexDown), 0o600))

	a := newTestApp(t, config.Config{Driver: config.DriverMemory, Source: dir})
	_, err := execute(t, a, "verify")
	require.NoError(t, err)

	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db")
	a = newTestApp(t, config.Config{Driver: config.DriverSQLite, DSN: dsn, Source: dir})
	out, err := execute(t, a, "verify")
	assert.ErrorIs(t, err, ErrRoundTripViolations)
	assert.Contains(t, out, "IX_Hash")
}
