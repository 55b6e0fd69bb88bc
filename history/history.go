// Package history is the catalog of BeatLeader schema migrations.
package history

import (
	"github.com/beatleader/ledger"
	"github.com/beatleader/ledger/migration"
	"github.com/beatleader/ledger/schema"
)

// Ids of records referred to outside the catalog.
const (
	InitialID             migration.ID = 20220504074802
	SongLowerHashIndexID  migration.ID = 20230519143000
	DropLegacyModifiersID migration.ID = 20230815093000
)

// Records returns the catalog ascending by id. Every call builds new
// records.
func Records() []migration.Record {
	return []migration.Record{
		initial(),
		scoreStatistics(),
		clans(),
		scoreTimesetType(),
		playerPlatforms(),
		cronTimestamps(),
		playerScoreStats(),
		clanPlayersTable(),
		leaderboardStars(),
		songLowerHashIndex(),
		playerCountryLength(),
		dropLegacyModifiers(),
	}
}

// Registry returns a new registry holding the catalog.
func Registry() *ledger.Registry {
	return ledger.NewRegistry().MustRegister(Records()...)
}

// KnownViolations lists records whose down operations are known not to
// undo their up operations. SongLowerHashIndex had its index creation
// disabled while its down operations still drop the index; it is kept as
// authored.
func KnownViolations() []migration.ID {
	return []migration.ID{SongLowerHashIndexID}
}

// ---

func column(name, typ string) schema.Column {
	return schema.Column{Name: name, Type: typ}
}

func nullable(name, typ string) schema.Column {
	return schema.Column{Name: name, Type: typ, Nullable: true}
}

func withDefault(name, typ, expr string) schema.Column {
	return schema.Column{Name: name, Type: typ, Default: schema.Default(expr)}
}

func record(id migration.ID, name string, up, down []schema.Operation) migration.Record {
	return migration.Record{
		Migration: migration.Migration{ID: id, Name: name},
		Up:        up,
		Down:      down,
	}
}
