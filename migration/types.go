package migration

import (
	"math"
	"slices"
	"time"

	"github.com/beatleader/ledger/schema"
)

type Direction rune

const (
	Down Direction = 'd'
	Up   Direction = 'u'
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}

// ---

const IDBits = 64

// ID identifies a migration. By convention it is the creation timestamp
// formatted as YYYYMMDDhhmmss, which keeps ids totally ordered.
type ID uint64

// Latest is a target that lies past every authored record.
const Latest ID = math.MaxUint64

type Migration struct {
	ID   ID
	Name string
}

// Record is one versioned schema change together with its inverse.
// Records are immutable once registered.
type Record struct {
	Migration
	Up   []schema.Operation
	Down []schema.Operation

	// Irreversible is set for records authored without a down script.
	Irreversible bool
}

func (r Record) Operations(dir Direction) []schema.Operation {
	if dir == Down {
		return r.Down
	}
	return r.Up
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// ---

// Log is one row of the append-only migrations log. An Up row marks the
// migration applied and a Down row unmarks it.
type Log struct {
	Migration
	Direction
	RunID     string
	AppliedAt time.Time
}

// ---

type Description struct {
	Migration
	CanUndo bool
}

type State struct {
	Description
	Status    Status
	AppliedAt time.Time
}

// ---

// AppliedSet is the set of migrations currently applied to a database.
type AppliedSet map[ID]struct{}

func NewAppliedSet(ids ...ID) AppliedSet {
	set := make(AppliedSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s AppliedSet) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Max returns the frontier of the set: the highest applied id, or 0.
func (s AppliedSet) Max() ID {
	var frontier ID
	for id := range s {
		if id > frontier {
			frontier = id
		}
	}
	return frontier
}

func (s AppliedSet) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Fold replays a migrations log in order and returns the latest entry per
// migration id.
func Fold(logs []Log) map[ID]Log {
	latest := make(map[ID]Log, len(logs))
	for _, entry := range logs {
		latest[entry.ID] = entry
	}
	return latest
}

// AppliedFromLog returns the ids whose latest log entry is an Up entry.
func AppliedFromLog(logs []Log) AppliedSet {
	set := make(AppliedSet)
	for id, entry := range Fold(logs) {
		if entry.Direction == Up {
			set[id] = struct{}{}
		}
	}
	return set
}
