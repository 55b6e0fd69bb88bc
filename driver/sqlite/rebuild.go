package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/schema"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type indexDef struct {
	name    string
	columns []string
	unique  bool
	sql     string
}

// tableDef is a table as SQLite reports it. Foreign keys carry the default
// constraint name since SQLite does not keep constraint names.
type tableDef struct {
	name        string
	columns     []schema.Column
	primaryKey  []string
	foreignKeys []schema.ForeignKey
	indexes     []indexDef
}

func readTable(ctx context.Context, q querier, name string) (*tableDef, error) {
	def := &tableDef{name: name}

	if err := readColumns(ctx, q, def); err != nil {
		return nil, err
	}
	if len(def.columns) == 0 {
		return nil, fmt.Errorf("%w: %s", schema.ErrTableNotFound, name)
	}
	if err := readForeignKeys(ctx, q, def); err != nil {
		return nil, err
	}
	if err := readIndexes(ctx, q, def); err != nil {
		return nil, err
	}

	return def, nil
}

func readColumns(ctx context.Context, q querier, def *tableDef) error {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, def.name)
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", def.name, err)
	}
	defer rows.Close()

	type pkColumn struct {
		name string
		pos  int
	}
	var pk []pkColumn

	for rows.Next() {
		var col schema.Column
		var notNull, pkPos int
		var dflt sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &notNull, &dflt, &pkPos); err != nil {
			return fmt.Errorf("failed to read columns of %s: %w", def.name, err)
		}
		col.Nullable = notNull == 0
		if dflt.Valid {
			col.Default = schema.Default(dflt.String)
		}
		if pkPos > 0 {
			pk = append(pk, pkColumn{name: col.Name, pos: pkPos})
		}

		def.columns = append(def.columns, col)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", def.name, err)
	}

	slices.SortFunc(pk, func(a, b pkColumn) int { return a.pos - b.pos })
	for _, c := range pk {
		def.primaryKey = append(def.primaryKey, c.name)
	}

	return nil
}

func readForeignKeys(ctx context.Context, q querier, def *tableDef) error {
	rows, err := q.QueryContext(ctx,
		`SELECT "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, def.name)
	if err != nil {
		return fmt.Errorf("failed to read foreign keys of %s: %w", def.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var fk schema.ForeignKey
		var to sql.NullString

		if err := rows.Scan(&fk.PrincipalTable, &fk.Column, &to); err != nil {
			return fmt.Errorf("failed to read foreign keys of %s: %w", def.name, err)
		}
		fk.PrincipalColumn = to.String
		fk.Name = schema.ForeignKeyName(def.name, fk.PrincipalTable, fk.Column)

		def.foreignKeys = append(def.foreignKeys, fk)
	}

	return rows.Err()
}

func readIndexes(ctx context.Context, q querier, def *tableDef) error {
	rows, err := q.QueryContext(ctx,
		`SELECT name, "unique", sql FROM pragma_index_list(?) JOIN sqlite_master USING (name) `+
			`WHERE origin = 'c' AND type = 'index' ORDER BY name`, def.name)
	if err != nil {
		return fmt.Errorf("failed to read indexes of %s: %w", def.name, err)
	}

	var indexes []indexDef
	for rows.Next() {
		var idx indexDef
		if err := rows.Scan(&idx.name, &idx.unique, &idx.sql); err != nil {
			rows.Close()
			return fmt.Errorf("failed to read indexes of %s: %w", def.name, err)
		}
		indexes = append(indexes, idx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read indexes of %s: %w", def.name, err)
	}

	for i := range indexes {
		columns, err := readIndexColumns(ctx, q, indexes[i].name)
		if err != nil {
			return err
		}
		indexes[i].columns = columns
	}

	def.indexes = indexes
	return nil
}

func readIndexColumns(ctx context.Context, q querier, index string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to read index %s: %w", index, err)
		}
		columns = append(columns, name)
	}

	return columns, rows.Err()
}

// ---

// rebuild recreates a table after applying op to its definition, following
// the procedure SQLite documents for schema changes ALTER TABLE cannot make:
// create the new table, copy rows, drop the old one, rename, recreate indexes.
func rebuild(ctx context.Context, q querier, op schema.Operation) ([]string, error) {
	table := rebuiltTable(op)

	def, err := readTable(ctx, q, table)
	if err != nil {
		return nil, err
	}
	if err := alterDefinition(def, op); err != nil {
		return nil, err
	}

	tmp := "_ledger_rebuild_" + table
	names := make([]string, len(def.columns))
	for i, col := range def.columns {
		names[i] = col.Name
	}

	stmts := []string{
		createTable(tmp, *def),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			quoteIdent(tmp), quoteList(names), quoteList(names), quoteIdent(table)),
		"DROP TABLE " + quoteIdent(table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(tmp), quoteIdent(table)),
	}
	for _, idx := range def.indexes {
		stmts = append(stmts, idx.sql)
	}

	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return stmts, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	return stmts, nil
}

func rebuiltTable(op schema.Operation) string {
	switch op := op.(type) {
	case schema.AlterColumn:
		return op.Table
	case schema.AddForeignKey:
		return op.Table
	case schema.DropForeignKey:
		return op.Table
	}
	return ""
}

func alterDefinition(def *tableDef, op schema.Operation) error {
	switch op := op.(type) {
	case schema.AlterColumn:
		i := slices.IndexFunc(def.columns, func(c schema.Column) bool { return c.Name == op.Name })
		if i < 0 {
			return fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, op.Table, op.Name)
		}
		def.columns[i] = op.Column()
		return nil

	case schema.AddForeignKey:
		name := schema.ForeignKeyName(op.Table, op.PrincipalTable, op.Column)
		if op.Name != "" && op.Name != name {
			return fmt.Errorf("%w: constraint names other than %s cannot be kept", driver.ErrUnsupportedOperation, name)
		}
		for _, fk := range def.foreignKeys {
			if fk.Name == name {
				return fmt.Errorf("%w: %s", schema.ErrForeignKeyExists, name)
			}
		}
		def.foreignKeys = append(def.foreignKeys, schema.ForeignKey{
			Name:            name,
			Column:          op.Column,
			PrincipalTable:  op.PrincipalTable,
			PrincipalColumn: op.PrincipalColumn,
		})
		return nil

	case schema.DropForeignKey:
		i := slices.IndexFunc(def.foreignKeys, func(fk schema.ForeignKey) bool { return fk.Name == op.Name })
		if i < 0 {
			return fmt.Errorf("%w: %s on %s", schema.ErrForeignKeyNotFound, op.Name, op.Table)
		}
		def.foreignKeys = slices.Delete(def.foreignKeys, i, i+1)
		return nil
	}

	return fmt.Errorf("%w: %T", driver.ErrUnsupportedOperation, op)
}

// ---

// inspect reads every user table into a snapshot. Column types are reported
// as declared in SQLite.
func inspect(ctx context.Context, q querier, skip ...string) (*schema.Snapshot, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		if !slices.Contains(skip, name) {
			names = append(names, name)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	defs := make([]*tableDef, 0, len(names))
	for _, name := range names {
		def, err := readTable(ctx, q, name)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	snapshot := schema.NewSnapshot()
	var ops []schema.Operation
	for _, def := range defs {
		ops = append(ops, schema.CreateTable{Name: def.name, Columns: def.columns, PrimaryKey: def.primaryKey})
		for _, idx := range def.indexes {
			ops = append(ops, schema.CreateIndex{Table: def.name, Name: idx.name, Columns: idx.columns, Unique: idx.unique})
		}
	}
	for _, def := range defs {
		for _, fk := range def.foreignKeys {
			ops = append(ops, schema.AddForeignKey{
				Table:           def.name,
				Column:          fk.Column,
				PrincipalTable:  fk.PrincipalTable,
				PrincipalColumn: fk.PrincipalColumn,
			})
		}
	}

	for _, op := range ops {
		if err := snapshot.Apply(op); err != nil {
			return nil, fmt.Errorf("failed to model %s: %w", op, err)
		}
	}

	return snapshot, nil
}
