package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrTableExists        = errors.New("table already exists")
	ErrTableNotFound      = errors.New("table does not exist")
	ErrTableInUse         = errors.New("table is referenced by a foreign key")
	ErrColumnExists       = errors.New("column already exists")
	ErrColumnNotFound     = errors.New("column does not exist")
	ErrColumnInUse        = errors.New("column is used by a key or an index")
	ErrIndexExists        = errors.New("index already exists")
	ErrIndexNotFound      = errors.New("index does not exist")
	ErrForeignKeyExists   = errors.New("foreign key already exists")
	ErrForeignKeyNotFound = errors.New("foreign key does not exist")
	ErrUnknownOperation   = errors.New("unknown schema operation")
)

type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

type ForeignKey struct {
	Name            string
	Column          string
	PrincipalTable  string
	PrincipalColumn string
}

type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	Indexes     map[string]Index
	ForeignKeys map[string]ForeignKey
}

func (t *Table) Column(name string) (Column, bool) {
	i := t.columnIndex(name)
	if i < 0 {
		return Column{}, false
	}
	return t.Columns[i], true
}

func (t *Table) columnIndex(name string) int {
	return slices.IndexFunc(t.Columns, func(c Column) bool { return c.Name == name })
}

// SortedIndexes returns the table indexes ordered by name.
func (t *Table) SortedIndexes() []Index {
	result := make([]Index, 0, len(t.Indexes))
	for _, idx := range t.Indexes {
		result = append(result, idx)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// SortedForeignKeys returns the table foreign keys ordered by name.
func (t *Table) SortedForeignKeys() []ForeignKey {
	result := make([]ForeignKey, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		result = append(result, fk)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (t *Table) clone() *Table {
	c := &Table{
		Name:        t.Name,
		Columns:     make([]Column, len(t.Columns)),
		PrimaryKey:  slices.Clone(t.PrimaryKey),
		Indexes:     make(map[string]Index, len(t.Indexes)),
		ForeignKeys: make(map[string]ForeignKey, len(t.ForeignKeys)),
	}
	for i, col := range t.Columns {
		c.Columns[i] = col.clone()
	}
	for name, idx := range t.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		c.Indexes[name] = idx
	}
	for name, fk := range t.ForeignKeys {
		c.ForeignKeys[name] = fk
	}
	return c
}

// usesColumn reports whether a key or an index of t covers column.
func (t *Table) usesColumn(column string) bool {
	if slices.Contains(t.PrimaryKey, column) {
		return true
	}
	for _, idx := range t.Indexes {
		if slices.Contains(idx.Columns, column) {
			return true
		}
	}
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return true
		}
	}
	return false
}

// ---

// Snapshot is an in-memory model of a schema. The zero value is not usable;
// create snapshots with NewSnapshot.
type Snapshot struct {
	tables map[string]*Table

	globalIndexNames bool
}

func NewSnapshot() *Snapshot {
	return &Snapshot{tables: make(map[string]*Table)}
}

func (s *Snapshot) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Tables returns copies of all tables ordered by name.
func (s *Snapshot) Tables() []*Table {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*Table, len(names))
	for i, name := range names {
		result[i] = s.tables[name].clone()
	}
	return result
}

// WithGlobalIndexNames makes index names unique across the whole schema
// rather than per table, as in SQLite. It returns s.
func (s *Snapshot) WithGlobalIndexNames() *Snapshot {
	s.globalIndexNames = true
	return s
}

func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{tables: make(map[string]*Table, len(s.tables)), globalIndexNames: s.globalIndexNames}
	for name, t := range s.tables {
		c.tables[name] = t.clone()
	}
	return c
}

// Equal reports whether both snapshots describe the same schema. Column
// order is not significant: a column dropped and re-added is equal to the
// original.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if len(s.tables) != len(other.tables) {
		return false
	}
	for name, t := range s.tables {
		o, ok := other.tables[name]
		if !ok || !tablesEqual(t, o) {
			return false
		}
	}
	return true
}

func tablesEqual(a, b *Table) bool {
	if len(a.Columns) != len(b.Columns) || !slices.Equal(a.PrimaryKey, b.PrimaryKey) {
		return false
	}
	for _, col := range a.Columns {
		other, ok := b.Column(col.Name)
		if !ok || !col.equal(other) {
			return false
		}
	}

	if len(a.Indexes) != len(b.Indexes) || len(a.ForeignKeys) != len(b.ForeignKeys) {
		return false
	}
	for name, idx := range a.Indexes {
		other, ok := b.Indexes[name]
		if !ok || idx.Unique != other.Unique || !slices.Equal(idx.Columns, other.Columns) {
			return false
		}
	}
	for name, fk := range a.ForeignKeys {
		if other, ok := b.ForeignKeys[name]; !ok || fk != other {
			return false
		}
	}
	return true
}

// ---

// Apply executes op against the snapshot. On error the snapshot is left
// unchanged.
func (s *Snapshot) Apply(op Operation) error {
	var err error

	switch op := op.(type) {
	case CreateTable:
		err = s.createTable(op)
	case DropTable:
		err = s.dropTable(op)
	case AddColumn:
		err = s.addColumn(op)
	case DropColumn:
		err = s.dropColumn(op)
	case AlterColumn:
		err = s.alterColumn(op)
	case RenameColumn:
		err = s.renameColumn(op)
	case RenameTable:
		err = s.renameTable(op)
	case CreateIndex:
		err = s.createIndex(op)
	case DropIndex:
		err = s.dropIndex(op)
	case AddForeignKey:
		err = s.addForeignKey(op)
	case DropForeignKey:
		err = s.dropForeignKey(op)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Snapshot) table(name string) (*Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

func (s *Snapshot) createTable(op CreateTable) error {
	if _, ok := s.tables[op.Name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, op.Name)
	}

	t := &Table{
		Name:        op.Name,
		Columns:     make([]Column, 0, len(op.Columns)),
		PrimaryKey:  slices.Clone(op.PrimaryKey),
		Indexes:     make(map[string]Index),
		ForeignKeys: make(map[string]ForeignKey),
	}
	for _, col := range op.Columns {
		if t.columnIndex(col.Name) >= 0 {
			return fmt.Errorf("%w: %s.%s", ErrColumnExists, op.Name, col.Name)
		}
		t.Columns = append(t.Columns, col.clone())
	}
	for _, key := range op.PrimaryKey {
		if t.columnIndex(key) < 0 {
			return fmt.Errorf("%w: primary key column %s.%s", ErrColumnNotFound, op.Name, key)
		}
	}

	s.tables[op.Name] = t
	return nil
}

func (s *Snapshot) dropTable(op DropTable) error {
	if _, err := s.table(op.Name); err != nil {
		return err
	}
	for _, other := range s.tables {
		if other.Name == op.Name {
			continue
		}
		for _, fk := range other.ForeignKeys {
			if fk.PrincipalTable == op.Name {
				return fmt.Errorf("%w: %s by %s", ErrTableInUse, op.Name, fk.Name)
			}
		}
	}

	delete(s.tables, op.Name)
	return nil
}

func (s *Snapshot) addColumn(op AddColumn) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if t.columnIndex(op.Column.Name) >= 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnExists, op.Table, op.Column.Name)
	}

	t.Columns = append(t.Columns, op.Column.clone())
	return nil
}

func (s *Snapshot) dropColumn(op DropColumn) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	i := t.columnIndex(op.Name)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, op.Name)
	}
	if t.usesColumn(op.Name) || s.isPrincipalColumn(op.Table, op.Name) {
		return fmt.Errorf("%w: %s.%s", ErrColumnInUse, op.Table, op.Name)
	}

	t.Columns = slices.Delete(t.Columns, i, i+1)
	return nil
}

func (s *Snapshot) isPrincipalColumn(table, column string) bool {
	for _, t := range s.tables {
		for _, fk := range t.ForeignKeys {
			if fk.PrincipalTable == table && fk.PrincipalColumn == column {
				return true
			}
		}
	}
	return false
}

func (s *Snapshot) alterColumn(op AlterColumn) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	i := t.columnIndex(op.Name)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, op.Name)
	}

	t.Columns[i] = op.Column().clone()
	return nil
}

func (s *Snapshot) renameColumn(op RenameColumn) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	i := t.columnIndex(op.OldName)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, op.OldName)
	}
	if t.columnIndex(op.NewName) >= 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnExists, op.Table, op.NewName)
	}

	rename := func(name string) string {
		if name == op.OldName {
			return op.NewName
		}
		return name
	}

	t.Columns[i].Name = op.NewName
	for k, key := range t.PrimaryKey {
		t.PrimaryKey[k] = rename(key)
	}
	for name, idx := range t.Indexes {
		for k, col := range idx.Columns {
			idx.Columns[k] = rename(col)
		}
		t.Indexes[name] = idx
	}
	for name, fk := range t.ForeignKeys {
		fk.Column = rename(fk.Column)
		t.ForeignKeys[name] = fk
	}
	for _, other := range s.tables {
		for name, fk := range other.ForeignKeys {
			if fk.PrincipalTable == op.Table {
				fk.PrincipalColumn = rename(fk.PrincipalColumn)
				other.ForeignKeys[name] = fk
			}
		}
	}
	return nil
}

func (s *Snapshot) renameTable(op RenameTable) error {
	t, err := s.table(op.OldName)
	if err != nil {
		return err
	}
	if _, ok := s.tables[op.NewName]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, op.NewName)
	}

	delete(s.tables, op.OldName)
	t.Name = op.NewName
	s.tables[op.NewName] = t

	for _, other := range s.tables {
		for name, fk := range other.ForeignKeys {
			if fk.PrincipalTable == op.OldName {
				fk.PrincipalTable = op.NewName
				other.ForeignKeys[name] = fk
			}
		}
	}
	return nil
}

func (s *Snapshot) createIndex(op CreateIndex) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.Indexes[op.Name]; ok {
		return fmt.Errorf("%w: %s", ErrIndexExists, op.Name)
	}
	if s.globalIndexNames {
		for _, other := range s.tables {
			if _, ok := other.Indexes[op.Name]; ok {
				return fmt.Errorf("%w: %s on %s", ErrIndexExists, op.Name, other.Name)
			}
		}
	}
	for _, col := range op.Columns {
		if t.columnIndex(col) < 0 {
			return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, col)
		}
	}

	t.Indexes[op.Name] = Index{Name: op.Name, Columns: slices.Clone(op.Columns), Unique: op.Unique}
	return nil
}

func (s *Snapshot) dropIndex(op DropIndex) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.Indexes[op.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, op.Name)
	}

	delete(t.Indexes, op.Name)
	return nil
}

func (s *Snapshot) addForeignKey(op AddForeignKey) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if t.columnIndex(op.Column) < 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, op.Column)
	}
	principal, err := s.table(op.PrincipalTable)
	if err != nil {
		return err
	}
	if principal.columnIndex(op.PrincipalColumn) < 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.PrincipalTable, op.PrincipalColumn)
	}

	name := op.ConstraintName()
	if _, ok := t.ForeignKeys[name]; ok {
		return fmt.Errorf("%w: %s", ErrForeignKeyExists, name)
	}

	t.ForeignKeys[name] = ForeignKey{
		Name:            name,
		Column:          op.Column,
		PrincipalTable:  op.PrincipalTable,
		PrincipalColumn: op.PrincipalColumn,
	}
	return nil
}

func (s *Snapshot) dropForeignKey(op DropForeignKey) error {
	t, err := s.table(op.Table)
	if err != nil {
		return err
	}
	if _, ok := t.ForeignKeys[op.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrForeignKeyNotFound, op.Name)
	}

	delete(t.ForeignKeys, op.Name)
	return nil
}
