// Package schema describes dialect-neutral schema operations and an
// in-memory model of the schema they act upon.
package schema

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindCreateTable    Kind = "create_table"
	KindDropTable      Kind = "drop_table"
	KindAddColumn      Kind = "add_column"
	KindDropColumn     Kind = "drop_column"
	KindAlterColumn    Kind = "alter_column"
	KindRenameColumn   Kind = "rename_column"
	KindRenameTable    Kind = "rename_table"
	KindCreateIndex    Kind = "create_index"
	KindDropIndex      Kind = "drop_index"
	KindAddForeignKey  Kind = "add_foreign_key"
	KindDropForeignKey Kind = "drop_foreign_key"
)

// Operation is one declarative schema change. The set of implementations is
// closed; consumers switch on the concrete type.
type Operation interface {
	Kind() Kind
	String() string

	operation()
}

// Column is a column definition. Default holds a raw SQL expression and is
// nil when the column has no default.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Default  *string
}

// Default returns a pointer to expr for use in Column.Default.
func Default(expr string) *string {
	return &expr
}

func (c Column) clone() Column {
	if c.Default != nil {
		c.Default = Default(*c.Default)
	}
	return c
}

func (c Column) equal(other Column) bool {
	if c.Name != other.Name || c.Type != other.Type || c.Nullable != other.Nullable {
		return false
	}
	if c.Default == nil || other.Default == nil {
		return c.Default == nil && other.Default == nil
	}
	return *c.Default == *other.Default
}

// ---

type CreateTable struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

type DropTable struct {
	Name string
}

type AddColumn struct {
	Table  string
	Column Column
}

type DropColumn struct {
	Table string
	Name  string
}

// AlterColumn changes a column definition. The Old* fields describe the
// definition being replaced so that the change can be reverted.
type AlterColumn struct {
	Table    string
	Name     string
	Type     string
	Nullable bool
	Default  *string

	OldType     string
	OldNullable bool
	OldDefault  *string
}

type RenameColumn struct {
	Table   string
	OldName string
	NewName string
}

type RenameTable struct {
	OldName string
	NewName string
}

type CreateIndex struct {
	Table   string
	Name    string
	Columns []string
	Unique  bool
}

type DropIndex struct {
	Table string
	Name  string
}

// AddForeignKey references PrincipalTable.PrincipalColumn from Table.Column.
// An empty Name is replaced with ForeignKeyName.
type AddForeignKey struct {
	Table           string
	Column          string
	PrincipalTable  string
	PrincipalColumn string
	Name            string
}

type DropForeignKey struct {
	Table string
	Name  string
}

// ForeignKeyName is the default constraint name for a single-column
// foreign key.
func ForeignKeyName(table, principal, column string) string {
	return fmt.Sprintf("FK_%s_%s_%s", table, principal, column)
}

// ConstraintName returns the effective constraint name.
func (op AddForeignKey) ConstraintName() string {
	if op.Name != "" {
		return op.Name
	}
	return ForeignKeyName(op.Table, op.PrincipalTable, op.Column)
}

// AlterColumn returns the column definition the operation produces.
func (op AlterColumn) Column() Column {
	return Column{Name: op.Name, Type: op.Type, Nullable: op.Nullable, Default: op.Default}
}

// ---

func (CreateTable) Kind() Kind    { return KindCreateTable }
func (DropTable) Kind() Kind      { return KindDropTable }
func (AddColumn) Kind() Kind      { return KindAddColumn }
func (DropColumn) Kind() Kind     { return KindDropColumn }
func (AlterColumn) Kind() Kind    { return KindAlterColumn }
func (RenameColumn) Kind() Kind   { return KindRenameColumn }
func (RenameTable) Kind() Kind    { return KindRenameTable }
func (CreateIndex) Kind() Kind    { return KindCreateIndex }
func (DropIndex) Kind() Kind      { return KindDropIndex }
func (AddForeignKey) Kind() Kind  { return KindAddForeignKey }
func (DropForeignKey) Kind() Kind { return KindDropForeignKey }

func (CreateTable) operation()    {}
func (DropTable) operation()      {}
func (AddColumn) operation()      {}
func (DropColumn) operation()     {}
func (AlterColumn) operation()    {}
func (RenameColumn) operation()   {}
func (RenameTable) operation()    {}
func (CreateIndex) operation()    {}
func (DropIndex) operation()      {}
func (AddForeignKey) operation()  {}
func (DropForeignKey) operation() {}

func (op CreateTable) String() string {
	names := make([]string, len(op.Columns))
	for i, c := range op.Columns {
		names[i] = c.Name
	}
	return fmt.Sprintf("%s %s(%s)", op.Kind(), op.Name, strings.Join(names, ", "))
}

func (op DropTable) String() string {
	return fmt.Sprintf("%s %s", op.Kind(), op.Name)
}

func (op AddColumn) String() string {
	return fmt.Sprintf("%s %s.%s %s", op.Kind(), op.Table, op.Column.Name, op.Column.Type)
}

func (op DropColumn) String() string {
	return fmt.Sprintf("%s %s.%s", op.Kind(), op.Table, op.Name)
}

func (op AlterColumn) String() string {
	return fmt.Sprintf("%s %s.%s %s", op.Kind(), op.Table, op.Name, op.Type)
}

func (op RenameColumn) String() string {
	return fmt.Sprintf("%s %s.%s -> %s", op.Kind(), op.Table, op.OldName, op.NewName)
}

func (op RenameTable) String() string {
	return fmt.Sprintf("%s %s -> %s", op.Kind(), op.OldName, op.NewName)
}

func (op CreateIndex) String() string {
	return fmt.Sprintf("%s %s on %s(%s)", op.Kind(), op.Name, op.Table, strings.Join(op.Columns, ", "))
}

func (op DropIndex) String() string {
	return fmt.Sprintf("%s %s on %s", op.Kind(), op.Name, op.Table)
}

func (op AddForeignKey) String() string {
	return fmt.Sprintf("%s %s %s.%s -> %s.%s",
		op.Kind(), op.ConstraintName(), op.Table, op.Column, op.PrincipalTable, op.PrincipalColumn)
}

func (op DropForeignKey) String() string {
	return fmt.Sprintf("%s %s on %s", op.Kind(), op.Name, op.Table)
}
