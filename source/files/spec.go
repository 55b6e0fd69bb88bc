package files

import (
	"errors"
	"fmt"

	"github.com/beatleader/ledger/schema"
)

var (
	errNoOperation     = errors.New("no operation given")
	errManyOperations  = errors.New("more than one operation given in a single item")
	errMissingProperty = errors.New("required property is missing")
)

type columnSpec struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Nullable bool    `yaml:"nullable"`
	Default  *string `yaml:"default"`
}

func (c columnSpec) column() schema.Column {
	return schema.Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable, Default: c.Default}
}

type createTableSpec struct {
	Name       string       `yaml:"name"`
	Columns    []columnSpec `yaml:"columns"`
	PrimaryKey []string     `yaml:"primary_key"`
}

type tableSpec struct {
	Name string `yaml:"name"`
}

type addColumnSpec struct {
	Table  string     `yaml:"table"`
	Column columnSpec `yaml:"column"`
}

type tableItemSpec struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type alterColumnSpec struct {
	Table       string  `yaml:"table"`
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	Nullable    bool    `yaml:"nullable"`
	Default     *string `yaml:"default"`
	OldType     string  `yaml:"old_type"`
	OldNullable bool    `yaml:"old_nullable"`
	OldDefault  *string `yaml:"old_default"`
}

type renameColumnSpec struct {
	Table   string `yaml:"table"`
	OldName string `yaml:"old_name"`
	NewName string `yaml:"new_name"`
}

type renameTableSpec struct {
	OldName string `yaml:"old_name"`
	NewName string `yaml:"new_name"`
}

type createIndexSpec struct {
	Table   string   `yaml:"table"`
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

type addForeignKeySpec struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	PrincipalTable  string `yaml:"principal_table"`
	PrincipalColumn string `yaml:"principal_column"`
	Name            string `yaml:"name"`
}

// operationSpec is one item of a migration document. Exactly one field is
// set.
type operationSpec struct {
	CreateTable    *createTableSpec   `yaml:"create_table"`
	DropTable      *tableSpec         `yaml:"drop_table"`
	AddColumn      *addColumnSpec     `yaml:"add_column"`
	DropColumn     *tableItemSpec     `yaml:"drop_column"`
	AlterColumn    *alterColumnSpec   `yaml:"alter_column"`
	RenameColumn   *renameColumnSpec  `yaml:"rename_column"`
	RenameTable    *renameTableSpec   `yaml:"rename_table"`
	CreateIndex    *createIndexSpec   `yaml:"create_index"`
	DropIndex      *tableItemSpec     `yaml:"drop_index"`
	AddForeignKey  *addForeignKeySpec `yaml:"add_foreign_key"`
	DropForeignKey *tableItemSpec     `yaml:"drop_foreign_key"`
}

func (s operationSpec) operation() (schema.Operation, error) { //nolint:cyclop,funlen
	var ops []schema.Operation

	if spec := s.CreateTable; spec != nil {
		columns := make([]schema.Column, len(spec.Columns))
		for i, c := range spec.Columns {
			columns[i] = c.column()
		}
		ops = append(ops, schema.CreateTable{Name: spec.Name, Columns: columns, PrimaryKey: spec.PrimaryKey})
	}
	if spec := s.DropTable; spec != nil {
		ops = append(ops, schema.DropTable{Name: spec.Name})
	}
	if spec := s.AddColumn; spec != nil {
		ops = append(ops, schema.AddColumn{Table: spec.Table, Column: spec.Column.column()})
	}
	if spec := s.DropColumn; spec != nil {
		ops = append(ops, schema.DropColumn{Table: spec.Table, Name: spec.Name})
	}
	if spec := s.AlterColumn; spec != nil {
		ops = append(ops, schema.AlterColumn{
			Table:       spec.Table,
			Name:        spec.Name,
			Type:        spec.Type,
			Nullable:    spec.Nullable,
			Default:     spec.Default,
			OldType:     spec.OldType,
			OldNullable: spec.OldNullable,
			OldDefault:  spec.OldDefault,
		})
	}
	if spec := s.RenameColumn; spec != nil {
		ops = append(ops, schema.RenameColumn{Table: spec.Table, OldName: spec.OldName, NewName: spec.NewName})
	}
	if spec := s.RenameTable; spec != nil {
		ops = append(ops, schema.RenameTable{OldName: spec.OldName, NewName: spec.NewName})
	}
	if spec := s.CreateIndex; spec != nil {
		ops = append(ops, schema.CreateIndex{Table: spec.Table, Name: spec.Name, Columns: spec.Columns, Unique: spec.Unique})
	}
	if spec := s.DropIndex; spec != nil {
		ops = append(ops, schema.DropIndex{Table: spec.Table, Name: spec.Name})
	}
	if spec := s.AddForeignKey; spec != nil {
		ops = append(ops, schema.AddForeignKey{
			Table:           spec.Table,
			Column:          spec.Column,
			PrincipalTable:  spec.PrincipalTable,
			PrincipalColumn: spec.PrincipalColumn,
			Name:            spec.Name,
		})
	}
	if spec := s.DropForeignKey; spec != nil {
		ops = append(ops, schema.DropForeignKey{Table: spec.Table, Name: spec.Name})
	}

	switch len(ops) {
	case 0:
		return nil, errNoOperation
	case 1:
		return ops[0], validate(ops[0])
	default:
		return nil, errManyOperations
	}
}

// validate checks the properties every operation of a kind needs.
func validate(op schema.Operation) error {
	var missing string

	switch op := op.(type) {
	case schema.CreateTable:
		switch {
		case op.Name == "":
			missing = "name"
		case len(op.Columns) == 0:
			missing = "columns"
		}
		for _, c := range op.Columns {
			if c.Name == "" || c.Type == "" {
				missing = "columns[].name and columns[].type"
			}
		}
	case schema.DropTable:
		if op.Name == "" {
			missing = "name"
		}
	case schema.AddColumn:
		if op.Table == "" || op.Column.Name == "" || op.Column.Type == "" {
			missing = "table, column.name and column.type"
		}
	case schema.DropColumn, schema.DropIndex, schema.DropForeignKey:
		table, name := tableItem(op)
		if table == "" || name == "" {
			missing = "table and name"
		}
	case schema.AlterColumn:
		if op.Table == "" || op.Name == "" || op.Type == "" || op.OldType == "" {
			missing = "table, name, type and old_type"
		}
	case schema.RenameColumn:
		if op.Table == "" || op.OldName == "" || op.NewName == "" {
			missing = "table, old_name and new_name"
		}
	case schema.RenameTable:
		if op.OldName == "" || op.NewName == "" {
			missing = "old_name and new_name"
		}
	case schema.CreateIndex:
		if op.Table == "" || op.Name == "" || len(op.Columns) == 0 {
			missing = "table, name and columns"
		}
	case schema.AddForeignKey:
		if op.Table == "" || op.Column == "" || op.PrincipalTable == "" || op.PrincipalColumn == "" {
			missing = "table, column, principal_table and principal_column"
		}
	}

	if missing != "" {
		return fmt.Errorf("%s: %w: %s", op.Kind(), errMissingProperty, missing)
	}
	return nil
}

func tableItem(op schema.Operation) (table, name string) {
	switch op := op.(type) {
	case schema.DropColumn:
		return op.Table, op.Name
	case schema.DropIndex:
		return op.Table, op.Name
	case schema.DropForeignKey:
		return op.Table, op.Name
	}
	return "", ""
}
