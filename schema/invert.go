package schema

import (
	"fmt"
	"slices"
)

// Invert derives the operations that undo ops. before is the schema the
// operations are applied to; it is needed to restore what ops drop. The
// result is ordered for execution: the inverse of the last operation comes
// first.
func Invert(ops []Operation, before *Snapshot) ([]Operation, error) {
	state := before.Clone()
	steps := make([][]Operation, 0, len(ops))

	for i, op := range ops {
		inverse, err := invertOne(op, state)
		if err != nil {
			return nil, fmt.Errorf("operation #%d (%s): %w", i, op, err)
		}
		if err := state.Apply(op); err != nil {
			return nil, fmt.Errorf("operation #%d: %w", i, err)
		}
		steps = append(steps, inverse)
	}

	result := make([]Operation, 0, len(ops))
	for i := len(steps) - 1; i >= 0; i-- {
		result = append(result, steps[i]...)
	}
	return result, nil
}

func invertOne(op Operation, state *Snapshot) ([]Operation, error) {
	switch op := op.(type) {
	case CreateTable:
		return []Operation{DropTable{Name: op.Name}}, nil

	case DropTable:
		t, err := state.table(op.Name)
		if err != nil {
			return nil, err
		}
		return recreateTable(t), nil

	case AddColumn:
		return []Operation{DropColumn{Table: op.Table, Name: op.Column.Name}}, nil

	case DropColumn:
		t, err := state.table(op.Table)
		if err != nil {
			return nil, err
		}
		col, ok := t.Column(op.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, op.Name)
		}
		return []Operation{AddColumn{Table: op.Table, Column: col.clone()}}, nil

	case AlterColumn:
		t, err := state.table(op.Table)
		if err != nil {
			return nil, err
		}
		col, ok := t.Column(op.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, op.Table, op.Name)
		}
		return []Operation{AlterColumn{
			Table:       op.Table,
			Name:        op.Name,
			Type:        col.Type,
			Nullable:    col.Nullable,
			Default:     col.clone().Default,
			OldType:     op.Type,
			OldNullable: op.Nullable,
			OldDefault:  op.Default,
		}}, nil

	case RenameColumn:
		return []Operation{RenameColumn{Table: op.Table, OldName: op.NewName, NewName: op.OldName}}, nil

	case RenameTable:
		return []Operation{RenameTable{OldName: op.NewName, NewName: op.OldName}}, nil

	case CreateIndex:
		return []Operation{DropIndex{Table: op.Table, Name: op.Name}}, nil

	case DropIndex:
		t, err := state.table(op.Table)
		if err != nil {
			return nil, err
		}
		idx, ok := t.Indexes[op.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, op.Name)
		}
		return []Operation{CreateIndex{
			Table:   op.Table,
			Name:    idx.Name,
			Columns: slices.Clone(idx.Columns),
			Unique:  idx.Unique,
		}}, nil

	case AddForeignKey:
		return []Operation{DropForeignKey{Table: op.Table, Name: op.ConstraintName()}}, nil

	case DropForeignKey:
		t, err := state.table(op.Table)
		if err != nil {
			return nil, err
		}
		fk, ok := t.ForeignKeys[op.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrForeignKeyNotFound, op.Name)
		}
		return []Operation{foreignKeyOperation(t.Name, fk)}, nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnknownOperation, op)
}

// recreateTable returns the operations that build t from scratch.
func recreateTable(t *Table) []Operation {
	columns := make([]Column, len(t.Columns))
	for i, col := range t.Columns {
		columns[i] = col.clone()
	}

	ops := []Operation{CreateTable{Name: t.Name, Columns: columns, PrimaryKey: slices.Clone(t.PrimaryKey)}}
	for _, idx := range t.SortedIndexes() {
		ops = append(ops, CreateIndex{Table: t.Name, Name: idx.Name, Columns: slices.Clone(idx.Columns), Unique: idx.Unique})
	}
	for _, fk := range t.SortedForeignKeys() {
		ops = append(ops, foreignKeyOperation(t.Name, fk))
	}
	return ops
}

func foreignKeyOperation(table string, fk ForeignKey) AddForeignKey {
	return AddForeignKey{
		Table:           table,
		Column:          fk.Column,
		PrincipalTable:  fk.PrincipalTable,
		PrincipalColumn: fk.PrincipalColumn,
		Name:            fk.Name,
	}
}
