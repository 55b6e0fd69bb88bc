package sqlite

import (
	"fmt"
	"strings"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/schema"
)

// render returns the statement for op, or ok=false when op needs the table
// to be rebuilt.
func render(op schema.Operation) (stmt string, ok bool, err error) { //nolint:cyclop
	switch op := op.(type) {
	case schema.CreateTable:
		return createTable(op.Name, tableDef{
			name:       op.Name,
			columns:    op.Columns,
			primaryKey: op.PrimaryKey,
		}), true, nil

	case schema.DropTable:
		return "DROP TABLE " + quoteIdent(op.Name), true, nil

	case schema.AddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(op.Table), column(op.Column)), true, nil

	case schema.DropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(op.Table), quoteIdent(op.Name)), true, nil

	case schema.RenameColumn:
		return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			quoteIdent(op.Table), quoteIdent(op.OldName), quoteIdent(op.NewName)), true, nil

	case schema.RenameTable:
		return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(op.OldName), quoteIdent(op.NewName)), true, nil

	case schema.CreateIndex:
		unique := ""
		if op.Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
			unique, quoteIdent(op.Name), quoteIdent(op.Table), quoteList(op.Columns)), true, nil

	case schema.DropIndex:
		return "DROP INDEX " + quoteIdent(op.Name), true, nil

	case schema.AlterColumn, schema.AddForeignKey, schema.DropForeignKey:
		return "", false, nil
	}

	return "", false, fmt.Errorf("%w: %T", driver.ErrUnsupportedOperation, op)
}

func createTable(name string, def tableDef) string {
	defs := make([]string, 0, len(def.columns)+len(def.foreignKeys)+1)
	for _, col := range def.columns {
		defs = append(defs, column(col))
	}
	if len(def.primaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(def.primaryKey)))
	}
	for _, fk := range def.foreignKeys {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(fk.Name), quoteIdent(fk.Column), quoteIdent(fk.PrincipalTable), quoteIdent(fk.PrincipalColumn)))
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

func column(col schema.Column) string {
	var b strings.Builder

	b.WriteString(quoteIdent(col.Name))
	b.WriteByte(' ')
	b.WriteString(columnType(col.Type))

	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*col.Default)
	}

	return b.String()
}

func columnType(t string) string {
	name, length, ok := schema.ParseType(t)
	if !ok {
		return t
	}

	switch name {
	case schema.TypeInt, schema.TypeBigInt, schema.TypeBool:
		return "INTEGER"
	case schema.TypeFloat, schema.TypeDouble:
		return "REAL"
	case schema.TypeText:
		return "TEXT"
	case schema.TypeString:
		return fmt.Sprintf("VARCHAR(%d)", length)
	case schema.TypeDateTime:
		return "DATETIME"
	case schema.TypeBlob:
		return "BLOB"
	}
	return t
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
