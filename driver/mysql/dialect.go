package mysql

import (
	"fmt"
	"strings"

	"github.com/beatleader/ledger/driver"
	"github.com/beatleader/ledger/schema"
)

// dialect renders schema operations as MySQL DDL. Tables are qualified with
// database when it is set.
type dialect struct {
	database string
}

func (d dialect) render(op schema.Operation) (string, error) { //nolint:cyclop
	switch op := op.(type) {
	case schema.CreateTable:
		defs := make([]string, 0, len(op.Columns)+1)
		for _, col := range op.Columns {
			defs = append(defs, d.column(col))
		}
		if len(op.PrimaryKey) > 0 {
			defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(op.PrimaryKey)))
		}
		return fmt.Sprintf("CREATE TABLE %s (%s) DEFAULT CHARSET utf8mb4",
			d.table(op.Name), strings.Join(defs, ", ")), nil

	case schema.DropTable:
		return "DROP TABLE " + d.table(op.Name), nil

	case schema.AddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.table(op.Table), d.column(op.Column)), nil

	case schema.DropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.table(op.Table), quoteIdent(op.Name)), nil

	case schema.AlterColumn:
		return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.table(op.Table), d.column(op.Column())), nil

	case schema.RenameColumn:
		return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			d.table(op.Table), quoteIdent(op.OldName), quoteIdent(op.NewName)), nil

	case schema.RenameTable:
		return fmt.Sprintf("RENAME TABLE %s TO %s", d.table(op.OldName), d.table(op.NewName)), nil

	case schema.CreateIndex:
		unique := ""
		if op.Unique {
			unique = "UNIQUE "
		}
		return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
			unique, quoteIdent(op.Name), d.table(op.Table), quoteList(op.Columns)), nil

	case schema.DropIndex:
		return fmt.Sprintf("DROP INDEX %s ON %s", quoteIdent(op.Name), d.table(op.Table)), nil

	case schema.AddForeignKey:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.table(op.Table), quoteIdent(op.ConstraintName()), quoteIdent(op.Column),
			d.table(op.PrincipalTable), quoteIdent(op.PrincipalColumn)), nil

	case schema.DropForeignKey:
		return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.table(op.Table), quoteIdent(op.Name)), nil
	}

	return "", fmt.Errorf("%w: %T", driver.ErrUnsupportedOperation, op)
}

func (d dialect) table(name string) string {
	if d.database == "" {
		return quoteIdent(name)
	}
	return quoteIdent(d.database) + "." + quoteIdent(name)
}

func (d dialect) column(col schema.Column) string {
	var b strings.Builder

	b.WriteString(quoteIdent(col.Name))
	b.WriteByte(' ')
	b.WriteString(columnType(col.Type))

	if col.Nullable {
		b.WriteString(" NULL")
	} else {
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
	case schema.TypeInt:
		return "int"
	case schema.TypeBigInt:
		return "bigint"
	case schema.TypeBool:
		return "tinyint(1)"
	case schema.TypeFloat:
		return "float"
	case schema.TypeDouble:
		return "double"
	case schema.TypeText:
		return "longtext"
	case schema.TypeString:
		return fmt.Sprintf("varchar(%d)", length)
	case schema.TypeDateTime:
		return "datetime(6)"
	case schema.TypeBlob:
		return "longblob"
	}
	return t
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
