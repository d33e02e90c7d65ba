package target

import (
	"context"
	"fmt"

	"github.com/sqlprompt/sqlprompt/internal/nl2sql"
)

// TableError reports the first table whose metadata could not be read.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("describe table %q: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// Introspect describes each table in order. Duplicates are described again, and the
// first failure aborts the whole lookup.
func Introspect(ctx context.Context, handle *Handle, tables []string) (nl2sql.Schema, error) {
	schema := make(nl2sql.Schema, 0, len(tables))
	for _, table := range tables {
		columns, err := handle.Dialect.DescribeTable(ctx, handle.DB, table)
		if err != nil {
			return nil, &TableError{Table: table, Err: err}
		}
		described := nl2sql.TableSchema{Name: table, Columns: make([]nl2sql.Column, 0, len(columns))}
		for _, column := range columns {
			described.Columns = append(described.Columns, nl2sql.Column{Name: column[0], Type: column[1]})
		}
		schema = append(schema, described)
	}
	return schema, nil
}
