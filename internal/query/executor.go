package query

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Executor runs one statement inside its own transaction.
type Executor struct {
	// Explain runs EXPLAIN on the statement first, inside the same transaction.
	Explain bool
}

func (e *Executor) Execute(ctx context.Context, db *sql.DB, sqlText string) (result Result, err error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if e.Explain {
		if err := explain(ctx, tx, sqlText); err != nil {
			return Result{}, err
		}
	}

	if IsRead(sqlText) {
		result, err = readRows(ctx, tx, sqlText)
	} else {
		result, err = execWrite(ctx, tx, sqlText)
	}
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit transaction: %w", err)
	}
	result.SQL = sqlText
	return result, nil
}

func explain(ctx context.Context, tx *sql.Tx, sqlText string) error {
	rows, err := tx.QueryContext(ctx, "EXPLAIN "+sqlText)
	if err != nil {
		return fmt.Errorf("explain statement: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("explain statement: %w", err)
	}
	return nil
}

func readRows(ctx context.Context, tx *sql.Tx, sqlText string) (Result, error) {
	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return Result{}, fmt.Errorf("query column types: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i], databaseTypeName(types, i))
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{Kind: KindRead, Columns: columns, Rows: resultRows}, nil
}

func execWrite(ctx context.Context, tx *sql.Tx, sqlText string) (Result, error) {
	res, err := tx.ExecContext(ctx, sqlText)
	if err != nil {
		return Result{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, fmt.Errorf("rows affected: %w", err)
	}
	return Result{Kind: KindWrite, RowsAffected: affected}, nil
}

func databaseTypeName(types []*sql.ColumnType, index int) string {
	if index >= len(types) || types[index] == nil {
		return ""
	}
	return strings.ToUpper(types[index].DatabaseTypeName())
}

// normalizeValue turns driver byte slices into text, or into numbers when the column
// type says the text is numeric.
func normalizeValue(value any, typeName string) any {
	raw, ok := value.([]byte)
	if !ok {
		return value
	}
	text := string(raw)
	switch {
	case isIntegerType(typeName):
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return parsed
		}
		if parsed, err := strconv.ParseUint(text, 10, 64); err == nil {
			return parsed
		}
	case isFloatType(typeName):
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed
		}
	}
	return text
}

func isIntegerType(typeName string) bool {
	typeName = strings.TrimPrefix(typeName, "UNSIGNED ")
	switch typeName {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR", "INT2", "INT4", "INT8":
		return true
	default:
		return false
	}
}

func isFloatType(typeName string) bool {
	switch typeName {
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		return true
	default:
		return false
	}
}
