// Package query runs generated statements against a target database and shapes the
// outcome for the caller.
package query

import (
	"strings"
)

type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// Result is either a read with rows or a write with an affected-row count, never both.
type Result struct {
	SQL          string
	Kind         Kind
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
}

// IsRead reports whether the statement starts with "select", ignoring case and
// leading whitespace. Everything else, WITH queries included, is treated as a write.
func IsRead(sqlText string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(sqlText)), "select")
}

func KindOf(sqlText string) Kind {
	if IsRead(sqlText) {
		return KindRead
	}
	return KindWrite
}
