package nl2sql

import "strings"

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type TableSchema struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema keeps tables in extraction order, duplicates included.
type Schema []TableSchema

// String renders one "table(col type, col type)" line per table.
func (s Schema) String() string {
	lines := make([]string, 0, len(s))
	for _, table := range s {
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, column.Name+" "+column.Type)
		}
		lines = append(lines, table.Name+"("+strings.Join(columns, ", ")+")")
	}
	return strings.Join(lines, "\n")
}
