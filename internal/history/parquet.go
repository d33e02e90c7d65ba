package history

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
)

type parquetRecord struct {
	AtUnixMs   int64  `parquet:"at_unix_ms"`
	TraceID    string `parquet:"trace_id"`
	Prompt     string `parquet:"prompt"`
	Driver     string `parquet:"driver"`
	Host       string `parquet:"host"`
	Database   string `parquet:"database"`
	Tables     string `parquet:"tables"`
	SQL        string `parquet:"sql"`
	Kind       string `parquet:"kind"`
	RowCount   int64  `parquet:"row_count"`
	Stage      string `parquet:"stage"`
	ErrorKind  string `parquet:"error_kind"`
	Error      string `parquet:"error"`
	DurationMs int64  `parquet:"duration_ms"`
}

func EncodeParquet(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records are required")
	}

	rows := make([]parquetRecord, 0, len(records))
	for _, record := range records {
		rows = append(rows, parquetRecord{
			AtUnixMs:   record.At.UnixMilli(),
			TraceID:    record.TraceID,
			Prompt:     record.Prompt,
			Driver:     record.Driver,
			Host:       record.Host,
			Database:   record.Database,
			Tables:     strings.Join(record.Tables, ","),
			SQL:        record.SQL,
			Kind:       record.Kind,
			RowCount:   record.RowCount,
			Stage:      record.Stage,
			ErrorKind:  record.ErrorKind,
			Error:      record.Error,
			DurationMs: record.DurationMs,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRecord](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
