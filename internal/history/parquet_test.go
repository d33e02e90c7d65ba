package history

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

func TestEncodeParquetWritesOneRowPerRecord(t *testing.T) {
	at := time.Date(2026, 2, 19, 9, 45, 0, 0, time.UTC)
	payload, err := EncodeParquet([]Record{
		{At: at, TraceID: "t-1", Prompt: "list users", Driver: "mysql", Tables: []string{"users", "orders"}, SQL: "SELECT * FROM users", Kind: "read", RowCount: 2, DurationMs: 40},
		{At: at.Add(time.Second), TraceID: "t-2", Prompt: "drop it", Stage: "guard", ErrorKind: "policy", Error: "statement kind not allowed: drop"},
	})
	if err != nil {
		t.Fatalf("EncodeParquet() error = %v", err)
	}

	rows, err := parquet.Read[parquetRecord](bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Tables != "users,orders" || rows[0].AtUnixMs != at.UnixMilli() || rows[0].RowCount != 2 {
		t.Fatalf("first row = %#v", rows[0])
	}
	if rows[1].ErrorKind != "policy" || rows[1].Stage != "guard" || rows[1].Tables != "" {
		t.Fatalf("second row = %#v", rows[1])
	}
}
