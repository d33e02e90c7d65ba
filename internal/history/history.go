// Package history keeps an audit trail of answered prompts. Records never carry
// credentials.
package history

import (
	"context"
	"time"
)

type Record struct {
	At         time.Time
	TraceID    string
	Prompt     string
	Driver     string
	Host       string
	Database   string
	Tables     []string
	SQL        string
	Kind       string
	RowCount   int64
	Stage      string
	ErrorKind  string
	Error      string
	DurationMs int64
}

// Recorder accepts finished pipeline runs. Implementations must not block the caller
// on slow storage and must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, record Record)
}

type Discard struct{}

func (Discard) Record(context.Context, Record) {}
