// Package storage abstracts the object store that query history is archived to.
package storage

import (
	"context"
	"io"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// Metadata is stored alongside the object as user metadata.
	Metadata map[string]string
}

// ObjectStore is write-only: history batches are appended and never read back by
// the service.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}

// Checker is implemented by stores that can report whether their bucket is reachable.
type Checker interface {
	Check(ctx context.Context) error
}
