package history

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlprompt/sqlprompt/internal/storage"
)

func TestFlushWritesParquetBatch(t *testing.T) {
	store := newMemoryStore()
	archiver := NewArchiver(store, ArchiverConfig{Prefix: "history", BatchSize: 10}, nil)
	archiver.Clock = func() time.Time { return time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC) }

	archiver.Record(context.Background(), Record{
		At:     time.Date(2026, time.October, 16, 9, 29, 0, 0, time.UTC),
		Prompt: "show all users",
		Driver: "mysql",
		Tables: []string{"users"},
		SQL:    "SELECT * FROM users",
		Kind:   "read",
	})
	archiver.Record(context.Background(), Record{Prompt: "drop it", Stage: "guard", ErrorKind: "policy", Error: "statement not allowed: drop"})

	if err := archiver.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if archiver.Pending() != 0 {
		t.Fatalf("Pending() = %d", archiver.Pending())
	}

	keys := store.keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "history/date=2026-10-16/hour=09/part-") {
		t.Fatalf("keys = %#v", keys)
	}
	if store.metadata[keys[0]]["record-count"] != "2" {
		t.Fatalf("metadata = %#v", store.metadata[keys[0]])
	}

	reader := parquet.NewGenericReader[parquetRecord](bytes.NewReader(store.objects[keys[0]]))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetRecord, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].Prompt != "show all users" || rows[0].Tables != "users" || rows[1].ErrorKind != "policy" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestFlushWithEmptyBufferWritesNothing(t *testing.T) {
	store := newMemoryStore()
	archiver := NewArchiver(store, ArchiverConfig{}, nil)
	if err := archiver.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(store.keys()) != 0 {
		t.Fatalf("keys = %#v", store.keys())
	}
}

func TestFlushFailureKeepsRecords(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("bucket unavailable")
	archiver := NewArchiver(store, ArchiverConfig{BatchSize: 10}, nil)
	archiver.Record(context.Background(), Record{Prompt: "a"})
	archiver.Record(context.Background(), Record{Prompt: "b"})

	if err := archiver.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if archiver.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", archiver.Pending())
	}

	store.setPutErr(nil)
	if err := archiver.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if archiver.Pending() != 0 || len(store.keys()) != 1 {
		t.Fatalf("pending=%d keys=%#v", archiver.Pending(), store.keys())
	}
}

func TestBufferDropsOldestRecordsWhenStoreKeepsFailing(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("bucket unavailable")
	archiver := NewArchiver(store, ArchiverConfig{BatchSize: 2, MaxBuffered: 3}, nil)
	for _, prompt := range []string{"a", "b", "c", "d", "e"} {
		archiver.Record(context.Background(), Record{Prompt: prompt})
	}
	if err := archiver.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	archiver.Record(context.Background(), Record{Prompt: "f"})

	if got := bufferedPrompts(archiver); got != "d,e,f" {
		t.Fatalf("buffered prompts = %s, want d,e,f", got)
	}
}

func TestMaxBufferedDefaultsAboveBatchSize(t *testing.T) {
	archiver := NewArchiver(newMemoryStore(), ArchiverConfig{BatchSize: 5}, nil)
	if archiver.Config.MaxBuffered != 50 {
		t.Fatalf("MaxBuffered = %d, want 50", archiver.Config.MaxBuffered)
	}
}

func TestRunFlushesFullBatchAndOnShutdown(t *testing.T) {
	store := newMemoryStore()
	archiver := NewArchiver(store, ArchiverConfig{BatchSize: 2, FlushInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- archiver.Run(ctx) }()

	archiver.Record(context.Background(), Record{Prompt: "a"})
	archiver.Record(context.Background(), Record{Prompt: "b"})

	deadline := time.Now().Add(2 * time.Second)
	for len(store.keys()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(store.keys()) != 1 {
		t.Fatalf("keys after full batch = %#v", store.keys())
	}

	archiver.Record(context.Background(), Record{Prompt: "c"})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.keys()) != 2 {
		t.Fatalf("keys after shutdown = %#v", store.keys())
	}
}

func TestEncodeParquetRequiresRecords(t *testing.T) {
	if _, err := EncodeParquet(nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func bufferedPrompts(a *Archiver) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	prompts := make([]string, 0, len(a.buffer))
	for _, record := range a.buffer {
		prompts = append(prompts, record.Prompt)
	}
	return strings.Join(prompts, ",")
}

type memoryStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	putErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (m *memoryStore) setPutErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return storage.ObjectInfo{}, m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = data
	m.metadata[key] = opts.Metadata
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}
