package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sqlprompt/sqlprompt/internal/history"
	"github.com/sqlprompt/sqlprompt/internal/storage"
)

func TestDrainThenStopFlushesRecordsFromDrainedRequests(t *testing.T) {
	store := &countingStore{}
	archiver := history.NewArchiver(store, history.ArchiverConfig{BatchSize: 100, FlushInterval: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = archiver.Run(ctx)
	}()

	server := &drainingServer{onShutdown: func() {
		archiver.Record(context.Background(), history.Record{TraceID: "in-flight", Prompt: "show all users"})
	}}
	if err := drainThenStop(context.Background(), server, cancel, done); err != nil {
		t.Fatalf("drainThenStop() error = %v", err)
	}
	if archiver.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", archiver.Pending())
	}
	if store.count() != 1 {
		t.Fatalf("puts = %d, want 1", store.count())
	}
}

func TestDrainThenStopReturnsShutdownError(t *testing.T) {
	boom := errors.New("context deadline exceeded")
	done := make(chan struct{})
	stopped := false
	err := drainThenStop(context.Background(), &drainingServer{err: boom}, func() {
		stopped = true
		close(done)
	}, done)
	if !errors.Is(err, boom) {
		t.Fatalf("drainThenStop() error = %v", err)
	}
	if !stopped {
		t.Fatal("background work should stop even when shutdown fails")
	}
}

type drainingServer struct {
	onShutdown func()
	err        error
}

func (s *drainingServer) Shutdown(context.Context) error {
	if s.onShutdown != nil {
		s.onShutdown()
	}
	return s.err
}

type countingStore struct {
	mu   sync.Mutex
	puts int
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func (c *countingStore) Put(_ context.Context, key string, body io.Reader, size int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return storage.ObjectInfo{}, err
	}
	c.mu.Lock()
	c.puts++
	c.mu.Unlock()
	return storage.ObjectInfo{Key: key, Size: size}, nil
}
