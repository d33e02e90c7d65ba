package history

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sqlprompt/sqlprompt/internal/observability"
	"github.com/sqlprompt/sqlprompt/internal/storage"
)

type ArchiverConfig struct {
	Prefix        string
	BatchSize     int
	FlushInterval time.Duration
	// MaxBuffered caps records held while the store is failing. The oldest are
	// dropped first.
	MaxBuffered int
}

// Archiver buffers records in memory and writes them to the object store as Parquet
// files. A batch is flushed when it reaches BatchSize, every FlushInterval, and when
// Run returns.
type Archiver struct {
	Store  storage.ObjectStore
	Config ArchiverConfig
	Logger *slog.Logger
	Clock  func() time.Time

	mu       sync.Mutex
	buffer   []Record
	sequence int
	full     chan struct{}
	initOnce sync.Once
}

func NewArchiver(store storage.ObjectStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	a := &Archiver{Store: store, Config: cfg, Logger: logger}
	a.ensureDefaults()
	return a
}

func (a *Archiver) Record(_ context.Context, record Record) {
	a.ensureDefaults()
	a.mu.Lock()
	a.buffer = append(a.buffer, record)
	dropped := a.trimLocked()
	full := len(a.buffer) >= a.Config.BatchSize
	a.mu.Unlock()
	a.reportDropped(dropped)

	if full {
		select {
		case a.full <- struct{}{}:
		default:
		}
	}
}

func (a *Archiver) Run(ctx context.Context) error {
	a.ensureDefaults()

	ticker := time.NewTicker(a.Config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Flush(flushCtx); err != nil {
				a.Logger.Error("final history flush failed", slog.Any("error", err))
				return err
			}
			return nil
		case <-ticker.C:
		case <-a.full:
		}
		if err := a.Flush(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "history flush failed", slog.Any("error", err))
		}
	}
}

// Flush writes everything buffered so far as one object. Records are put back at the
// front of the buffer when the write fails.
func (a *Archiver) Flush(ctx context.Context) error {
	a.ensureDefaults()
	a.mu.Lock()
	batch := a.buffer
	a.buffer = nil
	sequence := a.sequence
	a.sequence++
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := a.write(ctx, batch, sequence)
	observability.ObserveHistoryFlush(err != nil)
	if err != nil {
		a.mu.Lock()
		a.buffer = append(batch, a.buffer...)
		dropped := a.trimLocked()
		a.mu.Unlock()
		a.reportDropped(dropped)
		return err
	}
	return nil
}

func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}

func (a *Archiver) trimLocked() int {
	excess := len(a.buffer) - a.Config.MaxBuffered
	if excess <= 0 {
		return 0
	}
	a.buffer = append([]Record(nil), a.buffer[excess:]...)
	return excess
}

func (a *Archiver) reportDropped(count int) {
	if count == 0 {
		return
	}
	observability.ObserveHistoryDropped(count)
	a.Logger.Warn("history buffer full, dropped oldest records", slog.Int("dropped", count))
}

func (a *Archiver) write(ctx context.Context, batch []Record, sequence int) error {
	data, err := EncodeParquet(batch)
	if err != nil {
		return err
	}
	key, err := storage.BuildHistoryPath(a.Config.Prefix, a.Clock(), sequence)
	if err != nil {
		return fmt.Errorf("build history path: %w", err)
	}
	_, err = a.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
		Metadata:    map[string]string{"record-count": strconv.Itoa(len(batch))},
	})
	if err != nil {
		return fmt.Errorf("put history batch: %w", err)
	}
	a.Logger.DebugContext(ctx, "history batch archived", slog.String("key", key), slog.Int("records", len(batch)))
	return nil
}

func (a *Archiver) ensureDefaults() {
	a.initOnce.Do(func() {
		if a.Config.BatchSize <= 0 {
			a.Config.BatchSize = 200
		}
		if a.Config.MaxBuffered < a.Config.BatchSize {
			a.Config.MaxBuffered = 10 * a.Config.BatchSize
		}
		if a.Config.FlushInterval <= 0 {
			a.Config.FlushInterval = time.Minute
		}
		if a.Logger == nil {
			a.Logger = slog.Default()
		}
		if a.Clock == nil {
			a.Clock = time.Now
		}
		a.full = make(chan struct{}, 1)
	})
}
