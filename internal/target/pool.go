package target

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sqlprompt/sqlprompt/internal/observability"
)

type PoolConfig struct {
	MaxEntries int
	IdleTTL    time.Duration
}

// Pool reuses handles across requests that present identical connection parameters.
// Entries expire after IdleTTL without use and are closed once no request still holds them.
type Pool struct {
	options Options
	open    OpenFunc
	logger  *slog.Logger
	cache   *ttlcache.Cache[string, *pooledHandle]
}

func NewPool(opts Options, cfg PoolConfig, logger *slog.Logger) *Pool {
	return newPool(opts, cfg, Open, logger)
}

func newPool(opts Options, cfg PoolConfig, open OpenFunc, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	cacheOptions := []ttlcache.Option[string, *pooledHandle]{
		ttlcache.WithTTL[string, *pooledHandle](cfg.IdleTTL),
	}
	if cfg.MaxEntries > 0 {
		cacheOptions = append(cacheOptions, ttlcache.WithCapacity[string, *pooledHandle](uint64(cfg.MaxEntries)))
	}
	cache := ttlcache.New(cacheOptions...)
	pool := &Pool{options: opts, open: open, logger: logger, cache: cache}
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *pooledHandle]) {
		item.Value().evict()
		pool.logger.Debug("pooled handle evicted", "key", item.Key()[:12], "reason", evictionReasonLabel(reason))
	})
	if cfg.IdleTTL > 0 {
		go cache.Start()
	}
	return pool
}

func (p *Pool) Connect(ctx context.Context, spec ConnectionSpec) (*Handle, error) {
	spec = spec.WithDefaults(p.options.DefaultDriver)
	if err := p.options.CheckDriver(spec); err != nil {
		return nil, err
	}
	key := spec.Key()

	for attempt := 0; attempt < 2; attempt++ {
		if item := p.cache.Get(key); item != nil {
			if handle, ok := item.Value().lease(); ok {
				return handle, nil
			}
			continue
		}

		db, dialect, err := p.open(ctx, spec, p.options)
		if err != nil {
			return nil, err
		}
		candidate := &pooledHandle{db: db, dialect: dialect}
		item, found := p.cache.GetOrSet(key, candidate)
		if found {
			_ = db.Close()
		}
		observability.SetPooledHandles(p.cache.Len())
		if handle, ok := item.Value().lease(); ok {
			return handle, nil
		}
	}
	return nil, fmt.Errorf("pooled handle for %s evicted while connecting", spec.Driver)
}

func (p *Pool) Len() int {
	return p.cache.Len()
}

// Close stops expiry and closes every pooled handle once its leases are released.
func (p *Pool) Close() {
	p.cache.Stop()
	p.cache.DeleteAll()
	observability.SetPooledHandles(0)
}

type pooledHandle struct {
	db      *sql.DB
	dialect Dialect

	mu      sync.Mutex
	leases  int
	evicted bool
	closed  bool
}

func (h *pooledHandle) lease() (*Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.evicted {
		return nil, false
	}
	h.leases++
	return NewHandle(h.db, h.dialect, h.unlease), true
}

func (h *pooledHandle) unlease() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leases--
	h.closeIfIdleLocked()
}

func (h *pooledHandle) evict() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evicted = true
	h.closeIfIdleLocked()
}

func (h *pooledHandle) closeIfIdleLocked() {
	if h.evicted && h.leases <= 0 && !h.closed {
		h.closed = true
		_ = h.db.Close()
	}
}

func evictionReasonLabel(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
