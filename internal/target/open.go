package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrDriverNotAllowed = errors.New("driver not allowed")

// DefaultAllowedDrivers are the networked drivers. Embedded drivers run on the API
// host and must be enabled explicitly.
var DefaultAllowedDrivers = []string{DriverMySQL, DriverPostgres}

type Options struct {
	DefaultDriver string
	// AllowedDrivers lists the drivers callers may request. Empty means
	// DefaultAllowedDrivers.
	AllowedDrivers  []string
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// CheckDriver rejects a defaulted spec whose driver is not allowed.
func (o Options) CheckDriver(spec ConnectionSpec) error {
	allowed := o.AllowedDrivers
	if len(allowed) == 0 {
		allowed = DefaultAllowedDrivers
	}
	dialect, err := DialectFor(spec.Driver)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(allowed, func(name string) bool {
		candidate, err := DialectFor(name)
		return err == nil && candidate.Name() == dialect.Name()
	}) {
		return fmt.Errorf("%w: %s", ErrDriverNotAllowed, dialect.Name())
	}
	return nil
}

// OpenFunc opens a live handle for an already defaulted spec.
type OpenFunc func(ctx context.Context, spec ConnectionSpec, opts Options) (*sql.DB, Dialect, error)

// Open validates spec, opens a handle with the dialect's driver and pings it within
// the connect timeout.
func Open(ctx context.Context, spec ConnectionSpec, opts Options) (*sql.DB, Dialect, error) {
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}
	dialect, err := DialectFor(spec.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := dialect.DSN(spec, opts.ConnectTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s dsn: %w", dialect.Name(), err)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s db: %w", dialect.Name(), err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s db: %w", dialect.Name(), err)
	}

	return db, dialect, nil
}
