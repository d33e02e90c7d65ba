package target

import (
	"context"
	"database/sql"
	"sync"
)

// Handle is a live database handle leased to one request. Release must be called
// exactly once when the request is done with it; extra calls are ignored.
type Handle struct {
	DB      *sql.DB
	Dialect Dialect

	once    sync.Once
	release func()
}

func NewHandle(db *sql.DB, dialect Dialect, release func()) *Handle {
	return &Handle{DB: db, Dialect: dialect, release: release}
}

func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
}

type Connector interface {
	Connect(ctx context.Context, spec ConnectionSpec) (*Handle, error)
}

// DirectConnector opens a fresh handle per request and closes it on release.
type DirectConnector struct {
	Options Options
	Open    OpenFunc
}

func NewDirectConnector(opts Options) *DirectConnector {
	return &DirectConnector{Options: opts, Open: Open}
}

func (c *DirectConnector) Connect(ctx context.Context, spec ConnectionSpec) (*Handle, error) {
	open := c.Open
	if open == nil {
		open = Open
	}
	spec = spec.WithDefaults(c.Options.DefaultDriver)
	if err := c.Options.CheckDriver(spec); err != nil {
		return nil, err
	}
	db, dialect, err := open(ctx, spec, c.Options)
	if err != nil {
		return nil, err
	}
	return NewHandle(db, dialect, func() { _ = db.Close() }), nil
}
