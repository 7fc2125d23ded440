package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dministrator/flowdb/internal/orm"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Params holds named parameters for RawSQL. A query refers to them as
// :name.
type Params map[string]any

// Connection is one named database inside a Pool: a database handle plus
// a unit-of-work session that is begun on first use and ended by Commit,
// Rollback or Close.
//
// A Connection is safe for concurrent use, but statements on the same
// session are serialised by the underlying transaction.
type Connection struct {
	name    string
	adapter *orm.BunAdapter
	owned   bool
	log     zerolog.Logger

	mu     sync.Mutex
	tx     *bun.Tx
	closed bool
}

func newConnection(name string, adapter *orm.BunAdapter, owned bool, log zerolog.Logger) *Connection {
	return &Connection{
		name:    name,
		adapter: adapter,
		owned:   owned,
		log:     log.With().Str("connection", name).Logger(),
	}
}

// Name returns the connection's name within its pool.
func (c *Connection) Name() string { return c.name }

// DB returns the bun handle behind the connection. Statements run on it
// directly bypass the session.
func (c *Connection) DB() *bun.DB { return c.adapter.DB }

// Dialect reports the SQL dialect of the underlying engine.
func (c *Connection) Dialect() dialect.Name { return c.adapter.Dialect() }

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// InSession reports whether a session is currently open.
func (c *Connection) InSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx != nil
}

// Session returns the open session, beginning one if needed. The session
// outlives ctx: it ends only through Commit, Rollback or Close.
func (c *Connection) Session(ctx context.Context) (bun.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return bun.Tx{}, fmt.Errorf("%w: %s", ErrConnectionClosed, c.name)
	}
	if c.tx != nil {
		return *c.tx, nil
	}
	tx, err := c.adapter.DB.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return bun.Tx{}, fmt.Errorf("begin session on %s: %w", c.name, err)
	}
	c.tx = &tx
	c.log.Debug().Msg("session started")
	return tx, nil
}

// Commit commits the pending work of the session. Without an open
// session it is a no-op. The next operation starts a fresh session.
func (c *Connection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, c.name)
	}
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return err
	}
	c.log.Debug().Msg("session committed")
	return nil
}

// Rollback discards the pending work of the session. Without an open
// session it is a no-op.
func (c *Connection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, c.name)
	}
	return c.rollbackLocked()
}

func (c *Connection) rollbackLocked() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	c.log.Debug().Msg("session rolled back")
	return nil
}

// Close discards uncommitted work and releases the connection. Handles
// opened by Create are closed too; handles shared through Engines stay
// open. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.rollbackLocked()
	if c.owned {
		if cerr := c.adapter.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Ping checks that the database is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	if c.Closed() {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, c.name)
	}
	return c.adapter.Ping(ctx)
}

// RawSQL runs query inside the session with named parameters bound as
// driver arguments, never interpolated. A doubled colon is the escape for
// a literal one, so postgres casts are written CAST(x AS type) or x::::type
// when params are given. The caller must close the returned rows.
func (c *Connection) RawSQL(ctx context.Context, query string, params Params) (*sql.Rows, error) {
	tx, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	stmt, args, err := c.bind(query, params)
	if err != nil {
		return nil, err
	}
	return tx.Tx.QueryContext(ctx, stmt, args...)
}

func (c *Connection) bind(query string, params Params) (string, []any, error) {
	if len(params) == 0 {
		return query, nil, nil
	}
	stmt, args, err := sqlx.Named(query, map[string]any(params))
	if err != nil {
		return "", nil, fmt.Errorf("bind params: %w", err)
	}
	bindType := sqlx.QUESTION
	if c.Dialect() == dialect.PG {
		bindType = sqlx.DOLLAR
	}
	return sqlx.Rebind(bindType, stmt), args, nil
}
