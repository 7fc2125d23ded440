package orm

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

// BunAdapter is a thin wrapper around bun.DB exposing the DB instance and
// the underlying *sql.DB for lifecycle management.
type BunAdapter struct {
	DB     *bun.DB
	SQLDB  *sql.DB
	Target Target
}

// Connect opens a database handle for the given connection URI and returns
// a BunAdapter. It does not touch the network; use Open to also verify the
// database is reachable. The caller is responsible for closing the returned
// adapter (adapter.Close()).
func Connect(uri string) (*BunAdapter, error) {
	target, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	sqdb, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql: %w", err)
	}

	var db *bun.DB
	switch target.Engine {
	case EnginePostgres:
		db = bun.NewDB(sqdb, pgdialect.New())
	default:
		if target.Memory {
			// a shared-cache memory database lives as long as one
			// connection to it stays open
			sqdb.SetMaxIdleConns(4)
			sqdb.SetConnMaxIdleTime(0)
			sqdb.SetConnMaxLifetime(0)
		}
		db = bun.NewDB(sqdb, sqlitedialect.New())
	}
	return &BunAdapter{DB: db, SQLDB: sqdb, Target: target}, nil
}

// Open is Connect followed by a Ping, so an unreachable database is
// reported at construction time.
func Open(ctx context.Context, uri string) (*BunAdapter, error) {
	b, err := Connect(uri)
	if err != nil {
		return nil, err
	}
	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("ping %s: %w", Redact(uri), err)
	}
	return b, nil
}

// Close closes the underlying *sql.DB connection.
func (b *BunAdapter) Close() error {
	if b == nil || b.SQLDB == nil {
		return nil
	}
	return b.SQLDB.Close()
}

// Ping checks connectivity.
func (b *BunAdapter) Ping(ctx context.Context) error {
	if b == nil || b.SQLDB == nil {
		return fmt.Errorf("bun adapter: nil")
	}
	return b.SQLDB.PingContext(ctx)
}

// Dialect reports which SQL dialect the adapter speaks.
func (b *BunAdapter) Dialect() dialect.Name {
	if b == nil || b.DB == nil {
		return dialect.Invalid
	}
	return b.DB.Dialect().Name()
}
