// Package migrations runs versioned SQL migrations against the named
// connections of a pool.
//
// Migration files use goose's annotated SQL format and live in one
// directory shared by every connection:
//
//	db/migrations/00001_create_genres.sql
//
//	-- +goose Up
//	CREATE TABLE genres (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
//	-- +goose Down
//	DROP TABLE genres;
//
// Each connection tracks its own applied versions in the
// flowdb_migrations table. Migrations run on the connection's handle, not
// inside its session.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun/dialect"

	"github.com/dministrator/flowdb/pkg/sqldb"
)

// DefaultTable is the version tracking table.
const DefaultTable = "flowdb_migrations"

// Runner applies the migrations found in one filesystem.
type Runner struct {
	fsys  fs.FS
	table string
	log   zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTable overrides the version tracking table.
func WithTable(name string) Option {
	return func(r *Runner) { r.table = name }
}

// WithLogger sets the logger used to report applied migrations.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// New returns a Runner over fsys. Migration files are read from its root.
func New(fsys fs.FS, opts ...Option) *Runner {
	r := &Runner{
		fsys:  fsys,
		table: DefaultTable,
		log:   log.Logger.With().Str("component", "migrations").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDir returns a Runner over the migration files in dir.
func NewDir(dir string, opts ...Option) (*Runner, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations directory: %s is not a directory", dir)
	}
	return New(os.DirFS(dir), opts...), nil
}

func (r *Runner) provider(pool *sqldb.Pool, name string) (*goose.Provider, *sqldb.Connection, error) {
	conn, err := pool.Get(name)
	if err != nil {
		return nil, nil, err
	}
	if conn.Closed() {
		return nil, nil, fmt.Errorf("%w: %q", sqldb.ErrConnectionClosed, conn.Name())
	}

	d := database.DialectSQLite3
	if conn.Dialect() == dialect.PG {
		d = database.DialectPostgres
	}
	store, err := database.NewStore(d, r.table)
	if err != nil {
		return nil, nil, fmt.Errorf("migrations store: %w", err)
	}
	// the provider borrows the handle; it is closed with the pool
	p, err := goose.NewProvider("", conn.DB().DB, r.fsys, goose.WithStore(store))
	if err != nil {
		return nil, nil, fmt.Errorf("migrations %q: %w", conn.Name(), err)
	}
	return p, conn, nil
}

// Up applies every pending migration on the named connection.
func (r *Runner) Up(ctx context.Context, pool *sqldb.Pool, name string) ([]*goose.MigrationResult, error) {
	p, conn, err := r.provider(pool, name)
	if err != nil {
		return nil, err
	}
	results, err := p.Up(ctx)
	for _, res := range results {
		r.report(conn, res)
	}
	if err != nil {
		return results, fmt.Errorf("migrate %q: %w", conn.Name(), err)
	}
	return results, nil
}

// Down rolls back the most recently applied migration on the named
// connection.
func (r *Runner) Down(ctx context.Context, pool *sqldb.Pool, name string) (*goose.MigrationResult, error) {
	p, conn, err := r.provider(pool, name)
	if err != nil {
		return nil, err
	}
	res, err := p.Down(ctx)
	if res != nil {
		r.report(conn, res)
	}
	if err != nil {
		return res, fmt.Errorf("rollback %q: %w", conn.Name(), err)
	}
	return res, nil
}

// Status lists every known migration with its state on the named
// connection.
func (r *Runner) Status(ctx context.Context, pool *sqldb.Pool, name string) ([]*goose.MigrationStatus, error) {
	p, conn, err := r.provider(pool, name)
	if err != nil {
		return nil, err
	}
	st, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("status %q: %w", conn.Name(), err)
	}
	return st, nil
}

// Version returns the current schema version of the named connection.
func (r *Runner) Version(ctx context.Context, pool *sqldb.Pool, name string) (int64, error) {
	p, conn, err := r.provider(pool, name)
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("version %q: %w", conn.Name(), err)
	}
	return v, nil
}

func (r *Runner) report(conn *sqldb.Connection, res *goose.MigrationResult) {
	ev := r.log.Info()
	if res.Error != nil {
		ev = r.log.Error().Err(res.Error)
	}
	ev.Str("connection", conn.Name()).
		Str("direction", res.Direction).
		Int64("version", res.Source.Version).
		Dur("took", res.Duration).
		Msg("migration")
}
