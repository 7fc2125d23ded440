package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Filters selects rows by column equality. A nil value matches NULL.
type Filters map[string]any

// Manager is the persistence surface of one registered record type. It
// holds no connection state: every call names the pool and the
// connection to use, "" meaning the pool's default.
//
// Writes run inside the connection's session and become visible to other
// sessions only after the pool commits that connection.
type Manager[T any] struct {
	schema *Schema
}

// Schema returns the descriptor built at registration.
func (m *Manager[T]) Schema() *Schema { return m.schema }

// Table returns the table name.
func (m *Manager[T]) Table() string { return m.schema.Table }

func (m *Manager[T]) session(ctx context.Context, pool *Pool, name string) (*Connection, bun.Tx, error) {
	conn, err := pool.Get(name)
	if err != nil {
		return nil, bun.Tx{}, err
	}
	tx, err := conn.Session(ctx)
	if err != nil {
		return nil, bun.Tx{}, err
	}
	return conn, tx, nil
}

// Add inserts rec on the named connection's session and fills its
// generated primary key. The record is remembered as belonging to that
// connection for later Update and Delete calls.
func (m *Manager[T]) Add(ctx context.Context, pool *Pool, name string, rec *T) error {
	conn, tx, err := m.session(ctx, pool, name)
	if err != nil {
		return err
	}
	if _, err := tx.NewInsert().Model(rec).Exec(ctx); err != nil {
		return err
	}
	pool.bind(rec, conn.Name())
	return nil
}

// AddAll inserts recs with a single statement.
func (m *Manager[T]) AddAll(ctx context.Context, pool *Pool, name string, recs []*T) error {
	if len(recs) == 0 {
		return nil
	}
	conn, tx, err := m.session(ctx, pool, name)
	if err != nil {
		return err
	}
	if _, err := tx.NewInsert().Model(&recs).Exec(ctx); err != nil {
		return err
	}
	for _, rec := range recs {
		pool.bind(rec, conn.Name())
	}
	return nil
}

// Get returns the single row matching filters. It fails with ErrNotFound
// when nothing matches and ErrMultipleResults when more than one row does.
func (m *Manager[T]) Get(ctx context.Context, pool *Pool, name string, filters Filters) (*T, error) {
	return m.get(ctx, pool, name, filters, false)
}

// GetForUpdate is Get with the row locked until the session ends. On
// sqlite, which serialises writers per database, no lock clause is added.
func (m *Manager[T]) GetForUpdate(ctx context.Context, pool *Pool, name string, filters Filters) (*T, error) {
	return m.get(ctx, pool, name, filters, true)
}

func (m *Manager[T]) get(ctx context.Context, pool *Pool, name string, filters Filters, forUpdate bool) (*T, error) {
	conn, tx, err := m.session(ctx, pool, name)
	if err != nil {
		return nil, err
	}
	var rows []*T
	q := tx.NewSelect().Model(&rows)
	if q, err = m.where(q, filters); err != nil {
		return nil, err
	}
	q = m.defaultOrder(q).Limit(2)
	if forUpdate && conn.Dialect() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, m.notFound(conn)
	case 1:
		pool.bind(rows[0], conn.Name())
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %s on %q", ErrMultipleResults, m.schema.Table, conn.Name())
	}
}

// FilterBy starts a query over the rows matching filters. Nothing runs
// until a terminal method (All, Slice, First, Count, Iter) is called.
func (m *Manager[T]) FilterBy(pool *Pool, name string, filters Filters) *Query[T] {
	return &Query[T]{m: m, pool: pool, name: name, filters: filters}
}

// All returns every row on the named connection.
func (m *Manager[T]) All(ctx context.Context, pool *Pool, name string) ([]*T, error) {
	return m.FilterBy(pool, name, nil).All(ctx)
}

// Count returns the number of rows matching filters.
func (m *Manager[T]) Count(ctx context.Context, pool *Pool, name string, filters Filters) (int, error) {
	return m.FilterBy(pool, name, filters).Count(ctx)
}

// Update writes every column of rec back to the connection it was loaded
// from or added to.
func (m *Manager[T]) Update(ctx context.Context, pool *Pool, rec *T) error {
	conn, tx, err := m.owned(ctx, pool, rec)
	if err != nil {
		return err
	}
	res, err := tx.NewUpdate().Model(rec).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return m.affected(conn, res)
}

// Delete removes rec from the connection it belongs to.
func (m *Manager[T]) Delete(ctx context.Context, pool *Pool, rec *T) error {
	conn, tx, err := m.owned(ctx, pool, rec)
	if err != nil {
		return err
	}
	res, err := tx.NewDelete().Model(rec).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if err := m.affected(conn, res); err != nil {
		return err
	}
	pool.unbind(rec)
	return nil
}

// Owner returns the name of the connection rec belongs to.
func (m *Manager[T]) Owner(pool *Pool, rec *T) (string, bool) {
	return pool.Owner(rec)
}

// RawSQL runs query on the named connection's session. See
// Connection.RawSQL for the parameter syntax.
func (m *Manager[T]) RawSQL(ctx context.Context, pool *Pool, name string, query string, params Params) (*sql.Rows, error) {
	conn, err := pool.Get(name)
	if err != nil {
		return nil, err
	}
	return conn.RawSQL(ctx, query, params)
}

// Raw runs query like RawSQL and scans the result into records. The
// query must select the record's columns.
func (m *Manager[T]) Raw(ctx context.Context, pool *Pool, name string, query string, params Params) ([]*T, error) {
	conn, err := pool.Get(name)
	if err != nil {
		return nil, err
	}
	rows, err := conn.RawSQL(ctx, query, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	if err := conn.DB().ScanRows(ctx, rows, &out); err != nil {
		return nil, err
	}
	for _, rec := range out {
		pool.bind(rec, conn.Name())
	}
	return out, nil
}

func (m *Manager[T]) owned(ctx context.Context, pool *Pool, rec *T) (*Connection, bun.Tx, error) {
	if pool == nil {
		return nil, bun.Tx{}, ErrNotConfigured
	}
	name, ok := pool.Owner(rec)
	if !ok {
		return nil, bun.Tx{}, fmt.Errorf("%w: %s", ErrDetached, m.schema.Table)
	}
	return m.session(ctx, pool, name)
}

func (m *Manager[T]) affected(conn *Connection, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return m.notFound(conn)
	}
	return nil
}

func (m *Manager[T]) notFound(conn *Connection) error {
	return fmt.Errorf("%w: %s on %q", ErrNotFound, m.schema.Table, conn.Name())
}

// where adds one equality per filter key, in sorted key order so the
// generated SQL is stable.
func (m *Manager[T]) where(q *bun.SelectQuery, filters Filters) (*bun.SelectQuery, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if err := m.schema.checkColumn(k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := filters[k]
		if v == nil {
			q = q.Where("?TableAlias.? IS NULL", bun.Ident(k))
			continue
		}
		q = q.Where("?TableAlias.? = ?", bun.Ident(k), v)
	}
	return q, nil
}

func (m *Manager[T]) defaultOrder(q *bun.SelectQuery) *bun.SelectQuery {
	if pk, ok := m.schema.PrimaryKey(); ok {
		q = q.OrderExpr("?TableAlias.? ASC", bun.Ident(pk.Column))
	}
	return q
}
