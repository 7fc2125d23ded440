package sqldb

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// iterBatch is the page size Iter fetches per round trip.
const iterBatch = 100

// Query is a lazy, reusable selection over one record type. Builder
// methods return a copy, so a base query can be refined several ways.
type Query[T any] struct {
	m         *Manager[T]
	pool      *Pool
	name      string
	filters   Filters
	order     []string
	relations []string
}

func (q *Query[T]) clone() *Query[T] {
	c := *q
	c.order = append([]string(nil), q.order...)
	c.relations = append([]string(nil), q.relations...)
	return &c
}

// OrderBy sets the sort columns. A leading "-" sorts descending:
// OrderBy("-id"). Without OrderBy rows come in primary key order.
func (q *Query[T]) OrderBy(columns ...string) *Query[T] {
	c := q.clone()
	c.order = append([]string(nil), columns...)
	return c
}

// Relation eager-loads a bun relation by its Go field name.
func (q *Query[T]) Relation(name string) *Query[T] {
	c := q.clone()
	c.relations = append(c.relations, name)
	return c
}

// All returns every matching row.
func (q *Query[T]) All(ctx context.Context) ([]*T, error) {
	return q.fetch(ctx, 0, -1)
}

// Slice returns rows [start, end) of the ordered result, like a slice
// expression. A negative end means no upper bound.
func (q *Query[T]) Slice(ctx context.Context, start, end int) ([]*T, error) {
	if start < 0 {
		return nil, fmt.Errorf("sqldb: negative slice start %d", start)
	}
	if end >= 0 && end <= start {
		return []*T{}, nil
	}
	limit := -1
	if end >= 0 {
		limit = end - start
	}
	return q.fetch(ctx, start, limit)
}

// First returns the first matching row or ErrNotFound.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	rows, err := q.fetch(ctx, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		conn, err := q.pool.Get(q.name)
		if err != nil {
			return nil, err
		}
		return nil, q.m.notFound(conn)
	}
	return rows[0], nil
}

// Count returns the number of matching rows.
func (q *Query[T]) Count(ctx context.Context) (int, error) {
	_, tx, err := q.m.session(ctx, q.pool, q.name)
	if err != nil {
		return 0, err
	}
	sel, err := q.m.where(tx.NewSelect().Model((*T)(nil)), q.filters)
	if err != nil {
		return 0, err
	}
	return sel.Count(ctx)
}

// Iter yields matching rows one at a time, fetching them in pages. The
// sequence stops after the first error.
func (q *Query[T]) Iter(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for offset := 0; ; offset += iterBatch {
			rows, err := q.fetch(ctx, offset, iterBatch)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range rows {
				if !yield(rec, nil) {
					return
				}
			}
			if len(rows) < iterBatch {
				return
			}
		}
	}
}

func (q *Query[T]) fetch(ctx context.Context, offset, limit int) ([]*T, error) {
	conn, tx, err := q.m.session(ctx, q.pool, q.name)
	if err != nil {
		return nil, err
	}
	rows := []*T{}
	sel, err := q.build(tx.NewSelect().Model(&rows))
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		sel = sel.Offset(offset)
	}
	if limit >= 0 {
		sel = sel.Limit(limit)
	} else if offset > 0 && conn.Dialect() == dialect.SQLite {
		// sqlite rejects OFFSET without LIMIT and bun drops non-positive limits
		sel = sel.Limit(math.MaxInt32)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	for _, rec := range rows {
		q.pool.bind(rec, conn.Name())
	}
	return rows, nil
}

func (q *Query[T]) build(sel *bun.SelectQuery) (*bun.SelectQuery, error) {
	sel, err := q.m.where(sel, q.filters)
	if err != nil {
		return nil, err
	}
	for _, rel := range q.relations {
		sel = sel.Relation(rel)
	}
	if len(q.order) == 0 {
		return q.m.defaultOrder(sel), nil
	}
	for _, col := range q.order {
		dir := "ASC"
		if name, ok := strings.CutPrefix(col, "-"); ok {
			col, dir = name, "DESC"
		}
		if err := q.m.schema.checkColumn(col); err != nil {
			return nil, err
		}
		sel = sel.OrderExpr("?TableAlias.? "+dir, bun.Ident(col))
	}
	return sel, nil
}
