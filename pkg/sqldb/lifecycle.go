package sqldb

import (
	"context"
	"fmt"
	"reflect"

	"github.com/uptrace/bun/dialect"
)

// SyncDB creates the tables of every registered schema that do not exist
// yet, in registration order, on the named connections or on all of them.
// DDL runs on the connection's handle, outside its session; call it before
// the first operation of the scope.
func SyncDB(ctx context.Context, pool *Pool, reg *Registry, names ...string) error {
	return eachConn(pool, names, func(c *Connection) error {
		for _, s := range reg.Schemas() {
			q := c.DB().NewCreateTable().Model(s.newModel()).IfNotExists()
			for _, fk := range s.foreignKeys {
				q = q.ForeignKey(fk)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("create table %s on %q: %w", s.Table, c.Name(), err)
			}
		}
		return nil
	})
}

// CleanDB drops the tables of every registered schema, in reverse
// registration order. Open sessions of the affected connections are
// rolled back first so they cannot hold locks on the tables.
func CleanDB(ctx context.Context, pool *Pool, reg *Registry, names ...string) error {
	schemas := reg.Schemas()
	return eachConn(pool, names, func(c *Connection) error {
		if err := c.Rollback(); err != nil {
			return err
		}
		for i := len(schemas) - 1; i >= 0; i-- {
			s := schemas[i]
			q := c.DB().NewDropTable().Model(s.newModel()).IfExists()
			if c.Dialect() == dialect.PG {
				q = q.Cascade()
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("drop table %s on %q: %w", s.Table, c.Name(), err)
			}
		}
		return nil
	})
}

func eachConn(pool *Pool, names []string, fn func(*Connection) error) error {
	if pool == nil {
		return ErrNotConfigured
	}
	if len(names) == 0 {
		names = pool.Names()
	}
	for _, name := range names {
		c, err := pool.Get(name)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) newModel() any {
	return reflect.New(s.Type).Interface()
}
