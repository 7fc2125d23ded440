package flow

import (
	"context"
	"net/http"

	"github.com/dministrator/flowdb/pkg/sqldb"
)

type poolKey struct{}

// WithPool returns a copy of ctx carrying pool.
func WithPool(ctx context.Context, pool *sqldb.Pool) context.Context {
	return context.WithValue(ctx, poolKey{}, pool)
}

// PoolFromContext returns the pool stored by DatabaseMiddleware, or nil.
func PoolFromContext(ctx context.Context) *sqldb.Pool {
	pool, _ := ctx.Value(poolKey{}).(*sqldb.Pool)
	return pool
}

// DatabaseMiddleware gives every request a fresh pool over engines and
// closes it when the handler returns, discarding anything the handler did
// not commit. With nil engines the request carries a nil pool.
func DatabaseMiddleware(engines *sqldb.Engines, logger Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pool := engines.NewPool()
			defer func() {
				if err := pool.Close(); err != nil {
					logger.Printf("close request pool: %v", err)
				}
			}()
			next.ServeHTTP(w, r.WithContext(WithPool(r.Context(), pool)))
		})
	}
}
