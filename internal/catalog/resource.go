package catalog

import (
	"net/http"
	"strconv"

	"github.com/dministrator/flowdb/pkg/flow"
	"github.com/dministrator/flowdb/pkg/sqldb"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// managed columns cannot be set through the API
var managed = []string{"id", "created_at", "updated_at"}

// Resource is a JSON resource controller over one record type. The
// ?db=NAME query parameter selects the named connection; without it the
// pool's default is used.
type Resource[T any] struct {
	*flow.Controller
	Manager *sqldb.Manager[T]
}

// NewResource returns a Resource for m.
func NewResource[T any](app *flow.App, m *sqldb.Manager[T]) *Resource[T] {
	return &Resource[T]{Controller: flow.NewController(app), Manager: m}
}

func connection(ctx *flow.Context) string {
	return ctx.R.URL.Query().Get("db")
}

// Index lists the records in primary key order. ?limit=N caps the result.
func (res *Resource[T]) Index(ctx *flow.Context) {
	q := res.Manager.FilterBy(ctx.Pool(), connection(ctx), nil)
	var (
		recs []*T
		err  error
	)
	if raw := ctx.R.URL.Query().Get("limit"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n < 0 {
			_ = ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		recs, err = q.Slice(ctx.Ctx(), 0, n)
	} else {
		recs, err = q.All(ctx.Ctx())
	}
	if err != nil {
		ctx.Fail(err)
		return
	}
	_ = ctx.JSON(http.StatusOK, recs)
}

// Show renders one record, 404 when it does not exist.
func (res *Resource[T]) Show(ctx *flow.Context) {
	rec, ok := res.load(ctx)
	if !ok {
		return
	}
	_ = ctx.JSON(http.StatusOK, rec)
}

// Create builds a record from the JSON body, validates and commits it.
func (res *Resource[T]) Create(ctx *flow.Context) {
	body, ok := res.body(ctx)
	if !ok {
		return
	}
	rec, err := res.Manager.FromDict(body)
	if err != nil {
		ctx.Fail(err)
		return
	}
	if err := validate.Struct(rec); err != nil {
		ctx.Fail(err)
		return
	}
	if !res.commit(ctx, func() error {
		return res.Manager.Add(ctx.Ctx(), ctx.Pool(), connection(ctx), rec)
	}) {
		return
	}
	_ = ctx.JSON(http.StatusCreated, rec)
}

// Update applies the JSON body to an existing record and commits it.
func (res *Resource[T]) Update(ctx *flow.Context) {
	rec, ok := res.load(ctx)
	if !ok {
		return
	}
	body, ok := res.body(ctx)
	if !ok {
		return
	}
	if err := res.Manager.Apply(rec, body); err != nil {
		ctx.Fail(err)
		return
	}
	if err := validate.Struct(rec); err != nil {
		ctx.Fail(err)
		return
	}
	if !res.commit(ctx, func() error {
		return res.Manager.Update(ctx.Ctx(), ctx.Pool(), rec)
	}) {
		return
	}
	_ = ctx.JSON(http.StatusOK, rec)
}

// Destroy deletes a record and commits.
func (res *Resource[T]) Destroy(ctx *flow.Context) {
	rec, ok := res.load(ctx)
	if !ok {
		return
	}
	if !res.commit(ctx, func() error {
		return res.Manager.Delete(ctx.Ctx(), ctx.Pool(), rec)
	}) {
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (res *Resource[T]) load(ctx *flow.Context) (*T, bool) {
	id, err := ctx.ParamInt64("id")
	if err != nil {
		_ = ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	rec, err := res.Manager.Get(ctx.Ctx(), ctx.Pool(), connection(ctx), sqldb.Filters{"id": id})
	if err != nil {
		ctx.Fail(err)
		return nil, false
	}
	return rec, true
}

func (res *Resource[T]) body(ctx *flow.Context) (map[string]any, bool) {
	var body map[string]any
	if err := ctx.BindJSON(&body); err != nil {
		_ = ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	for _, k := range managed {
		delete(body, k)
	}
	return body, true
}

// commit runs write and commits the connection it used; on failure the
// pending work is rolled back.
func (res *Resource[T]) commit(ctx *flow.Context, write func() error) bool {
	pool, name := ctx.Pool(), connection(ctx)
	err := write()
	if err == nil {
		err = pool.Commit(resolved(pool, name))
	}
	if err != nil {
		_ = pool.Rollback(resolved(pool, name))
		ctx.Fail(err)
		return false
	}
	return true
}

func resolved(pool *sqldb.Pool, name string) string {
	if name == "" {
		return pool.Default()
	}
	return name
}
