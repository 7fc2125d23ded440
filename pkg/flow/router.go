// Package flow: public router adapter.
//
// Router wraps the internal routing engine so framework users register
// routes and resources with *Context handlers:
//
//	r := flow.NewRouter(app)
//	r.Get("/health", func(ctx *flow.Context) { _ = ctx.JSON(200, "ok") })
//	r.Resources("genres", genresController)
//	app.SetRouter(r)
package flow

import (
	"net/http"

	routerpkg "github.com/dministrator/flowdb/internal/router"
)

// Router is the public wrapper around internal/router.Router.
type Router struct {
	inner *routerpkg.Router
	app   *App
}

// NewRouter constructs a Router bound to app. App may be nil for tests.
func NewRouter(app *App) *Router {
	return &Router{inner: routerpkg.New(), app: app}
}

func (r *Router) wrap(h func(*Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		h(NewContext(r.app, w, req))
	}
}

// Handle registers h for method and pattern.
func (r *Router) Handle(method, pattern string, h func(*Context)) {
	r.inner.Handle(method, pattern, r.wrap(h))
}

// Get registers a GET handler for the given pattern.
func (r *Router) Get(pattern string, h func(*Context)) { r.inner.Get(pattern, r.wrap(h)) }

// Post registers a POST handler for the given pattern.
func (r *Router) Post(pattern string, h func(*Context)) { r.inner.Post(pattern, r.wrap(h)) }

// Put registers a PUT handler for the given pattern.
func (r *Router) Put(pattern string, h func(*Context)) { r.inner.Put(pattern, r.wrap(h)) }

// Patch registers a PATCH handler for the given pattern.
func (r *Router) Patch(pattern string, h func(*Context)) { r.inner.Patch(pattern, r.wrap(h)) }

// Delete registers a DELETE handler for the given pattern.
func (r *Router) Delete(pattern string, h func(*Context)) { r.inner.Delete(pattern, r.wrap(h)) }

// Resources wires res into the conventional JSON routes under base.
func (r *Router) Resources(base string, res Resource) error {
	return r.inner.Resources(base, MakeResourceAdapter(r.app, res))
}

// ServeHTTP forwards to the internal router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.inner.ServeHTTP(w, req)
}

// Handler returns the underlying http.Handler.
func (r *Router) Handler() http.Handler { return r.inner }
