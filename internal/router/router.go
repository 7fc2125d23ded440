// Package router is the HTTP router used internally by the Flow framework.
// It keeps the framework's conventions (colon path parameters, named
// routes, a Rails-like Resources helper) on top of chi's radix tree.
//
// Patterns use ":name" for a single path segment; they are translated to
// chi's "{name}" form at registration. Trailing slashes are ignored.
package router

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ParamsFromContext returns the route parameters of the request that
// carries ctx. It always returns a non-nil map.
func ParamsFromContext(ctx context.Context) map[string]string {
	out := map[string]string{}
	if ctx == nil {
		return out
	}
	rctx := chi.RouteContext(ctx)
	if rctx == nil {
		return out
	}
	for i, k := range rctx.URLParams.Keys {
		if k == "*" {
			continue
		}
		out[k] = rctx.URLParams.Values[i]
	}
	return out
}

// Param fetches a single path parameter, or "" when absent.
func Param(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ResourceController is the set of JSON resource actions wired by
// Router.Resources.
type ResourceController interface {
	Index(http.ResponseWriter, *http.Request)
	Create(http.ResponseWriter, *http.Request)
	Show(http.ResponseWriter, *http.Request)
	Update(http.ResponseWriter, *http.Request)
	Destroy(http.ResponseWriter, *http.Request)
}

// Middleware wraps a single route's handler.
type Middleware func(http.Handler) http.Handler

// Router registers routes on a chi.Mux.
type Router struct {
	mux *chi.Mux

	mu    sync.Mutex
	names map[string]string // route name -> pattern
}

// New creates an empty Router.
func New() *Router {
	mux := chi.NewRouter()
	mux.Use(middleware.StripSlashes)
	return &Router{mux: mux, names: map[string]string{}}
}

// Handle registers h for method and pattern. Pattern must start with '/'.
func (r *Router) Handle(method, pattern string, h http.HandlerFunc) {
	r.HandleWith(method, pattern, h)
}

// HandleWith registers h with per-route middleware; the first one listed
// runs outer-most.
func (r *Router) HandleWith(method, pattern string, h http.HandlerFunc, mws ...Middleware) {
	if !strings.HasPrefix(pattern, "/") {
		panic("router: pattern must begin with '/'")
	}
	chain := make([]func(http.Handler) http.Handler, len(mws))
	for i, mw := range mws {
		chain[i] = mw
	}
	r.mux.With(chain...).MethodFunc(strings.ToUpper(method), chiPattern(pattern), h)
}

// HandleNamed registers a named route usable with URL. Duplicate or empty
// names panic.
func (r *Router) HandleNamed(name, method, pattern string, h http.HandlerFunc) {
	r.HandleNamedWith(name, method, pattern, h)
}

// HandleNamedWith registers a named route with per-route middleware.
func (r *Router) HandleNamedWith(name, method, pattern string, h http.HandlerFunc, mws ...Middleware) {
	if name == "" {
		panic("router: route name cannot be empty")
	}
	r.mu.Lock()
	if _, dup := r.names[name]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("router: duplicate route name %s", name))
	}
	r.names[name] = pattern
	r.mu.Unlock()
	r.HandleWith(method, pattern, h, mws...)
}

func (r *Router) Get(p string, h http.HandlerFunc)    { r.Handle(http.MethodGet, p, h) }
func (r *Router) Post(p string, h http.HandlerFunc)   { r.Handle(http.MethodPost, p, h) }
func (r *Router) Put(p string, h http.HandlerFunc)    { r.Handle(http.MethodPut, p, h) }
func (r *Router) Patch(p string, h http.HandlerFunc)  { r.Handle(http.MethodPatch, p, h) }
func (r *Router) Delete(p string, h http.HandlerFunc) { r.Handle(http.MethodDelete, p, h) }

// NotFound replaces the 404 handler.
func (r *Router) NotFound(h http.HandlerFunc) { r.mux.NotFound(h) }

// MethodNotAllowed replaces the 405 handler.
func (r *Router) MethodNotAllowed(h http.HandlerFunc) { r.mux.MethodNotAllowed(h) }

// Resources wires c to the conventional JSON routes under base (for
// example "genres"):
//
//	GET    /genres      Index
//	POST   /genres      Create
//	GET    /genres/:id  Show
//	PUT    /genres/:id  Update
//	PATCH  /genres/:id  Update
//	DELETE /genres/:id  Destroy
func (r *Router) Resources(base string, c ResourceController) error {
	base = strings.Trim(base, "/")
	if base == "" {
		return fmt.Errorf("router: Resources base cannot be empty")
	}
	if c == nil {
		return fmt.Errorf("router: Resources %s: nil controller", base)
	}

	collection := "/" + base
	member := collection + "/:id"
	r.Get(collection, c.Index)
	r.Post(collection, c.Create)
	r.Get(member, c.Show)
	r.Put(member, c.Update)
	r.Patch(member, c.Update)
	r.Delete(member, c.Destroy)
	return nil
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// URL builds the path of a named route, path-escaping each parameter.
func (r *Router) URL(name string, params map[string]string) (string, error) {
	r.mu.Lock()
	pattern, ok := r.names[name]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("router: unknown route %s", name)
	}
	segs := splitPath(pattern)
	if len(segs) == 0 {
		return "/", nil
	}
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if key, isParam := strings.CutPrefix(s, ":"); isParam {
			v, ok := params[key]
			if !ok {
				return "", fmt.Errorf("router: missing param %s for route %s", key, name)
			}
			parts = append(parts, url.PathEscape(v))
			continue
		}
		parts = append(parts, s)
	}
	return "/" + strings.Join(parts, "/"), nil
}

// chiPattern rewrites "/users/:id" as "/users/{id}".
func chiPattern(p string) string {
	segs := splitPath(p)
	if len(segs) == 0 {
		return "/"
	}
	for i, s := range segs {
		if key, isParam := strings.CutPrefix(s, ":"); isParam && key != "" {
			segs[i] = "{" + key + "}"
		}
	}
	return "/" + strings.Join(segs, "/")
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
