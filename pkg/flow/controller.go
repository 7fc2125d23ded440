// Package flow provides small, composable controller base types and
// adapters used by application code. Controllers in Flow are lightweight
// structs that embed or compose Controller and implement action methods
// that accept a *flow.Context.
//
// This file implements:
//   - Controller: a small struct holding an App reference and helper methods
//   - Resource: the JSON resource actions
//   - an adapter from Resource to the internal router.ResourceController
package flow

import (
	"net/http"

	routerpkg "github.com/dministrator/flowdb/internal/router"
)

// Controller is a minimal base that application controllers can embed or
// compose. It holds a reference to the App so actions can access shared
// services.
type Controller struct {
	App *App
}

// NewController is a convenience constructor.
func NewController(app *App) *Controller { return &Controller{App: app} }

// WithContext constructs a *flow.Context for the current request.
func (c *Controller) WithContext(w http.ResponseWriter, r *http.Request) *Context {
	return NewContext(c.App, w, r)
}

// Handler converts an action function that accepts *Context into an
// http.HandlerFunc.
func (c *Controller) Handler(action func(*Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action(NewContext(c.App, w, r))
	}
}

// Resource is the set of actions of a JSON resource controller.
type Resource interface {
	Index(*Context)
	Create(*Context)
	Show(*Context)
	Update(*Context)
	Destroy(*Context)
}

// resourceAdapter adapts a Resource to the internal
// router.ResourceController, which uses net/http signatures.
type resourceAdapter struct {
	app *App
	r   Resource
}

// MakeResourceAdapter returns a router.ResourceController delegating to r.
func MakeResourceAdapter(app *App, r Resource) routerpkg.ResourceController {
	return &resourceAdapter{app: app, r: r}
}

func (a *resourceAdapter) Index(w http.ResponseWriter, req *http.Request) {
	a.r.Index(NewContext(a.app, w, req))
}

func (a *resourceAdapter) Create(w http.ResponseWriter, req *http.Request) {
	a.r.Create(NewContext(a.app, w, req))
}

func (a *resourceAdapter) Show(w http.ResponseWriter, req *http.Request) {
	a.r.Show(NewContext(a.app, w, req))
}

func (a *resourceAdapter) Update(w http.ResponseWriter, req *http.Request) {
	a.r.Update(NewContext(a.app, w, req))
}

func (a *resourceAdapter) Destroy(w http.ResponseWriter, req *http.Request) {
	a.r.Destroy(NewContext(a.app, w, req))
}
