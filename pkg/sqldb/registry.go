package sqldb

import (
	"reflect"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry collects the record types an application persists. SyncDB and
// CleanDB walk it in registration order.
type Registry struct {
	schemas *xsync.MapOf[reflect.Type, *Schema]

	mu    sync.Mutex
	order []*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: xsync.NewMapOf[reflect.Type, *Schema]()}
}

// Register builds the schema of T once and returns its manager.
// Registering the same type again returns a manager over the first
// schema; later options are ignored. Register panics if T is not a
// struct with at least one column.
func Register[T any](r *Registry, opts ...SchemaOption) *Manager[T] {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if s, ok := r.schemas.Load(typ); ok {
		return &Manager[T]{schema: s}
	}
	s, err := buildSchema(typ, opts...)
	if err != nil {
		panic(err)
	}
	actual, loaded := r.schemas.LoadOrStore(typ, s)
	if !loaded {
		r.mu.Lock()
		r.order = append(r.order, actual)
		r.mu.Unlock()
	}
	return &Manager[T]{schema: actual}
}

// Lookup returns the schema registered for typ.
func (r *Registry) Lookup(typ reflect.Type) (*Schema, bool) {
	return r.schemas.Load(typ)
}

// Schemas returns every schema in registration order.
func (r *Registry) Schemas() []*Schema {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Schema(nil), r.order...)
}
