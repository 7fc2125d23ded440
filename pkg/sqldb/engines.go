package sqldb

import (
	"context"
	"fmt"
	"sort"

	"github.com/dministrator/flowdb/internal/orm"
)

// Engines holds long-lived database handles, one per configured name.
// Pools created from it share the handles, so a per-request pool costs a
// few allocations rather than new sockets.
type Engines struct {
	adapters map[string]*orm.BunAdapter
	names    []string
	opts     options
}

// OpenEngines opens and pings every URI. An empty map yields nil engines
// and no error; NewPool on nil engines returns a nil pool.
func OpenEngines(ctx context.Context, uris map[string]string, opts ...Option) (*Engines, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	o := buildOptions(opts)
	adapters, err := openAdapters(ctx, uris)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o.log.Info().
			Str("connection", name).
			Str("engine", string(adapters[name].Target.Engine)).
			Msg("database opened")
	}
	return &Engines{adapters: adapters, names: names, opts: o}, nil
}

// NewPool returns a pool of fresh connections over the shared handles.
// Closing the pool ends its sessions but leaves the handles open.
func (e *Engines) NewPool() *Pool {
	if e == nil {
		return nil
	}
	conns := make(map[string]*Connection, len(e.adapters))
	for name, a := range e.adapters {
		conns[name] = newConnection(name, a, false, e.opts.log)
	}
	return newPool(conns, e.opts)
}

// Names lists the configured connection names in sorted order.
func (e *Engines) Names() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.names...)
}

// Ping checks every handle and returns the first failure.
func (e *Engines) Ping(ctx context.Context) error {
	if e == nil {
		return ErrNotConfigured
	}
	for _, name := range e.names {
		if err := e.adapters[name].Ping(ctx); err != nil {
			return fmt.Errorf("ping %q: %w", name, err)
		}
	}
	return nil
}

// Close closes every handle. Pools created from the engines must not be
// used afterwards.
func (e *Engines) Close() error {
	if e == nil {
		return nil
	}
	var first error
	for _, name := range e.names {
		if err := e.adapters[name].Close(); err != nil && first == nil {
			first = fmt.Errorf("close %q: %w", name, err)
		}
	}
	return first
}
